package ledger

import (
	"context"
	"fmt"
	"time"

	"digitlotto/domain/entities"

	log "github.com/sirupsen/logrus"
)

// Notification subjects published by the ledger gateway
const (
	SubjectValueReceived   = "ledger.value.received"
	SubjectPaymentResponse = "ledger.payment.response"

	// ReceiptStream is the JetStream stream carrying gateway notifications
	ReceiptStream = "ledger_notifications"
)

// Subscriber registers a durable handler; a handler error requests redelivery
type Subscriber interface {
	Subscribe(subject string, handler func([]byte) error) error
}

// Deduper remembers transaction ids already handed to the settlement core
type Deduper interface {
	// MarkSeen returns false if txID was already marked
	MarkSeen(ctx context.Context, txID string) (bool, error)
	Forget(ctx context.Context, txID string) error
}

// Notifications turns gateway messages into typed payloads on a bounded channel.
// When the channel stays full past sendTimeout the message is redelivered later
// instead of blocking the subscription.
type Notifications struct {
	payloads    chan entities.TransferPayload
	sendTimeout time.Duration
	deduper     Deduper
}

// NewNotifications creates a channel of the given capacity. deduper may be nil.
func NewNotifications(buffer int, sendTimeout time.Duration, deduper Deduper) *Notifications {
	if buffer <= 0 {
		buffer = 1
	}
	return &Notifications{
		payloads:    make(chan entities.TransferPayload, buffer),
		sendTimeout: sendTimeout,
		deduper:     deduper,
	}
}

// Payloads is the consumer side of the channel
func (n *Notifications) Payloads() <-chan entities.TransferPayload {
	return n.payloads
}

// Start subscribes to both notification subjects
func (n *Notifications) Start(subscriber Subscriber) error {
	for _, subject := range []string{SubjectValueReceived, SubjectPaymentResponse} {
		if err := subscriber.Subscribe(subject, n.Handle); err != nil {
			return fmt.Errorf("failed to subscribe to ledger notifications: %w", err)
		}
	}
	return nil
}

// Handle decodes one message and queues it. Malformed messages are dropped
// since redelivery cannot fix them.
func (n *Notifications) Handle(data []byte) error {
	payload, err := DecodeEnvelope(data)
	if err != nil {
		log.WithError(err).Warn("Dropping malformed ledger notification")
		return nil
	}

	ctx := context.Background()
	receipt, isReceipt := payload.(entities.ValueReceived)
	if isReceipt && n.deduper != nil {
		fresh, err := n.deduper.MarkSeen(ctx, receipt.TxID)
		if err != nil {
			// Matcher still rejects duplicates it has seen
			log.WithError(err).WithField("tx_id", receipt.TxID).Warn("Receipt dedupe unavailable")
		} else if !fresh {
			log.WithField("tx_id", receipt.TxID).Debug("Skipping redelivered receipt")
			return nil
		}
	}

	timer := time.NewTimer(n.sendTimeout)
	defer timer.Stop()

	select {
	case n.payloads <- payload:
		return nil
	case <-timer.C:
		if isReceipt && n.deduper != nil {
			if err := n.deduper.Forget(ctx, receipt.TxID); err != nil {
				log.WithError(err).WithField("tx_id", receipt.TxID).Error("Failed to release receipt dedupe key")
			}
		}
		return fmt.Errorf("notification channel full after %s", n.sendTimeout)
	}
}
