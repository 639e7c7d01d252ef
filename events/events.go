package events

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventTypeRoundOpened         EventType = "round.opened"
	EventTypeRoundClosed         EventType = "round.closed"
	EventTypeRoundDrawn          EventType = "round.drawn"
	EventTypeRoundCompleted      EventType = "round.completed"
	EventTypePaymentConfirmed    EventType = "payment.confirmed"
	EventTypePaymentExpired      EventType = "payment.expired"
	EventTypePayoutSent          EventType = "payout.sent"
	EventTypePayoutFailed        EventType = "payout.failed"
	EventTypeBetRefunded         EventType = "bet.refunded"
	EventTypeCommissionWithdrawn EventType = "commission.withdrawn"
)

// AllEventTypes lists every event the settlement service emits
var AllEventTypes = []EventType{
	EventTypeRoundOpened,
	EventTypeRoundClosed,
	EventTypeRoundDrawn,
	EventTypeRoundCompleted,
	EventTypePaymentConfirmed,
	EventTypePaymentExpired,
	EventTypePayoutSent,
	EventTypePayoutFailed,
	EventTypeBetRefunded,
	EventTypeCommissionWithdrawn,
}

// Event is the base interface for all events
type Event interface {
	Type() EventType
}

type RoundOpenedEvent struct {
	RoundID     int64 `json:"round_id"`
	RoundNumber int64 `json:"round_number"`
}

func (e RoundOpenedEvent) Type() EventType { return EventTypeRoundOpened }

type RoundClosedEvent struct {
	RoundID     int64           `json:"round_id"`
	RoundNumber int64           `json:"round_number"`
	TotalPool   decimal.Decimal `json:"total_pool"`
}

func (e RoundClosedEvent) Type() EventType { return EventTypeRoundClosed }

type RoundDrawnEvent struct {
	RoundID      int64 `json:"round_id"`
	RoundNumber  int64 `json:"round_number"`
	WinningDigit int   `json:"winning_digit"`
}

func (e RoundDrawnEvent) Type() EventType { return EventTypeRoundDrawn }

// RoundCompletedEvent carries the final accounting of a round
type RoundCompletedEvent struct {
	RoundID     int64           `json:"round_id"`
	RoundNumber int64           `json:"round_number"`
	TotalPool   decimal.Decimal `json:"total_pool"`
	TotalPayout decimal.Decimal `json:"total_payout"`
	HouseFee    decimal.Decimal `json:"house_fee"`
}

func (e RoundCompletedEvent) Type() EventType { return EventTypeRoundCompleted }

type PaymentConfirmedEvent struct {
	BetID         int64           `json:"bet_id"`
	InvoiceID     string          `json:"invoice_id"`
	RoundNumber   int64           `json:"round_number"`
	TotalReceived decimal.Decimal `json:"total_received"`
	ReceiptCount  int             `json:"receipt_count"`
}

func (e PaymentConfirmedEvent) Type() EventType { return EventTypePaymentConfirmed }

type PaymentExpiredEvent struct {
	BetID     int64  `json:"bet_id"`
	InvoiceID string `json:"invoice_id"`
}

func (e PaymentExpiredEvent) Type() EventType { return EventTypePaymentExpired }

type PayoutSentEvent struct {
	BetID       int64           `json:"bet_id"`
	RoundNumber int64           `json:"round_number"`
	Recipient   string          `json:"recipient"`
	Amount      decimal.Decimal `json:"amount"`
	TxID        string          `json:"tx_id"`
}

func (e PayoutSentEvent) Type() EventType { return EventTypePayoutSent }

type PayoutFailedEvent struct {
	BetID       int64           `json:"bet_id"`
	RoundNumber int64           `json:"round_number"`
	Amount      decimal.Decimal `json:"amount"`
	Reason      string          `json:"reason"`
}

func (e PayoutFailedEvent) Type() EventType { return EventTypePayoutFailed }

type BetRefundedEvent struct {
	BetID       int64           `json:"bet_id"`
	RoundNumber int64           `json:"round_number"`
	Amount      decimal.Decimal `json:"amount"`
	TxID        string          `json:"tx_id"`
	Reason      string          `json:"reason"`
}

func (e BetRefundedEvent) Type() EventType { return EventTypeBetRefunded }

type CommissionWithdrawnEvent struct {
	Amount    decimal.Decimal `json:"amount"`
	Recipient string          `json:"recipient"`
	TxID      string          `json:"tx_id"`
}

func (e CommissionWithdrawnEvent) Type() EventType { return EventTypeCommissionWithdrawn }

// Handler is a function that handles events
type Handler func(ctx context.Context, event Event)

// Bus dispatches events to in-process subscribers
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[EventType][]Handler),
	}
}

// Subscribe adds a handler for a specific event type
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)

	log.WithFields(log.Fields{
		"eventType":    eventType,
		"handlerCount": len(b.handlers[eventType]),
	}).Debug("Subscribed handler to local event bus")
}

// Emit calls every handler registered for the event type on its own goroutine
func (b *Bus) Emit(ctx context.Context, event Event) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers[event.Type()]))
	copy(handlers, b.handlers[event.Type()])
	b.mu.RUnlock()

	for i, handler := range handlers {
		go func(h Handler, handlerIndex int) {
			defer func() {
				if r := recover(); r != nil {
					log.WithFields(log.Fields{
						"eventType":    event.Type(),
						"handlerIndex": handlerIndex,
						"panic":        r,
					}).Error("Event handler panicked")
				}
			}()
			h(ctx, event)
		}(handler, i)
	}
}

// Publish emits on a background context so the bus can serve as a publisher
func (b *Bus) Publish(event Event) error {
	b.Emit(context.Background(), event)
	return nil
}
