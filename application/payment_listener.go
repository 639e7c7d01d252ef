package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"digitlotto/domain/entities"
	"digitlotto/domain/services"
	"digitlotto/infrastructure/observability"

	log "github.com/sirupsen/logrus"
)

// PayloadSource yields decoded ledger notifications
type PayloadSource interface {
	Payloads() <-chan entities.TransferPayload
}

// PaymentListener is the single consumer of ledger notifications. It feeds
// receipts to the matcher and settles the bets the matcher confirms or expires.
type PaymentListener struct {
	settlement    *Settlement
	source        PayloadSource
	sweepInterval time.Duration

	mu        sync.Mutex
	unapplied map[string]*entities.PaymentConfirmation // by invoice id
}

// NewPaymentListener creates a new payment listener
func NewPaymentListener(settlement *Settlement, source PayloadSource, sweepInterval time.Duration) *PaymentListener {
	if sweepInterval <= 0 {
		sweepInterval = 30 * time.Second
	}
	return &PaymentListener{
		settlement:    settlement,
		source:        source,
		sweepInterval: sweepInterval,
		unapplied:     make(map[string]*entities.PaymentConfirmation),
	}
}

// Start restores in-flight state and consumes notifications until ctx is
// cancelled or the returned stop func is called
func (l *PaymentListener) Start(ctx context.Context) (func(), error) {
	if err := l.Restore(ctx); err != nil {
		return nil, err
	}

	stopChan := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		log.Info("Payment listener started")

		ticker := time.NewTicker(l.sweepInterval)
		defer ticker.Stop()

		payloads := l.source.Payloads()
		for {
			select {
			case <-ctx.Done():
				log.Info("Payment listener shutting down (context cancelled)...")
				return
			case <-stopChan:
				log.Info("Payment listener shutting down (stop requested)...")
				return
			case payload, ok := <-payloads:
				if !ok {
					log.Warn("Ledger notification channel closed, payment listener stopping")
					return
				}
				l.Handle(ctx, payload)
			case <-ticker.C:
				l.ApplyHeld(ctx)
				l.ExpireDue(ctx)
			}
		}
	}()

	return func() {
		close(stopChan)
		<-done
	}, nil
}

// Restore fails refunds whose outcome was lost and re-registers every bet
// still waiting on its payment with its original deadline. Receipts already
// logged against an invoice are credited again so partial payments survive.
func (l *PaymentListener) Restore(ctx context.Context) error {
	var failedRefunds, awaiting []*entities.Bet
	err := l.settlement.inTransaction(ctx, func(svc *serviceSet) error {
		var err error
		if failedRefunds, err = svc.betting.FailRefundsInFlight(ctx); err != nil {
			return err
		}
		awaiting, err = svc.betting.GetAwaitingPayment(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to restore pending payments: %w", err)
	}

	restored, confirmed := 0, 0
	for _, bet := range awaiting {
		correlationID := ""
		if bet.CorrelationID != nil {
			correlationID = *bet.CorrelationID
		}
		if err := l.settlement.Matcher.Register(bet.InvoiceID, correlationID, bet.UserIdentity, bet.TotalAmount, bet.CreatedAt); err != nil {
			log.WithFields(log.Fields{
				"bet_id":     bet.ID,
				"invoice_id": bet.InvoiceID,
			}).WithError(err).Warn("Failed to restore pending payment")
			continue
		}
		restored++

		if confirmation := l.replayLogged(ctx, bet, correlationID); confirmation != nil {
			confirmed++
			l.confirm(ctx, confirmation)
		}
	}
	observability.GetMetrics().UpdateAwaitingPayments(int64(restored - confirmed))

	log.WithFields(log.Fields{
		"restored":       restored,
		"confirmed":      confirmed,
		"failed_refunds": len(failedRefunds),
	}).Info("Pending payments restored")
	return nil
}

// replayLogged credits the receipts logged for a bet's invoice. Returns the
// confirmation when they already cover it.
func (l *PaymentListener) replayLogged(ctx context.Context, bet *entities.Bet, correlationID string) *entities.PaymentConfirmation {
	if l.settlement.Recorder == nil {
		return nil
	}

	entries, err := l.settlement.Recorder.IncomingForInvoice(ctx, bet.InvoiceID)
	if err != nil {
		log.WithField("invoice_id", bet.InvoiceID).WithError(err).Warn("Failed to load logged receipts, starting from zero")
		return nil
	}

	for _, entry := range entries {
		match := l.settlement.Matcher.Replay(bet.InvoiceID, entities.ValueReceived{
			CorrelationID: correlationID,
			Sender:        entry.Counterparty,
			Amount:        entry.Amount,
			CoinID:        l.settlement.CoinID,
			TxID:          entry.TxID,
			ReceivedAt:    entry.CreatedAt,
		})
		if match.Outcome == services.MatchConfirmed {
			log.WithFields(log.Fields{
				"invoice_id": bet.InvoiceID,
				"receipts":   match.Confirmation.ReceiptCount,
			}).Info("Logged receipts cover invoice")
			return match.Confirmation
		}
	}
	if len(entries) > 0 {
		log.WithFields(log.Fields{
			"invoice_id": bet.InvoiceID,
			"receipts":   len(entries),
		}).Info("Partial payment restored from log")
	}
	return nil
}

// Handle processes one notification. The payload itself is never retried
// since the matcher state has already moved; a confirmation that cannot be
// written is held for the next sweep.
func (l *PaymentListener) Handle(ctx context.Context, payload entities.TransferPayload) {
	switch p := payload.(type) {
	case entities.ValueReceived:
		l.handleValueReceived(ctx, p)
	case entities.PaymentResponse:
		l.handlePaymentResponse(ctx, p)
	default:
		log.WithField("kind", payload.Kind()).Warn("Ignoring unsupported ledger notification")
	}
}

func (l *PaymentListener) handleValueReceived(ctx context.Context, receipt entities.ValueReceived) {
	logger := log.WithFields(log.Fields{
		"tx_id":          receipt.TxID,
		"sender":         receipt.Sender,
		"correlation_id": receipt.CorrelationID,
		"amount":         receipt.Amount.String(),
	})

	if receipt.CoinID != "" && receipt.CoinID != l.settlement.CoinID {
		logger.WithField("coin_id", receipt.CoinID).Debug("Ignoring receipt for another coin")
		return
	}

	match := l.settlement.Matcher.Apply(receipt)
	outcome := match.Outcome
	observability.GetMetrics().RecordReceipt(outcome.String())

	if outcome == services.MatchDuplicate {
		logger.Debug("Duplicate receipt ignored")
		return
	}

	metadata := map[string]any{"match": outcome.String()}
	if receipt.CorrelationID != "" {
		metadata["correlation_id"] = receipt.CorrelationID
	}
	if match.InvoiceID != "" && outcome != services.MatchSettled {
		metadata["invoice_id"] = match.InvoiceID
	}
	if l.settlement.Recorder != nil {
		l.settlement.Recorder.RecordIncoming(ctx, receipt.Amount, receipt.Sender, receipt.TxID, entities.PaymentPurposeBetPayment, metadata)
	}

	switch outcome {
	case services.MatchUnmatched:
		logger.Warn("Receipt matches no pending invoice")
		return
	case services.MatchSettled:
		logger.WithField("invoice_id", match.InvoiceID).Warn("Receipt for an already settled payment request, return it by hand")
		return
	case services.MatchPartial:
		logger.WithField("invoice_id", match.InvoiceID).Info("Partial payment received")
		return
	}

	observability.GetMetrics().UpdateAwaitingPayments(-1)
	l.confirm(ctx, match.Confirmation)
}

// confirm applies a confirmation, retrying while the database is unavailable.
// The matcher has already dropped the invoice, so a confirmation that still
// cannot be written is held and retried on every sweep.
func (l *PaymentListener) confirm(ctx context.Context, confirmation *entities.PaymentConfirmation) {
	logger := log.WithField("invoice_id", confirmation.InvoiceID)

	var decision *services.PaymentDecision
	err := l.settlement.retryTransaction(ctx, "confirm payment", func(svc *serviceSet) error {
		var err error
		decision, err = svc.betting.ConfirmPayment(ctx, confirmation)
		return err
	})
	if err != nil {
		var coded *entities.SettlementError
		if errors.As(err, &coded) {
			logger.WithError(err).Error("Payment confirmation rejected")
			l.forget(confirmation.InvoiceID)
			return
		}
		l.mu.Lock()
		l.unapplied[confirmation.InvoiceID] = confirmation
		l.mu.Unlock()
		logger.WithError(err).Error("Failed to apply payment confirmation, holding for next sweep")
		return
	}
	l.forget(confirmation.InvoiceID)
	observability.GetMetrics().RecordPaymentOutcome(decision.Outcome.String())

	if decision.Outcome != services.PaymentRefundRequired {
		return
	}
	l.refund(ctx, decision)
}

func (l *PaymentListener) forget(invoiceID string) {
	l.mu.Lock()
	delete(l.unapplied, invoiceID)
	l.mu.Unlock()
}

// ApplyHeld retries confirmations that could not be written earlier
func (l *PaymentListener) ApplyHeld(ctx context.Context) {
	l.mu.Lock()
	held := make([]*entities.PaymentConfirmation, 0, len(l.unapplied))
	for _, confirmation := range l.unapplied {
		held = append(held, confirmation)
	}
	l.mu.Unlock()

	for _, confirmation := range held {
		l.confirm(ctx, confirmation)
	}
}

// HeldConfirmations returns how many confirmations are waiting to be written
func (l *PaymentListener) HeldConfirmations() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.unapplied)
}

// refund returns a late payment to its sender and records the outcome
func (l *PaymentListener) refund(ctx context.Context, decision *services.PaymentDecision) {
	bet := decision.Bet
	logger := log.WithFields(log.Fields{
		"bet_id":    bet.ID,
		"recipient": bet.UserIdentity,
		"amount":    decision.RefundAmount.String(),
	})

	started := time.Now()
	result, sendErr := l.settlement.Wallet.SendValue(ctx, bet.UserIdentity, decision.RefundAmount, l.settlement.CoinID)
	if sendErr != nil {
		observability.GetMetrics().RecordWalletTransfer(string(entities.PaymentPurposeRefund), observability.TransferResultFailed, time.Since(started))
		logger.WithError(sendErr).WithField("delivered", result.Total().String()).Error("Refund transfer failed")

		if result.Delivered() {
			recordTransferParts(ctx, l.settlement, bet.UserIdentity, result, entities.PaymentPurposeRefund, map[string]any{
				"bet_id": bet.ID,
				"reason": decision.Reason,
			})
		}
		if err := l.settlement.retryTransaction(ctx, "record refund failure", func(svc *serviceSet) error {
			attempt := *bet
			return svc.betting.RecordRefundFailure(ctx, &attempt, result, sendErr)
		}); err != nil {
			logger.WithError(err).Error("Failed to record refund failure")
		}
		return
	}
	observability.GetMetrics().RecordWalletTransfer(string(entities.PaymentPurposeRefund), observability.TransferResultOK, time.Since(started))

	recordTransferParts(ctx, l.settlement, bet.UserIdentity, result, entities.PaymentPurposeRefund, map[string]any{
		"bet_id": bet.ID,
		"reason": decision.Reason,
	})

	if err := l.settlement.retryTransaction(ctx, "record refund", func(svc *serviceSet) error {
		return svc.betting.RecordRefund(ctx, bet, result.Total(), result)
	}); err != nil {
		logger.WithError(err).WithField("transfer_id", result.TransferID).Error("Refund sent but not recorded")
		return
	}
	logger.WithField("transfer_id", result.TransferID).Info("Late payment refunded")
}

// handlePaymentResponse expires the invoice when the payer declines the request
func (l *PaymentListener) handlePaymentResponse(ctx context.Context, response entities.PaymentResponse) {
	if response.Accepted {
		log.WithField("correlation_id", response.CorrelationID).Debug("Payment request accepted by payer")
		return
	}

	invoiceID, ok := l.settlement.Matcher.InvoiceForCorrelation(response.CorrelationID)
	if !ok {
		log.WithField("correlation_id", response.CorrelationID).Debug("Declined payment request has no pending invoice")
		return
	}

	l.settlement.Matcher.Cancel(invoiceID)
	observability.GetMetrics().UpdateAwaitingPayments(-1)

	log.WithFields(log.Fields{
		"invoice_id": invoiceID,
		"payer":      response.Payer,
		"reason":     response.Reason,
	}).Info("Payment request declined")

	l.expire(ctx, invoiceID)
}

// ExpireDue drops invoices whose payment window has passed
func (l *PaymentListener) ExpireDue(ctx context.Context) {
	for _, expiry := range l.settlement.Matcher.ExpireDue(l.settlement.now()) {
		observability.GetMetrics().UpdateAwaitingPayments(-1)

		if expiry.Accumulated.IsPositive() {
			// Partial payments are never confirmed; the operator settles them by hand
			log.WithFields(log.Fields{
				"invoice_id":  expiry.InvoiceID,
				"accumulated": expiry.Accumulated.String(),
			}).Warn("Invoice expired holding a partial payment")
		}
		l.expire(ctx, expiry.InvoiceID)
	}
}

func (l *PaymentListener) expire(ctx context.Context, invoiceID string) {
	if err := l.settlement.inTransaction(ctx, func(svc *serviceSet) error {
		_, err := svc.betting.ExpirePayment(ctx, invoiceID)
		return err
	}); err != nil {
		log.WithField("invoice_id", invoiceID).WithError(err).Error("Failed to expire payment")
	}
}
