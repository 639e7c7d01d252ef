package services

import (
	"context"

	"digitlotto/domain/entities"
	"digitlotto/domain/interfaces"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// PaymentRecorder appends value movements to the audit trail.
// Failures are logged and never block settlement.
type PaymentRecorder struct {
	paymentLogRepo interfaces.PaymentLogRepository
}

// NewPaymentRecorder creates a new payment recorder
func NewPaymentRecorder(paymentLogRepo interfaces.PaymentLogRepository) *PaymentRecorder {
	return &PaymentRecorder{paymentLogRepo: paymentLogRepo}
}

// RecordIncoming logs value received from a counterparty
func (r *PaymentRecorder) RecordIncoming(ctx context.Context, amount decimal.Decimal, from, txID string, purpose entities.PaymentPurpose, metadata map[string]any) {
	r.record(ctx, entities.PaymentDirectionIncoming, amount, from, txID, purpose, metadata)
}

// RecordOutgoing logs value sent to a counterparty
func (r *PaymentRecorder) RecordOutgoing(ctx context.Context, amount decimal.Decimal, to, txID string, purpose entities.PaymentPurpose, metadata map[string]any) {
	r.record(ctx, entities.PaymentDirectionOutgoing, amount, to, txID, purpose, metadata)
}

// GetRecent returns the latest audit entries
func (r *PaymentRecorder) GetRecent(ctx context.Context, limit int) ([]*entities.PaymentLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	return r.paymentLogRepo.GetRecent(ctx, limit)
}

// IncomingForInvoice returns the logged bet payments credited to an invoice
func (r *PaymentRecorder) IncomingForInvoice(ctx context.Context, invoiceID string) ([]*entities.PaymentLogEntry, error) {
	return r.paymentLogRepo.GetIncomingForInvoice(ctx, invoiceID)
}

func (r *PaymentRecorder) record(ctx context.Context, direction entities.PaymentDirection, amount decimal.Decimal, counterparty, txID string, purpose entities.PaymentPurpose, metadata map[string]any) {
	entry := &entities.PaymentLogEntry{
		Direction:    direction,
		Amount:       amount,
		Counterparty: counterparty,
		TxID:         txID,
		Purpose:      purpose,
		Metadata:     metadata,
	}

	if err := r.paymentLogRepo.Record(ctx, entry); err != nil {
		log.WithFields(log.Fields{
			"direction":    direction,
			"purpose":      purpose,
			"amount":       amount.String(),
			"counterparty": counterparty,
			"tx_id":        txID,
			"error":        err,
		}).Error("Failed to record payment log entry")
	}
}
