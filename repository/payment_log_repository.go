package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"digitlotto/database"
	"digitlotto/domain/entities"
	"digitlotto/domain/interfaces"

	"github.com/jackc/pgx/v5"
)

type paymentLogRepository struct {
	q Queryable
}

// NewPaymentLogRepository creates a payment log repository on the pool.
// Entries written through it survive a rollback of any settlement transaction.
func NewPaymentLogRepository(db *database.DB) interfaces.PaymentLogRepository {
	return &paymentLogRepository{q: db.Pool}
}

// Record appends an entry to the audit trail
func (r *paymentLogRepository) Record(ctx context.Context, entry *entities.PaymentLogEntry) error {
	metadata := entry.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal payment log metadata: %w", err)
	}

	query := `
		INSERT INTO payment_logs (direction, amount, counterparty, tx_id, purpose, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`

	err = r.q.QueryRow(ctx, query,
		entry.Direction,
		entry.Amount,
		entry.Counterparty,
		entry.TxID,
		entry.Purpose,
		metadataJSON,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record %s payment log for %s: %w", entry.Purpose, entry.Counterparty, err)
	}

	return nil
}

// GetRecent returns the newest entries first
func (r *paymentLogRepository) GetRecent(ctx context.Context, limit int) ([]*entities.PaymentLogEntry, error) {
	query := `
		SELECT id, direction, amount, counterparty, tx_id, purpose, metadata, created_at
		FROM payment_logs
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`

	rows, err := r.q.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get payment logs: %w", err)
	}
	return scanPaymentLogs(rows)
}

// GetIncomingForInvoice returns the bet payments credited to an invoice, oldest first
func (r *paymentLogRepository) GetIncomingForInvoice(ctx context.Context, invoiceID string) ([]*entities.PaymentLogEntry, error) {
	query := `
		SELECT id, direction, amount, counterparty, tx_id, purpose, metadata, created_at
		FROM payment_logs
		WHERE direction = $1 AND purpose = $2 AND metadata->>'invoice_id' = $3
		ORDER BY created_at, id
	`

	rows, err := r.q.Query(ctx, query, entities.PaymentDirectionIncoming, entities.PaymentPurposeBetPayment, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get payment logs for invoice %s: %w", invoiceID, err)
	}
	return scanPaymentLogs(rows)
}

func scanPaymentLogs(rows pgx.Rows) ([]*entities.PaymentLogEntry, error) {
	defer rows.Close()

	var entries []*entities.PaymentLogEntry
	for rows.Next() {
		var entry entities.PaymentLogEntry
		var metadataJSON []byte

		err := rows.Scan(
			&entry.ID,
			&entry.Direction,
			&entry.Amount,
			&entry.Counterparty,
			&entry.TxID,
			&entry.Purpose,
			&metadataJSON,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment log: %w", err)
		}

		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &entry.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal payment log metadata: %w", err)
			}
		}

		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate payment logs: %w", err)
	}

	return entries, nil
}
