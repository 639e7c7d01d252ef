package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"digitlotto/database"
	"digitlotto/domain/entities"
	"digitlotto/domain/interfaces"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const betSelect = `
	SELECT b.id, b.round_id, r.round_number, b.user_id, b.user_identity, b.items,
	       b.total_amount, b.invoice_id, b.correlation_id, b.payment_status,
	       b.payment_tx_id, b.refund_tx_id, b.refund_reason, b.winnings,
	       b.payout_status, b.payout_tx_id, b.amount_sent, b.created_at, b.updated_at
	FROM bets b
	JOIN rounds r ON r.id = b.round_id
`

type betRepository struct {
	q Queryable
}

// NewBetRepository creates a new bet repository
func NewBetRepository(db *database.DB) interfaces.BetRepository {
	return &betRepository{q: db.Pool}
}

// newBetRepositoryWithTx creates a new bet repository with a transaction
func newBetRepositoryWithTx(tx Queryable) interfaces.BetRepository {
	return &betRepository{q: tx}
}

func scanBet(row rowScanner) (*entities.Bet, error) {
	var bet entities.Bet
	var itemsJSON []byte

	err := row.Scan(
		&bet.ID,
		&bet.RoundID,
		&bet.RoundNumber,
		&bet.UserID,
		&bet.UserIdentity,
		&itemsJSON,
		&bet.TotalAmount,
		&bet.InvoiceID,
		&bet.CorrelationID,
		&bet.PaymentStatus,
		&bet.PaymentTxID,
		&bet.RefundTxID,
		&bet.RefundReason,
		&bet.Winnings,
		&bet.PayoutStatus,
		&bet.PayoutTxID,
		&bet.AmountSent,
		&bet.CreatedAt,
		&bet.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(itemsJSON, &bet.Items); err != nil {
		return nil, fmt.Errorf("failed to unmarshal items of bet %d: %w", bet.ID, err)
	}

	return &bet, nil
}

func (r *betRepository) getOne(ctx context.Context, query string, args ...any) (*entities.Bet, error) {
	bet, err := scanBet(r.q.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return bet, nil
}

func (r *betRepository) getMany(ctx context.Context, query string, args ...any) ([]*entities.Bet, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bets []*entities.Bet
	for rows.Next() {
		bet, err := scanBet(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bet: %w", err)
		}
		bets = append(bets, bet)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bets: %w", err)
	}

	return bets, nil
}

func (r *betRepository) count(ctx context.Context, query string, args ...any) (int, error) {
	var count int
	if err := r.q.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *betRepository) update(ctx context.Context, query string, args ...any) (bool, error) {
	tag, err := r.q.Exec(ctx, query, args...)
	if err != nil {
		return false, err
	}
	return applied(tag), nil
}

func (r *betRepository) Create(ctx context.Context, bet *entities.Bet) error {
	itemsJSON, err := json.Marshal(bet.Items)
	if err != nil {
		return fmt.Errorf("failed to marshal bet items: %w", err)
	}

	query := `
		INSERT INTO bets (round_id, user_id, user_identity, items, total_amount, invoice_id,
		                  correlation_id, payment_status, winnings, payout_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at
	`

	err = r.q.QueryRow(ctx, query,
		bet.RoundID,
		bet.UserID,
		bet.UserIdentity,
		itemsJSON,
		bet.TotalAmount,
		bet.InvoiceID,
		bet.CorrelationID,
		bet.PaymentStatus,
		bet.Winnings,
		bet.PayoutStatus,
	).Scan(&bet.ID, &bet.CreatedAt, &bet.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create bet for user %s: %w", bet.UserID, err)
	}

	return nil
}

func (r *betRepository) GetByID(ctx context.Context, id int64) (*entities.Bet, error) {
	bet, err := r.getOne(ctx, betSelect+` WHERE b.id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get bet by ID %d: %w", id, err)
	}
	return bet, nil
}

func (r *betRepository) GetByInvoiceID(ctx context.Context, invoiceID string) (*entities.Bet, error) {
	bet, err := r.getOne(ctx, betSelect+` WHERE b.invoice_id = $1`, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get bet by invoice %s: %w", invoiceID, err)
	}
	return bet, nil
}

// GetByInvoiceIDForUpdate locks the bet row only; the round row is locked by
// the pool increment when it happens
func (r *betRepository) GetByInvoiceIDForUpdate(ctx context.Context, invoiceID string) (*entities.Bet, error) {
	bet, err := r.getOne(ctx, betSelect+` WHERE b.invoice_id = $1 FOR UPDATE OF b`, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get bet for update by invoice %s: %w", invoiceID, err)
	}
	return bet, nil
}

func (r *betRepository) GetByRound(ctx context.Context, roundID int64) ([]*entities.Bet, error) {
	bets, err := r.getMany(ctx, betSelect+` WHERE b.round_id = $1 ORDER BY b.id`, roundID)
	if err != nil {
		return nil, fmt.Errorf("failed to get bets for round %d: %w", roundID, err)
	}
	return bets, nil
}

func (r *betRepository) GetPaidByRound(ctx context.Context, roundID int64) ([]*entities.Bet, error) {
	bets, err := r.getMany(ctx, betSelect+` WHERE b.round_id = $1 AND b.payment_status = 'paid' ORDER BY b.id`, roundID)
	if err != nil {
		return nil, fmt.Errorf("failed to get paid bets for round %d: %w", roundID, err)
	}
	return bets, nil
}

func (r *betRepository) GetByUser(ctx context.Context, userID string, limit int) ([]*entities.Bet, error) {
	bets, err := r.getMany(ctx, betSelect+` WHERE b.user_id = $1 ORDER BY b.created_at DESC, b.id DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get bets for user %s: %w", userID, err)
	}
	return bets, nil
}

func (r *betRepository) GetByPayoutStatus(ctx context.Context, roundID int64, status entities.PayoutStatus) ([]*entities.Bet, error) {
	bets, err := r.getMany(ctx, betSelect+` WHERE b.round_id = $1 AND b.payout_status = $2 ORDER BY b.id`, roundID, status)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s payouts for round %d: %w", status, roundID, err)
	}
	return bets, nil
}

func (r *betRepository) CountByRound(ctx context.Context, roundID int64) (int, error) {
	count, err := r.count(ctx, `SELECT COUNT(*) FROM bets WHERE round_id = $1`, roundID)
	if err != nil {
		return 0, fmt.Errorf("failed to count bets for round %d: %w", roundID, err)
	}
	return count, nil
}

func (r *betRepository) GetAwaitingPayment(ctx context.Context) ([]*entities.Bet, error) {
	query := betSelect + `
		WHERE b.payment_status = 'pending' AND b.payment_tx_id IS NULL
		ORDER BY b.created_at ASC
	`
	bets, err := r.getMany(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get bets awaiting payment: %w", err)
	}
	return bets, nil
}

func (r *betRepository) GetRefundsInFlight(ctx context.Context) ([]*entities.Bet, error) {
	query := betSelect + `
		WHERE b.payment_status = 'pending' AND b.refund_reason IS NOT NULL
		ORDER BY b.id
	`
	bets, err := r.getMany(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get refunds in flight: %w", err)
	}
	return bets, nil
}

func (r *betRepository) CountUnsettledPayouts(ctx context.Context, roundID int64) (int, error) {
	count, err := r.count(ctx, `
		SELECT COUNT(*) FROM bets
		WHERE round_id = $1 AND payout_status IN ('pending', 'sent')
	`, roundID)
	if err != nil {
		return 0, fmt.Errorf("failed to count unsettled payouts for round %d: %w", roundID, err)
	}
	return count, nil
}

func (r *betRepository) SumWinnings(ctx context.Context, roundID int64) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.q.QueryRow(ctx, `SELECT COALESCE(SUM(winnings), 0) FROM bets WHERE round_id = $1`, roundID).Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum winnings for round %d: %w", roundID, err)
	}
	return total, nil
}

func (r *betRepository) SetCorrelationID(ctx context.Context, id int64, correlationID string) error {
	tag, err := r.q.Exec(ctx, `UPDATE bets SET correlation_id = $2, updated_at = NOW() WHERE id = $1`, id, correlationID)
	if err != nil {
		return fmt.Errorf("failed to set correlation id for bet %d: %w", id, err)
	}
	if !applied(tag) {
		return fmt.Errorf("bet with ID %d not found", id)
	}
	return nil
}

func (r *betRepository) MarkPaid(ctx context.Context, id int64, txID string) (bool, error) {
	ok, err := r.update(ctx, `
		UPDATE bets
		SET payment_status = 'paid', payment_tx_id = $2, updated_at = NOW()
		WHERE id = $1 AND payment_status = 'pending' AND refund_reason IS NULL
	`, id, txID)
	if err != nil {
		return false, fmt.Errorf("failed to mark bet %d paid: %w", id, err)
	}
	return ok, nil
}

func (r *betRepository) MarkRefundPending(ctx context.Context, id int64, paymentTxID, reason string) (bool, error) {
	ok, err := r.update(ctx, `
		UPDATE bets
		SET payment_tx_id = $2, refund_reason = $3, updated_at = NOW()
		WHERE id = $1 AND payment_status = 'pending' AND refund_reason IS NULL
	`, id, paymentTxID, reason)
	if err != nil {
		return false, fmt.Errorf("failed to mark refund pending for bet %d: %w", id, err)
	}
	return ok, nil
}

func (r *betRepository) MarkRefunded(ctx context.Context, id int64, refundTxID string) (bool, error) {
	ok, err := r.update(ctx, `
		UPDATE bets
		SET payment_status = 'refunded', refund_tx_id = $2, updated_at = NOW()
		WHERE id = $1 AND payment_status = 'pending'
	`, id, refundTxID)
	if err != nil {
		return false, fmt.Errorf("failed to mark bet %d refunded: %w", id, err)
	}
	return ok, nil
}

func (r *betRepository) MarkPaymentFailed(ctx context.Context, id int64, reason string) (bool, error) {
	ok, err := r.update(ctx, `
		UPDATE bets
		SET payment_status = 'failed', refund_reason = $2, updated_at = NOW()
		WHERE id = $1 AND payment_status = 'pending'
	`, id, reason)
	if err != nil {
		return false, fmt.Errorf("failed to mark payment failed for bet %d: %w", id, err)
	}
	return ok, nil
}

func (r *betRepository) MarkExpired(ctx context.Context, id int64) (bool, error) {
	ok, err := r.update(ctx, `
		UPDATE bets
		SET payment_status = 'expired', updated_at = NOW()
		WHERE id = $1 AND payment_status = 'pending' AND payment_tx_id IS NULL
	`, id)
	if err != nil {
		return false, fmt.Errorf("failed to mark bet %d expired: %w", id, err)
	}
	return ok, nil
}

func (r *betRepository) SetWinnings(ctx context.Context, id int64, winnings decimal.Decimal, payoutStatus entities.PayoutStatus) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE bets
		SET winnings = $2, payout_status = $3, updated_at = NOW()
		WHERE id = $1
	`, id, winnings, payoutStatus)
	if err != nil {
		return fmt.Errorf("failed to set winnings for bet %d: %w", id, err)
	}
	if !applied(tag) {
		return fmt.Errorf("bet with ID %d not found", id)
	}
	return nil
}

func (r *betRepository) TransitionPayout(ctx context.Context, id int64, from, to entities.PayoutStatus, txID *string) (bool, error) {
	ok, err := r.update(ctx, `
		UPDATE bets
		SET payout_status = $3, payout_tx_id = COALESCE($4, payout_tx_id), updated_at = NOW()
		WHERE id = $1 AND payout_status = $2
	`, id, from, to, txID)
	if err != nil {
		return false, fmt.Errorf("failed to move payout of bet %d from %s to %s: %w", id, from, to, err)
	}
	return ok, nil
}

func (r *betRepository) AddAmountSent(ctx context.Context, id int64, amount decimal.Decimal) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE bets
		SET amount_sent = amount_sent + $2, updated_at = NOW()
		WHERE id = $1
	`, id, amount)
	if err != nil {
		return fmt.Errorf("failed to add amount sent to bet %d: %w", id, err)
	}
	if !applied(tag) {
		return fmt.Errorf("bet %d not found", id)
	}
	return nil
}

func (r *betRepository) ResetFailedPayouts(ctx context.Context, roundID int64) (int64, error) {
	tag, err := r.q.Exec(ctx, `
		UPDATE bets
		SET payout_status = 'pending', updated_at = NOW()
		WHERE round_id = $1 AND payout_status = 'failed'
	`, roundID)
	if err != nil {
		return 0, fmt.Errorf("failed to reset failed payouts for round %d: %w", roundID, err)
	}
	return tag.RowsAffected(), nil
}
