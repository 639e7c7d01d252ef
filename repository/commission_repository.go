package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"digitlotto/database"
	"digitlotto/domain/entities"
	"digitlotto/domain/interfaces"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

type commissionRepository struct {
	q Queryable
}

// NewCommissionRepository creates a new commission repository
func NewCommissionRepository(db *database.DB) interfaces.CommissionRepository {
	return &commissionRepository{q: db.Pool}
}

// newCommissionRepositoryWithTx creates a new commission repository with a transaction
func newCommissionRepositoryWithTx(tx Queryable) interfaces.CommissionRepository {
	return &commissionRepository{q: tx}
}

func (r *commissionRepository) get(ctx context.Context, query string) (*entities.Commission, error) {
	var commission entities.Commission
	err := r.q.QueryRow(ctx, query).Scan(
		&commission.TotalAccumulated,
		&commission.TotalWithdrawn,
		&commission.LastWithdrawalAt,
		&commission.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &commission, nil
}

func (r *commissionRepository) Get(ctx context.Context) (*entities.Commission, error) {
	commission, err := r.get(ctx, `
		SELECT total_accumulated, total_withdrawn, last_withdrawal_at, updated_at
		FROM commission WHERE id = 1
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get commission: %w", err)
	}
	return commission, nil
}

func (r *commissionRepository) GetForUpdate(ctx context.Context) (*entities.Commission, error) {
	commission, err := r.get(ctx, `
		SELECT total_accumulated, total_withdrawn, last_withdrawal_at, updated_at
		FROM commission WHERE id = 1
		FOR UPDATE
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get commission for update: %w", err)
	}
	return commission, nil
}

func (r *commissionRepository) Credit(ctx context.Context, amount decimal.Decimal) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE commission
		SET total_accumulated = total_accumulated + $1, updated_at = NOW()
		WHERE id = 1
	`, amount)
	if err != nil {
		return fmt.Errorf("failed to credit commission: %w", err)
	}
	if !applied(tag) {
		return fmt.Errorf("commission row missing")
	}
	return nil
}

func (r *commissionRepository) RecordWithdrawal(ctx context.Context, amount decimal.Decimal, at time.Time) (bool, error) {
	tag, err := r.q.Exec(ctx, `
		UPDATE commission
		SET total_withdrawn = total_withdrawn + $1, last_withdrawal_at = $2, updated_at = NOW()
		WHERE id = 1 AND total_accumulated - total_withdrawn >= $1
	`, amount, at)
	if err != nil {
		return false, fmt.Errorf("failed to record commission withdrawal: %w", err)
	}
	return applied(tag), nil
}
