package entities

import (
	"time"

	"github.com/shopspring/decimal"
)

// Commission is the singleton house fee ledger
type Commission struct {
	TotalAccumulated decimal.Decimal `db:"total_accumulated"`
	TotalWithdrawn   decimal.Decimal `db:"total_withdrawn"`
	LastWithdrawalAt *time.Time      `db:"last_withdrawal_at"`
	UpdatedAt        time.Time       `db:"updated_at"`
}

// Available returns the withdrawable balance
func (c *Commission) Available() decimal.Decimal {
	return c.TotalAccumulated.Sub(c.TotalWithdrawn)
}

// WithdrawalAmount resolves how much a withdrawal request takes.
// A nil request withdraws everything available.
func (c *Commission) WithdrawalAmount(requested *decimal.Decimal) (decimal.Decimal, error) {
	available := c.Available()
	if !available.IsPositive() {
		return decimal.Zero, NewNoBalanceError("no commission available to withdraw")
	}
	if requested == nil {
		return available, nil
	}
	if !requested.IsPositive() {
		return decimal.Zero, NewValidationError("withdrawal amount must be positive")
	}
	return decimal.Min(*requested, available), nil
}
