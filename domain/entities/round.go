package entities

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// RoundStatus represents the lifecycle state of a round
type RoundStatus string

const (
	RoundStatusOpen      RoundStatus = "open"
	RoundStatusClosed    RoundStatus = "closed"
	RoundStatusDrawing   RoundStatus = "drawing"
	RoundStatusPaying    RoundStatus = "paying"
	RoundStatusCompleted RoundStatus = "completed"
)

// DigitCount is the number of drawable digits (0-9)
const DigitCount = 10

// Round represents a single lottery round
type Round struct {
	ID           int64           `db:"id"`
	RoundNumber  int64           `db:"round_number"`
	Status       RoundStatus     `db:"status"`
	WinningDigit *int            `db:"winning_digit"` // NULL until drawn
	TotalPool    decimal.Decimal `db:"total_pool"`
	TotalPayout  decimal.Decimal `db:"total_payout"`
	HouseFee     decimal.Decimal `db:"house_fee"`
	StartTime    time.Time       `db:"start_time"`
	EndTime      *time.Time      `db:"end_time"`  // set on close
	DrawTime     *time.Time      `db:"draw_time"` // set on draw
	CreatedAt    time.Time       `db:"created_at"`
}

// IsOpen returns true if the round accepts bets and payment confirmations
func (r *Round) IsOpen() bool {
	return r.Status == RoundStatusOpen
}

// IsCompleted returns true if settlement has finished
func (r *Round) IsCompleted() bool {
	return r.Status == RoundStatusCompleted
}

// NeedsSettlement returns true for rounds stuck between close and completion
func (r *Round) NeedsSettlement() bool {
	switch r.Status {
	case RoundStatusClosed, RoundStatusDrawing, RoundStatusPaying:
		return true
	}
	return false
}

// RemainingTime returns how long the round has left to run, floored at zero
func (r *Round) RemainingTime(duration time.Duration, now time.Time) time.Duration {
	remaining := duration - now.Sub(r.StartTime)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// HasWinningDigit returns true once the draw has been persisted
func (r *Round) HasWinningDigit() bool {
	return r.WinningDigit != nil
}

// GenerateWinningDigit draws a uniformly random digit 0-9 from crypto/rand
func GenerateWinningDigit() (int, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(DigitCount))
	if err != nil {
		return 0, fmt.Errorf("failed to generate winning digit: %w", err)
	}
	return int(n.Int64()), nil
}
