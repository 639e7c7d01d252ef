package entities

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus tracks the incoming payment for a bet
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusExpired  PaymentStatus = "expired"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// PayoutStatus tracks the outgoing winnings for a bet
type PayoutStatus string

const (
	PayoutStatusNone      PayoutStatus = "none"
	PayoutStatusPending   PayoutStatus = "pending"
	PayoutStatusSent      PayoutStatus = "sent"
	PayoutStatusConfirmed PayoutStatus = "confirmed"
	PayoutStatusFailed    PayoutStatus = "failed"
)

// IsTerminal returns true if no further dispatch will happen without operator action
func (s PayoutStatus) IsTerminal() bool {
	return s == PayoutStatusConfirmed || s == PayoutStatusFailed
}

// BetItem is a single stake on one digit
type BetItem struct {
	Digit  int             `json:"digit"`
	Amount decimal.Decimal `json:"amount"` // smallest units
}

// Bet is one placement by a user in a round, possibly covering several digits
type Bet struct {
	ID            int64           `db:"id"`
	RoundID       int64           `db:"round_id"`
	RoundNumber   int64           `db:"round_number"`
	UserID        string          `db:"user_id"`
	UserIdentity  string          `db:"user_identity"` // resolved public key used for payouts and refunds
	Items         []BetItem       `db:"items"`
	TotalAmount   decimal.Decimal `db:"total_amount"`
	InvoiceID     string          `db:"invoice_id"`
	CorrelationID *string         `db:"correlation_id"` // ledger payment request id
	PaymentStatus PaymentStatus   `db:"payment_status"`
	PaymentTxID   *string         `db:"payment_tx_id"`
	RefundTxID    *string         `db:"refund_tx_id"`
	RefundReason  *string         `db:"refund_reason"`
	Winnings      decimal.Decimal `db:"winnings"`
	PayoutStatus  PayoutStatus    `db:"payout_status"`
	PayoutTxID    *string         `db:"payout_tx_id"`
	AmountSent    decimal.Decimal `db:"amount_sent"` // delivered so far by payouts or refunds
	CreatedAt     time.Time       `db:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at"`
}

// OutstandingPayout is the part of the winnings not yet delivered
func (b *Bet) OutstandingPayout() decimal.Decimal {
	outstanding := b.Winnings.Sub(b.AmountSent)
	if outstanding.IsNegative() {
		return decimal.Zero
	}
	return outstanding
}

// StakeOn returns the portion of the bet placed on digit
func (b *Bet) StakeOn(digit int) decimal.Decimal {
	stake := decimal.Zero
	for _, item := range b.Items {
		if item.Digit == digit {
			stake = stake.Add(item.Amount)
		}
	}
	return stake
}

// IsRefundInFlight returns true when a refund was prepared but its outcome was never recorded
func (b *Bet) IsRefundInFlight() bool {
	return b.PaymentStatus == PaymentStatusPending && b.RefundReason != nil
}

// IsPaid returns true once the payment has been reconciled into the pool
func (b *Bet) IsPaid() bool {
	return b.PaymentStatus == PaymentStatusPaid
}

// HasPositiveWinnings returns true if the bet is owed a payout
func (b *Bet) HasPositiveWinnings() bool {
	return b.Winnings.IsPositive()
}

// ValidateBetItems checks digits and amounts and returns the bet total.
// Nothing is persisted when this fails.
func ValidateBetItems(items []BetItem) (decimal.Decimal, error) {
	if len(items) == 0 {
		return decimal.Zero, NewValidationError("bet must contain at least one item")
	}

	total := decimal.Zero
	for i, item := range items {
		if item.Digit < 0 || item.Digit >= DigitCount {
			return decimal.Zero, NewValidationError("item %d: digit %d out of range 0-9", i, item.Digit)
		}
		if !item.Amount.IsPositive() {
			return decimal.Zero, NewValidationError("item %d: amount must be positive", i)
		}
		if !item.Amount.IsInteger() {
			return decimal.Zero, NewValidationError("item %d: amount must be whole smallest units", i)
		}
		total = total.Add(item.Amount)
	}
	return total, nil
}
