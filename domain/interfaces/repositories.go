package interfaces

import (
	"context"
	"time"

	"digitlotto/domain/entities"
	"digitlotto/events"

	"github.com/shopspring/decimal"
)

// RoundRepository defines the interface for round data access.
// Status transitions are conditional updates and report whether they applied.
type RoundRepository interface {
	// Create opens the next round numbered after the highest existing one.
	// Returns nil when another open round exists or the number was taken concurrently.
	Create(ctx context.Context, startTime time.Time) (*entities.Round, error)

	GetByID(ctx context.Context, id int64) (*entities.Round, error)
	GetByIDForUpdate(ctx context.Context, id int64) (*entities.Round, error)
	GetByNumber(ctx context.Context, roundNumber int64) (*entities.Round, error)

	// GetCurrentOpen returns the single open round, or nil
	GetCurrentOpen(ctx context.Context) (*entities.Round, error)

	// GetUnsettled returns closed, drawing and paying rounds oldest first
	GetUnsettled(ctx context.Context) ([]*entities.Round, error)

	// GetHistory returns the most recent rounds, newest first
	GetHistory(ctx context.Context, limit int) ([]*entities.Round, error)

	// Close moves open to closed and stamps end time
	Close(ctx context.Context, id int64, endTime time.Time) (bool, error)

	// RecordDraw moves closed to drawing and persists the digit
	RecordDraw(ctx context.Context, id int64, digit int, drawTime time.Time) (bool, error)

	// BeginPaying moves drawing to paying and fixes the house fee
	BeginPaying(ctx context.Context, id int64, houseFee decimal.Decimal) (bool, error)

	// Complete moves paying to completed and fixes the total payout
	Complete(ctx context.Context, id int64, totalPayout decimal.Decimal) (bool, error)

	// IncrementPool adds to the pool only while the round is open
	IncrementPool(ctx context.Context, id int64, amount decimal.Decimal) (bool, error)
}

// BetRepository defines the interface for bet data access
type BetRepository interface {
	Create(ctx context.Context, bet *entities.Bet) error
	GetByID(ctx context.Context, id int64) (*entities.Bet, error)
	GetByInvoiceID(ctx context.Context, invoiceID string) (*entities.Bet, error)
	GetByInvoiceIDForUpdate(ctx context.Context, invoiceID string) (*entities.Bet, error)
	GetByRound(ctx context.Context, roundID int64) ([]*entities.Bet, error)
	GetPaidByRound(ctx context.Context, roundID int64) ([]*entities.Bet, error)
	GetByUser(ctx context.Context, userID string, limit int) ([]*entities.Bet, error)
	GetByPayoutStatus(ctx context.Context, roundID int64, status entities.PayoutStatus) ([]*entities.Bet, error)
	CountByRound(ctx context.Context, roundID int64) (int, error)

	// GetAwaitingPayment returns pending bets with no payment received yet
	GetAwaitingPayment(ctx context.Context) ([]*entities.Bet, error)

	// GetRefundsInFlight returns bets whose refund was prepared but never recorded
	GetRefundsInFlight(ctx context.Context) ([]*entities.Bet, error)

	// CountUnsettledPayouts counts bets of a round with payout pending or sent
	CountUnsettledPayouts(ctx context.Context, roundID int64) (int, error)

	// SumWinnings totals the winnings assigned in a round
	SumWinnings(ctx context.Context, roundID int64) (decimal.Decimal, error)

	SetCorrelationID(ctx context.Context, id int64, correlationID string) error

	// MarkPaid moves pending to paid
	MarkPaid(ctx context.Context, id int64, txID string) (bool, error)

	// MarkRefundPending records the late payment and the refund reason on a pending bet
	MarkRefundPending(ctx context.Context, id int64, paymentTxID, reason string) (bool, error)

	// MarkRefunded moves pending to refunded
	MarkRefunded(ctx context.Context, id int64, refundTxID string) (bool, error)

	// MarkPaymentFailed moves pending to failed
	MarkPaymentFailed(ctx context.Context, id int64, reason string) (bool, error)

	// MarkExpired moves pending to expired when no payment was received
	MarkExpired(ctx context.Context, id int64) (bool, error)

	SetWinnings(ctx context.Context, id int64, winnings decimal.Decimal, payoutStatus entities.PayoutStatus) error

	// TransitionPayout moves the payout status from one value to another
	TransitionPayout(ctx context.Context, id int64, from, to entities.PayoutStatus, txID *string) (bool, error)

	// AddAmountSent accumulates value delivered to the bet's owner
	AddAmountSent(ctx context.Context, id int64, amount decimal.Decimal) error

	// ResetFailedPayouts moves every failed payout of a round back to pending
	ResetFailedPayouts(ctx context.Context, roundID int64) (int64, error)
}

// CommissionRepository defines the interface for the house fee ledger
type CommissionRepository interface {
	Get(ctx context.Context) (*entities.Commission, error)
	GetForUpdate(ctx context.Context) (*entities.Commission, error)

	// Credit atomically increments the accumulated total
	Credit(ctx context.Context, amount decimal.Decimal) error

	// RecordWithdrawal increments the withdrawn total only if the balance covers it
	RecordWithdrawal(ctx context.Context, amount decimal.Decimal, at time.Time) (bool, error)
}

// PaymentLogRepository defines the interface for the append-only audit trail
type PaymentLogRepository interface {
	Record(ctx context.Context, entry *entities.PaymentLogEntry) error
	GetRecent(ctx context.Context, limit int) ([]*entities.PaymentLogEntry, error)
	GetIncomingForInvoice(ctx context.Context, invoiceID string) ([]*entities.PaymentLogEntry, error)
}

// EventPublisher defines the interface for publishing events
type EventPublisher interface {
	Publish(event events.Event) error
}

// TransactionalEventPublisher holds events until the surrounding transaction commits
type TransactionalEventPublisher interface {
	EventPublisher
	Flush(ctx context.Context) error
	Discard()
}
