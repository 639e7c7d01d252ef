package testhelpers

import (
	"context"
	"time"

	"digitlotto/domain/entities"
	"digitlotto/events"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

// MockRoundRepository is a mock implementation of RoundRepository
type MockRoundRepository struct {
	mock.Mock
}

func (m *MockRoundRepository) Create(ctx context.Context, startTime time.Time) (*entities.Round, error) {
	args := m.Called(ctx, startTime)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Round), args.Error(1)
}

func (m *MockRoundRepository) GetByID(ctx context.Context, id int64) (*entities.Round, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Round), args.Error(1)
}

func (m *MockRoundRepository) GetByIDForUpdate(ctx context.Context, id int64) (*entities.Round, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Round), args.Error(1)
}

func (m *MockRoundRepository) GetByNumber(ctx context.Context, roundNumber int64) (*entities.Round, error) {
	args := m.Called(ctx, roundNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Round), args.Error(1)
}

func (m *MockRoundRepository) GetCurrentOpen(ctx context.Context) (*entities.Round, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Round), args.Error(1)
}

func (m *MockRoundRepository) GetUnsettled(ctx context.Context) ([]*entities.Round, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.Round), args.Error(1)
}

func (m *MockRoundRepository) GetHistory(ctx context.Context, limit int) ([]*entities.Round, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.Round), args.Error(1)
}

func (m *MockRoundRepository) Close(ctx context.Context, id int64, endTime time.Time) (bool, error) {
	args := m.Called(ctx, id, endTime)
	return args.Bool(0), args.Error(1)
}

func (m *MockRoundRepository) RecordDraw(ctx context.Context, id int64, digit int, drawTime time.Time) (bool, error) {
	args := m.Called(ctx, id, digit, drawTime)
	return args.Bool(0), args.Error(1)
}

func (m *MockRoundRepository) BeginPaying(ctx context.Context, id int64, houseFee decimal.Decimal) (bool, error) {
	args := m.Called(ctx, id, houseFee)
	return args.Bool(0), args.Error(1)
}

func (m *MockRoundRepository) Complete(ctx context.Context, id int64, totalPayout decimal.Decimal) (bool, error) {
	args := m.Called(ctx, id, totalPayout)
	return args.Bool(0), args.Error(1)
}

func (m *MockRoundRepository) IncrementPool(ctx context.Context, id int64, amount decimal.Decimal) (bool, error) {
	args := m.Called(ctx, id, amount)
	return args.Bool(0), args.Error(1)
}

// MockBetRepository is a mock implementation of BetRepository
type MockBetRepository struct {
	mock.Mock
}

func (m *MockBetRepository) Create(ctx context.Context, bet *entities.Bet) error {
	args := m.Called(ctx, bet)
	return args.Error(0)
}

func (m *MockBetRepository) GetByID(ctx context.Context, id int64) (*entities.Bet, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Bet), args.Error(1)
}

func (m *MockBetRepository) GetByInvoiceID(ctx context.Context, invoiceID string) (*entities.Bet, error) {
	args := m.Called(ctx, invoiceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Bet), args.Error(1)
}

func (m *MockBetRepository) GetByInvoiceIDForUpdate(ctx context.Context, invoiceID string) (*entities.Bet, error) {
	args := m.Called(ctx, invoiceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Bet), args.Error(1)
}

func (m *MockBetRepository) GetByRound(ctx context.Context, roundID int64) ([]*entities.Bet, error) {
	args := m.Called(ctx, roundID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.Bet), args.Error(1)
}

func (m *MockBetRepository) GetPaidByRound(ctx context.Context, roundID int64) ([]*entities.Bet, error) {
	args := m.Called(ctx, roundID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.Bet), args.Error(1)
}

func (m *MockBetRepository) GetByUser(ctx context.Context, userID string, limit int) ([]*entities.Bet, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.Bet), args.Error(1)
}

func (m *MockBetRepository) GetByPayoutStatus(ctx context.Context, roundID int64, status entities.PayoutStatus) ([]*entities.Bet, error) {
	args := m.Called(ctx, roundID, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.Bet), args.Error(1)
}

func (m *MockBetRepository) CountByRound(ctx context.Context, roundID int64) (int, error) {
	args := m.Called(ctx, roundID)
	return args.Int(0), args.Error(1)
}

func (m *MockBetRepository) GetAwaitingPayment(ctx context.Context) ([]*entities.Bet, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.Bet), args.Error(1)
}

func (m *MockBetRepository) GetRefundsInFlight(ctx context.Context) ([]*entities.Bet, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.Bet), args.Error(1)
}

func (m *MockBetRepository) CountUnsettledPayouts(ctx context.Context, roundID int64) (int, error) {
	args := m.Called(ctx, roundID)
	return args.Int(0), args.Error(1)
}

func (m *MockBetRepository) SumWinnings(ctx context.Context, roundID int64) (decimal.Decimal, error) {
	args := m.Called(ctx, roundID)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockBetRepository) SetCorrelationID(ctx context.Context, id int64, correlationID string) error {
	args := m.Called(ctx, id, correlationID)
	return args.Error(0)
}

func (m *MockBetRepository) MarkPaid(ctx context.Context, id int64, txID string) (bool, error) {
	args := m.Called(ctx, id, txID)
	return args.Bool(0), args.Error(1)
}

func (m *MockBetRepository) MarkRefundPending(ctx context.Context, id int64, paymentTxID, reason string) (bool, error) {
	args := m.Called(ctx, id, paymentTxID, reason)
	return args.Bool(0), args.Error(1)
}

func (m *MockBetRepository) MarkRefunded(ctx context.Context, id int64, refundTxID string) (bool, error) {
	args := m.Called(ctx, id, refundTxID)
	return args.Bool(0), args.Error(1)
}

func (m *MockBetRepository) MarkPaymentFailed(ctx context.Context, id int64, reason string) (bool, error) {
	args := m.Called(ctx, id, reason)
	return args.Bool(0), args.Error(1)
}

func (m *MockBetRepository) MarkExpired(ctx context.Context, id int64) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockBetRepository) SetWinnings(ctx context.Context, id int64, winnings decimal.Decimal, payoutStatus entities.PayoutStatus) error {
	args := m.Called(ctx, id, winnings, payoutStatus)
	return args.Error(0)
}

func (m *MockBetRepository) TransitionPayout(ctx context.Context, id int64, from, to entities.PayoutStatus, txID *string) (bool, error) {
	args := m.Called(ctx, id, from, to, txID)
	return args.Bool(0), args.Error(1)
}

func (m *MockBetRepository) AddAmountSent(ctx context.Context, id int64, amount decimal.Decimal) error {
	args := m.Called(ctx, id, amount)
	return args.Error(0)
}

func (m *MockBetRepository) ResetFailedPayouts(ctx context.Context, roundID int64) (int64, error) {
	args := m.Called(ctx, roundID)
	return args.Get(0).(int64), args.Error(1)
}

// MockCommissionRepository is a mock implementation of CommissionRepository
type MockCommissionRepository struct {
	mock.Mock
}

func (m *MockCommissionRepository) Get(ctx context.Context) (*entities.Commission, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Commission), args.Error(1)
}

func (m *MockCommissionRepository) GetForUpdate(ctx context.Context) (*entities.Commission, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Commission), args.Error(1)
}

func (m *MockCommissionRepository) Credit(ctx context.Context, amount decimal.Decimal) error {
	args := m.Called(ctx, amount)
	return args.Error(0)
}

func (m *MockCommissionRepository) RecordWithdrawal(ctx context.Context, amount decimal.Decimal, at time.Time) (bool, error) {
	args := m.Called(ctx, amount, at)
	return args.Bool(0), args.Error(1)
}

// MockPaymentLogRepository is a mock implementation of PaymentLogRepository
type MockPaymentLogRepository struct {
	mock.Mock
}

func (m *MockPaymentLogRepository) Record(ctx context.Context, entry *entities.PaymentLogEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockPaymentLogRepository) GetRecent(ctx context.Context, limit int) ([]*entities.PaymentLogEntry, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.PaymentLogEntry), args.Error(1)
}

func (m *MockPaymentLogRepository) GetIncomingForInvoice(ctx context.Context, invoiceID string) ([]*entities.PaymentLogEntry, error) {
	args := m.Called(ctx, invoiceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.PaymentLogEntry), args.Error(1)
}

// MockEventPublisher is a mock implementation of EventPublisher
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(event events.Event) error {
	args := m.Called(event)
	return args.Error(0)
}
