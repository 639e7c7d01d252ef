package repository

import (
	"context"
	"testing"
	"time"

	"digitlotto/domain/entities"
	"digitlotto/events"
	"digitlotto/repository/testutil"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommissionRepository_CreditAndWithdraw(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)

	repo := NewCommissionRepository(testDB.DB)
	ctx := context.Background()
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	commission, err := repo.Get(ctx)
	require.NoError(t, err)
	require.NotNil(t, commission)
	assert.True(t, commission.Available().IsZero())

	require.NoError(t, repo.Credit(ctx, decimal.NewFromInt(70)))
	require.NoError(t, repo.Credit(ctx, decimal.NewFromInt(30)))

	ok, err := repo.RecordWithdrawal(ctx, decimal.NewFromInt(101), at)
	require.NoError(t, err)
	assert.False(t, ok, "cannot withdraw more than accumulated")

	ok, err = repo.RecordWithdrawal(ctx, decimal.NewFromInt(60), at)
	require.NoError(t, err)
	assert.True(t, ok)

	commission, err = repo.Get(ctx)
	require.NoError(t, err)
	assert.True(t, commission.TotalAccumulated.Equal(decimal.NewFromInt(100)))
	assert.True(t, commission.TotalWithdrawn.Equal(decimal.NewFromInt(60)))
	assert.True(t, commission.Available().Equal(decimal.NewFromInt(40)))
	require.NotNil(t, commission.LastWithdrawalAt)
	assert.True(t, at.Equal(*commission.LastWithdrawalAt))
}

func TestCommissionRepository_WithdrawalBounds(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)
	repo := NewCommissionRepository(testDB.DB)
	at := time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		credits  []int64
		withdraw int64
		applied  bool
	}{
		{name: "nothing accumulated", withdraw: 1, applied: false},
		{name: "exact balance", credits: []int64{5, 10}, withdraw: 15, applied: true},
		{name: "one unit over", credits: []int64{15}, withdraw: 16, applied: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testDB.Truncate(t)
			ctx := context.Background()

			for _, credit := range tt.credits {
				require.NoError(t, repo.Credit(ctx, decimal.NewFromInt(credit)))
			}

			ok, err := repo.RecordWithdrawal(ctx, decimal.NewFromInt(tt.withdraw), at)
			require.NoError(t, err)
			assert.Equal(t, tt.applied, ok)

			commission, err := repo.Get(ctx)
			require.NoError(t, err)
			assert.True(t, commission.TotalWithdrawn.LessThanOrEqual(commission.TotalAccumulated))
		})
	}
}

func TestPaymentLogRepository(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)

	repo := NewPaymentLogRepository(testDB.DB)
	ctx := context.Background()

	incoming := testutil.CreateTestPaymentLog(entities.PaymentPurposeBetPayment, 100)
	incoming.Metadata = map[string]any{"invoice_id": "inv-1"}
	require.NoError(t, repo.Record(ctx, incoming))
	assert.NotZero(t, incoming.ID)

	outgoing := testutil.CreateTestPaymentLog(entities.PaymentPurposePayout, 90)
	require.NoError(t, repo.Record(ctx, outgoing))

	entries, err := repo.GetRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, outgoing.ID, entries[0].ID)
	assert.Equal(t, entities.PaymentDirectionOutgoing, entries[0].Direction)
	assert.Empty(t, entries[0].Metadata)
	assert.Equal(t, "inv-1", entries[1].Metadata["invoice_id"])
	assert.True(t, entries[1].Amount.Equal(decimal.NewFromInt(100)))

	second := testutil.CreateTestPaymentLog(entities.PaymentPurposeBetPayment, 20)
	second.Metadata = map[string]any{"invoice_id": "inv-1"}
	require.NoError(t, repo.Record(ctx, second))
	other := testutil.CreateTestPaymentLog(entities.PaymentPurposeBetPayment, 30)
	other.Metadata = map[string]any{"invoice_id": "inv-2"}
	require.NoError(t, repo.Record(ctx, other))

	credited, err := repo.GetIncomingForInvoice(ctx, "inv-1")
	require.NoError(t, err)
	require.Len(t, credited, 2)
	assert.Equal(t, incoming.ID, credited[0].ID, "oldest first")
	assert.Equal(t, second.ID, credited[1].ID)

	none, err := repo.GetIncomingForInvoice(ctx, "inv-missing")
	require.NoError(t, err)
	assert.Empty(t, none)
}

type recordingPublisher struct {
	pending   []events.Event
	flushed   []events.Event
	discarded int
}

func (p *recordingPublisher) Publish(event events.Event) error {
	p.pending = append(p.pending, event)
	return nil
}

func (p *recordingPublisher) Flush(ctx context.Context) error {
	p.flushed = append(p.flushed, p.pending...)
	p.pending = nil
	return nil
}

func (p *recordingPublisher) Discard() {
	p.pending = nil
	p.discarded++
}

func TestUnitOfWork_CommitAndRollback(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)

	factory := NewUnitOfWorkFactory(testDB.DB)
	roundRepo := NewRoundRepository(testDB.DB)
	ctx := context.Background()

	t.Run("rollback discards writes and events", func(t *testing.T) {
		publisher := &recordingPublisher{}
		uow := factory.CreateWithPublisher(publisher)
		require.NoError(t, uow.Begin(ctx))

		round, err := uow.RoundRepository().Create(ctx, time.Now().UTC())
		require.NoError(t, err)
		require.NotNil(t, round)
		require.NoError(t, uow.EventBus().Publish(events.RoundOpenedEvent{RoundID: round.ID, RoundNumber: round.RoundNumber}))

		require.NoError(t, uow.Rollback())

		open, err := roundRepo.GetCurrentOpen(ctx)
		require.NoError(t, err)
		assert.Nil(t, open)
		assert.Empty(t, publisher.flushed)
		assert.Equal(t, 1, publisher.discarded)
	})

	t.Run("commit persists writes and flushes events", func(t *testing.T) {
		publisher := &recordingPublisher{}
		uow := factory.CreateWithPublisher(publisher)
		require.NoError(t, uow.Begin(ctx))

		round, err := uow.RoundRepository().Create(ctx, time.Now().UTC())
		require.NoError(t, err)
		require.NotNil(t, round)
		require.NoError(t, uow.EventBus().Publish(events.RoundOpenedEvent{RoundID: round.ID, RoundNumber: round.RoundNumber}))

		require.NoError(t, uow.Commit())
		require.NoError(t, uow.Rollback(), "rollback after commit is a no-op")

		open, err := roundRepo.GetCurrentOpen(ctx)
		require.NoError(t, err)
		require.NotNil(t, open)
		assert.Equal(t, round.ID, open.ID)
		assert.Len(t, publisher.flushed, 1)
		assert.Zero(t, publisher.discarded)
	})

	t.Run("repositories require begin", func(t *testing.T) {
		uow := factory.CreateWithPublisher(&recordingPublisher{})
		assert.Panics(t, func() { uow.BetRepository() })
	})
}
