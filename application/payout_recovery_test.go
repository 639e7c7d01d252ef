package application_test

import (
	"context"
	"testing"

	"digitlotto/domain/entities"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayoutDispatcher_PartialTransferIsNotResent(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	env := setupTestEnv(t, 7)
	ctx := context.Background()

	placed := env.placeAndPay(t, "alice", stake(7, 100))
	env.placeAndPay(t, "bob", stake(2, 100))

	env.wallet.capNext("pk-alice", units(120))
	require.NoError(t, env.scheduler.CloseAndSettle(ctx, placed.Round.ID))

	bet := env.userBet(t, "alice")
	assert.Equal(t, entities.PayoutStatusFailed, bet.PayoutStatus)
	assert.True(t, bet.AmountSent.Equal(units(120)), "got %s", bet.AmountSent)
	assert.True(t, bet.OutstandingPayout().Equal(units(75)))

	summary, err := env.ops.ReprocessPayouts(ctx, placed.Round.RoundNumber)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Sent)

	bet = env.userBet(t, "alice")
	assert.Equal(t, entities.PayoutStatusConfirmed, bet.PayoutStatus)
	assert.True(t, bet.AmountSent.Equal(units(195)))

	transfers := env.wallet.transfers()
	require.Len(t, transfers, 2)
	assert.True(t, transfers[0].Amount.Equal(units(120)))
	assert.True(t, transfers[1].Amount.Equal(units(75)))

	entries, err := env.ops.GetPaymentLog(ctx, 10)
	require.NoError(t, err)
	var logged []string
	for _, entry := range entries {
		if entry.Purpose == entities.PaymentPurposePayout {
			logged = append(logged, entry.Amount.String())
		}
	}
	assert.ElementsMatch(t, []string{"120", "75"}, logged)
}

func TestPayoutDispatcher_UnrecordedPayoutIsConfirmedOnNextPass(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	env := setupTestEnv(t, 7)
	ctx := context.Background()

	placed := env.placeAndPay(t, "alice", stake(7, 100))
	env.placeAndPay(t, "bob", stake(2, 100))

	// The database drops right after the value leaves the wallet
	env.wallet.beforeNextSend(func() { env.uows.failCommits(testWriteRetries + 1) })

	err := env.scheduler.CloseAndSettle(ctx, placed.Round.ID)
	require.Error(t, err)
	assert.Equal(t, 1, env.dispatcher.HeldOutcomes())
	assert.Equal(t, entities.PayoutStatusSent, env.userBet(t, "alice").PayoutStatus)

	require.NoError(t, env.scheduler.SettleRound(ctx, placed.Round.ID))

	assert.Zero(t, env.dispatcher.HeldOutcomes())
	bet := env.userBet(t, "alice")
	assert.Equal(t, entities.PayoutStatusConfirmed, bet.PayoutStatus)
	assert.True(t, bet.AmountSent.Equal(units(195)))

	round, err := env.ops.GetRound(ctx, placed.Round.RoundNumber)
	require.NoError(t, err)
	assert.Equal(t, entities.RoundStatusCompleted, round.Status)
	assert.Len(t, env.wallet.transfers(), 1, "payout is never sent twice")
}

func TestOperations_WithdrawCommission_PartialTransfer(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	env := setupTestEnv(t, 7)
	ctx := context.Background()

	placed := env.placeAndPay(t, "alice", stake(7, 100))
	env.placeAndPay(t, "bob", stake(1, 300))
	require.NoError(t, env.scheduler.CloseAndSettle(ctx, placed.Round.ID))

	env.wallet.capNext("pk-operator", units(4))
	result, err := env.ops.WithdrawCommission(ctx, nil)
	assert.True(t, entities.IsCode(err, entities.ErrCodeLedgerFailure), "got %v", err)
	require.NotNil(t, result)
	assert.True(t, result.Total().Equal(units(4)))

	commission, err := env.ops.GetCommission(ctx)
	require.NoError(t, err)
	assert.True(t, commission.TotalWithdrawn.Equal(units(4)))
	assert.True(t, commission.Available().Equal(units(11)))
}
