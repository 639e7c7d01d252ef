package entities

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRound_RemainingTime(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	round := &Round{StartTime: start}

	assert.Equal(t, time.Hour, round.RemainingTime(time.Hour, start))
	assert.Equal(t, 20*time.Minute, round.RemainingTime(time.Hour, start.Add(40*time.Minute)))
	assert.Equal(t, time.Duration(0), round.RemainingTime(time.Hour, start.Add(2*time.Hour)))
}

func TestRound_NeedsSettlement(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status RoundStatus
		want   bool
	}{
		{RoundStatusOpen, false},
		{RoundStatusClosed, true},
		{RoundStatusDrawing, true},
		{RoundStatusPaying, true},
		{RoundStatusCompleted, false},
	}

	for _, tt := range tests {
		round := &Round{Status: tt.status}
		assert.Equal(t, tt.want, round.NeedsSettlement(), string(tt.status))
	}
}

func TestGenerateWinningDigit(t *testing.T) {
	t.Parallel()

	seen := make(map[int]bool)
	for i := 0; i < 500; i++ {
		digit, err := GenerateWinningDigit()
		require.NoError(t, err)
		require.GreaterOrEqual(t, digit, 0)
		require.Less(t, digit, DigitCount)
		seen[digit] = true
	}
	// 500 draws missing a digit has probability ~10 * 0.9^500
	assert.Len(t, seen, DigitCount)
}

func TestCommission_WithdrawalAmount(t *testing.T) {
	t.Parallel()

	commission := &Commission{
		TotalAccumulated: decimal.NewFromInt(100),
		TotalWithdrawn:   decimal.NewFromInt(40),
	}
	assert.True(t, commission.Available().Equal(decimal.NewFromInt(60)))

	all, err := commission.WithdrawalAmount(nil)
	require.NoError(t, err)
	assert.True(t, all.Equal(decimal.NewFromInt(60)))

	requested := decimal.NewFromInt(25)
	partial, err := commission.WithdrawalAmount(&requested)
	require.NoError(t, err)
	assert.True(t, partial.Equal(decimal.NewFromInt(25)))

	tooMuch := decimal.NewFromInt(1000)
	capped, err := commission.WithdrawalAmount(&tooMuch)
	require.NoError(t, err)
	assert.True(t, capped.Equal(decimal.NewFromInt(60)))

	empty := &Commission{TotalAccumulated: decimal.NewFromInt(10), TotalWithdrawn: decimal.NewFromInt(10)}
	_, err = empty.WithdrawalAmount(nil)
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrCodeNoBalance))
}

func TestIsCode_Wrapped(t *testing.T) {
	t.Parallel()

	inner := NewStateConflictError("round %d is %s", 3, RoundStatusClosed)
	wrapped := fmt.Errorf("failed to close round: %w", inner)

	assert.True(t, IsCode(wrapped, ErrCodeStateConflict))
	assert.False(t, IsCode(wrapped, ErrCodeNotFound))
	assert.False(t, IsCode(errors.New("plain"), ErrCodeStateConflict))

	ledgerErr := WrapLedgerFailure("transfer rejected", ErrCommitmentExists)
	assert.ErrorIs(t, ledgerErr, ErrCommitmentExists)
	assert.Contains(t, ledgerErr.Error(), "LEDGER_FAILURE")
}
