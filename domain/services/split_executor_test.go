package services

import (
	"context"
	"errors"
	"testing"

	"digitlotto/domain/entities"
	"digitlotto/domain/testhelpers"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func instantRetrier() ledgerRetrier {
	return ledgerRetrier{newBackOff: func() backoff.BackOff {
		return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, DefaultLedgerRetries)
	}}
}

func newTestSplitExecutor(ledger *testhelpers.MockTokenLedger, inventory *testhelpers.MemoryTokenInventory) *SplitExecutor {
	executor := NewSplitExecutor(ledger, inventory, DefaultLedgerRetries)
	executor.retrier = instantRetrier()
	return executor
}

func testSplit() *entities.TokenSplit {
	return &entities.TokenSplit{
		Token:       &entities.Token{ID: "big", CoinID: "coin", Amount: decimal.NewFromInt(1000)},
		SplitAmount: decimal.NewFromInt(200),
		Remainder:   decimal.NewFromInt(800),
	}
}

func TestSplitExecutor_Execute_Success(t *testing.T) {
	t.Parallel()

	split := testSplit()
	expected := prepareMintPair(split)
	inventory := testhelpers.NewMemoryTokenInventory(split.Token)
	ledger := new(testhelpers.MockTokenLedger)

	ledger.On("BurnToken", mock.Anything, split.Token).Return(nil).Once()
	ledger.On("MintSplit", mock.Anything, split.Token, mock.AnythingOfType("*entities.MintedPair")).Return(nil, nil).Once()
	ledger.On("TransferToken", mock.Anything, mock.MatchedBy(func(token *entities.Token) bool {
		return token.ID == expected.Outgoing.ID && token.Amount.Equal(decimal.NewFromInt(200))
	}), "recipient").Return("tx-split", nil).Once()

	txID, err := newTestSplitExecutor(ledger, inventory).Execute(context.Background(), split, "recipient")

	require.NoError(t, err)
	assert.Equal(t, "tx-split", txID)
	assert.Equal(t, []string{
		"append:" + expected.Change.ID,
		"append:" + expected.Outgoing.ID,
		"delete:big",
		"delete:" + expected.Outgoing.ID,
	}, inventory.Ops)
	assert.True(t, inventory.Has(expected.Change.ID))
	assert.False(t, inventory.Has("big"))
	ledger.AssertExpectations(t)
}

func TestSplitExecutor_Execute_CommitmentExistsIsSuccess(t *testing.T) {
	t.Parallel()

	split := testSplit()
	inventory := testhelpers.NewMemoryTokenInventory(split.Token)
	ledger := new(testhelpers.MockTokenLedger)

	ledger.On("BurnToken", mock.Anything, split.Token).Return(entities.ErrCommitmentExists).Once()
	ledger.On("MintSplit", mock.Anything, split.Token, mock.Anything).Return(nil, entities.ErrCommitmentExists).Once()
	ledger.On("TransferToken", mock.Anything, mock.Anything, "recipient").Return("", entities.ErrCommitmentExists).Once()

	_, err := newTestSplitExecutor(ledger, inventory).Execute(context.Background(), split, "recipient")

	require.NoError(t, err)
	ledger.AssertExpectations(t)
}

func TestSplitExecutor_Execute_RetriesUnavailableLedger(t *testing.T) {
	t.Parallel()

	split := testSplit()
	inventory := testhelpers.NewMemoryTokenInventory(split.Token)
	ledger := new(testhelpers.MockTokenLedger)

	ledger.On("BurnToken", mock.Anything, split.Token).Return(entities.ErrLedgerUnavailable).Twice()
	ledger.On("BurnToken", mock.Anything, split.Token).Return(nil).Once()
	ledger.On("MintSplit", mock.Anything, split.Token, mock.Anything).Return(nil, nil).Once()
	ledger.On("TransferToken", mock.Anything, mock.Anything, "recipient").Return("tx", nil).Once()

	_, err := newTestSplitExecutor(ledger, inventory).Execute(context.Background(), split, "recipient")

	require.NoError(t, err)
	ledger.AssertNumberOfCalls(t, "BurnToken", 3)
}

func TestSplitExecutor_Execute_Failures(t *testing.T) {
	t.Parallel()

	t.Run("mint rejected leaves inventory untouched", func(t *testing.T) {
		t.Parallel()

		split := testSplit()
		inventory := testhelpers.NewMemoryTokenInventory(split.Token)
		ledger := new(testhelpers.MockTokenLedger)
		ledger.On("BurnToken", mock.Anything, split.Token).Return(nil).Once()
		ledger.On("MintSplit", mock.Anything, split.Token, mock.Anything).Return(nil, errors.New("proof rejected")).Once()

		_, err := newTestSplitExecutor(ledger, inventory).Execute(context.Background(), split, "recipient")

		require.Error(t, err)
		assert.True(t, entities.IsCode(err, entities.ErrCodeLedgerFailure))
		assert.Empty(t, inventory.Ops)
		ledger.AssertNotCalled(t, "TransferToken", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("transfer rejected keeps change and outgoing token", func(t *testing.T) {
		t.Parallel()

		split := testSplit()
		expected := prepareMintPair(split)
		inventory := testhelpers.NewMemoryTokenInventory(split.Token)
		ledger := new(testhelpers.MockTokenLedger)
		ledger.On("BurnToken", mock.Anything, split.Token).Return(nil).Once()
		ledger.On("MintSplit", mock.Anything, split.Token, mock.Anything).Return(nil, nil).Once()
		ledger.On("TransferToken", mock.Anything, mock.Anything, "recipient").Return("", errors.New("recipient unknown")).Once()

		_, err := newTestSplitExecutor(ledger, inventory).Execute(context.Background(), split, "recipient")

		require.Error(t, err)
		assert.True(t, entities.IsCode(err, entities.ErrCodeLedgerFailure))
		assert.True(t, inventory.Has(expected.Change.ID))
		assert.True(t, inventory.Has(expected.Outgoing.ID))
		assert.False(t, inventory.Has("big"))
	})

	t.Run("change not persisted stops before transfer", func(t *testing.T) {
		t.Parallel()

		split := testSplit()
		inventory := testhelpers.NewMemoryTokenInventory(split.Token)
		inventory.FailAppend = errors.New("disk full")
		ledger := new(testhelpers.MockTokenLedger)
		ledger.On("BurnToken", mock.Anything, split.Token).Return(nil).Once()
		ledger.On("MintSplit", mock.Anything, split.Token, mock.Anything).Return(nil, nil).Once()

		_, err := newTestSplitExecutor(ledger, inventory).Execute(context.Background(), split, "recipient")

		require.Error(t, err)
		assert.Contains(t, err.Error(), "change token")
		ledger.AssertNotCalled(t, "TransferToken", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("degenerate split rejected", func(t *testing.T) {
		t.Parallel()

		split := testSplit()
		split.SplitAmount = decimal.NewFromInt(1000)
		split.Remainder = decimal.Zero
		ledger := new(testhelpers.MockTokenLedger)

		_, err := newTestSplitExecutor(ledger, testhelpers.NewMemoryTokenInventory(split.Token)).Execute(context.Background(), split, "recipient")

		require.Error(t, err)
		assert.True(t, entities.IsCode(err, entities.ErrCodeValidation))
		ledger.AssertNotCalled(t, "BurnToken", mock.Anything, mock.Anything)
	})
}

func TestPrepareMintPair_Deterministic(t *testing.T) {
	t.Parallel()

	first := prepareMintPair(testSplit())
	second := prepareMintPair(testSplit())

	assert.Equal(t, first.Outgoing.ID, second.Outgoing.ID)
	assert.Equal(t, first.Change.ID, second.Change.ID)
	assert.NotEqual(t, first.Outgoing.ID, first.Change.ID)
}
