package services

import (
	"context"
	"errors"
	"testing"

	"digitlotto/domain/entities"
	"digitlotto/domain/testhelpers"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestWallet(ledger *testhelpers.MockTokenLedger, inventory *testhelpers.MemoryTokenInventory) *TokenWallet {
	wallet := NewTokenWallet(ledger, inventory, NewSplitPlanner(DefaultSplitSearchDepth), DefaultLedgerRetries)
	wallet.retrier = instantRetrier()
	wallet.executor.retrier = instantRetrier()
	return wallet
}

func TestTokenWallet_SendValue_ExactToken(t *testing.T) {
	t.Parallel()

	inventory := testhelpers.NewMemoryTokenInventory(tokensOf(500, 1000, 200)...)
	ledger := new(testhelpers.MockTokenLedger)
	ledger.On("TransferToken", mock.Anything, mock.MatchedBy(func(token *entities.Token) bool {
		return token.ID == "token-1"
	}), "winner").Return("tx-1", nil).Once()

	result, err := newTestWallet(ledger, inventory).SendValue(context.Background(), "winner", decimal.NewFromInt(1000), "coin")

	require.NoError(t, err)
	assert.NotEmpty(t, result.TransferID)
	assert.Equal(t, []string{"tx-1"}, result.TxIDs)
	require.Len(t, result.PartsSent, 1)
	assert.True(t, result.PartsSent[0].Equal(decimal.NewFromInt(1000)))
	assert.False(t, inventory.Has("token-1"))
	assert.True(t, inventory.Has("token-0"))
	ledger.AssertExpectations(t)
}

func TestTokenWallet_SendValue_WithSplit(t *testing.T) {
	t.Parallel()

	tokens := tokensOf(100, 200, 1000)
	inventory := testhelpers.NewMemoryTokenInventory(tokens...)
	ledger := new(testhelpers.MockTokenLedger)

	ledger.On("TransferToken", mock.Anything, tokens[0], "winner").Return("tx-a", nil).Once()
	ledger.On("TransferToken", mock.Anything, tokens[1], "winner").Return("tx-b", nil).Once()
	ledger.On("BurnToken", mock.Anything, tokens[2]).Return(nil).Once()
	ledger.On("MintSplit", mock.Anything, tokens[2], mock.Anything).Return(nil, nil).Once()
	ledger.On("TransferToken", mock.Anything, mock.MatchedBy(func(token *entities.Token) bool {
		return token.Amount.Equal(decimal.NewFromInt(200)) && token.ID != tokens[1].ID
	}), "winner").Return("tx-c", nil).Once()

	wallet := newTestWallet(ledger, inventory)
	result, err := wallet.SendValue(context.Background(), "winner", decimal.NewFromInt(500), "coin")

	require.NoError(t, err)
	assert.Equal(t, []string{"tx-a", "tx-b", "tx-c"}, result.TxIDs)

	balance, err := wallet.Balance(context.Background(), "coin")
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(800)), "change left in inventory, got %s", balance)
	ledger.AssertExpectations(t)
}

func TestTokenWallet_SendValue_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		recipient string
		amount    int64
		wantCode  entities.ErrorCode
	}{
		{name: "insufficient funds", recipient: "winner", amount: 10_000, wantCode: entities.ErrCodeInsufficientFunds},
		{name: "zero amount", recipient: "winner", amount: 0, wantCode: entities.ErrCodeValidation},
		{name: "missing recipient", recipient: "", amount: 10, wantCode: entities.ErrCodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ledger := new(testhelpers.MockTokenLedger)
			wallet := newTestWallet(ledger, testhelpers.NewMemoryTokenInventory(tokensOf(100, 200)...))

			_, err := wallet.SendValue(context.Background(), tt.recipient, decimal.NewFromInt(tt.amount), "coin")

			require.Error(t, err)
			assert.True(t, entities.IsCode(err, tt.wantCode), "got %v", err)
			ledger.AssertNotCalled(t, "TransferToken", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestTokenWallet_SendValue_SplitFailureReturnsDeliveredParts(t *testing.T) {
	t.Parallel()

	tokens := tokensOf(100, 200, 1000)
	inventory := testhelpers.NewMemoryTokenInventory(tokens...)
	ledger := new(testhelpers.MockTokenLedger)

	ledger.On("TransferToken", mock.Anything, tokens[0], "winner").Return("tx-a", nil).Once()
	ledger.On("TransferToken", mock.Anything, tokens[1], "winner").Return("tx-b", nil).Once()
	ledger.On("BurnToken", mock.Anything, tokens[2]).Return(errors.New("burn rejected")).Once()

	result, err := newTestWallet(ledger, inventory).SendValue(context.Background(), "winner", decimal.NewFromInt(500), "coin")

	require.Error(t, err)
	assert.True(t, entities.IsCode(err, entities.ErrCodeLedgerFailure), "got %v", err)
	require.NotNil(t, result, "whole tokens already left the wallet")
	assert.Equal(t, []string{"tx-a", "tx-b"}, result.TxIDs)
	assert.True(t, result.Total().Equal(decimal.NewFromInt(300)), "got %s", result.Total())
	assert.False(t, inventory.Has(tokens[0].ID))
	assert.False(t, inventory.Has(tokens[1].ID))
	assert.True(t, inventory.Has(tokens[2].ID))
	ledger.AssertNotCalled(t, "MintSplit", mock.Anything, mock.Anything, mock.Anything)
}

func TestTokenWallet_SendValue_FirstTransferFailureReturnsNothing(t *testing.T) {
	t.Parallel()

	tokens := tokensOf(500, 1000)
	ledger := new(testhelpers.MockTokenLedger)
	ledger.On("TransferToken", mock.Anything, tokens[0], "winner").Return("", errors.New("rejected")).Once()

	result, err := newTestWallet(ledger, testhelpers.NewMemoryTokenInventory(tokens...)).
		SendValue(context.Background(), "winner", decimal.NewFromInt(500), "coin")

	require.Error(t, err)
	assert.Nil(t, result)
	assert.False(t, result.Delivered())
}
