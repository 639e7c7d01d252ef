package services

import (
	"context"
	"fmt"
	"time"

	"digitlotto/domain/entities"
	"digitlotto/domain/interfaces"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// splitTokenNamespace derives minted token ids from the burned token so a
// resubmitted mint names the same pair
var splitTokenNamespace = uuid.MustParse("4b6f1d0e-93a1-4c53-9d0b-2f6a0c1e7a55")

// SplitExecutor carves an exact payment out of one token.
// A failed split is never resumed; callers plan again from the inventory.
type SplitExecutor struct {
	ledger    interfaces.TokenLedger
	inventory interfaces.TokenInventory
	retrier   ledgerRetrier
}

// NewSplitExecutor creates a split executor
func NewSplitExecutor(ledger interfaces.TokenLedger, inventory interfaces.TokenInventory, maxRetries uint64) *SplitExecutor {
	return &SplitExecutor{
		ledger:    ledger,
		inventory: inventory,
		retrier:   newLedgerRetrier(maxRetries),
	}
}

// Execute burns the token, mints the outgoing and change tokens, persists the
// change, and transfers the outgoing token. Returns the transfer's ledger tx id.
func (e *SplitExecutor) Execute(ctx context.Context, split *entities.TokenSplit, recipient string) (string, error) {
	original := split.Token
	logger := log.WithFields(log.Fields{
		"token_id":     original.ID,
		"split_amount": split.SplitAmount.String(),
		"remainder":    split.Remainder.String(),
		"recipient":    recipient,
	})

	if !split.SplitAmount.IsPositive() || !split.Remainder.IsPositive() ||
		!split.SplitAmount.Add(split.Remainder).Equal(original.Amount) {
		return "", entities.NewValidationError("invalid split of token %s", original.ID)
	}

	if err := e.retrier.submit(ctx, "burn token", func() error {
		return e.ledger.BurnToken(ctx, original)
	}); err != nil {
		return "", err
	}
	logger.Debug("Token burned")

	prepared := prepareMintPair(split)
	minted := prepared
	if err := e.retrier.submit(ctx, "mint split", func() error {
		pair, err := e.ledger.MintSplit(ctx, original, prepared)
		if pair != nil {
			minted = pair
		}
		return err
	}); err != nil {
		return "", err
	}
	logger.Debug("Split tokens minted")

	// The original is gone from the ledger; the change must reach disk before anything else.
	if err := e.inventory.Append(ctx, minted.Change); err != nil {
		return "", fmt.Errorf("failed to persist change token %s: %w", minted.Change.ID, err)
	}
	if err := e.inventory.Append(ctx, minted.Outgoing); err != nil {
		return "", fmt.Errorf("failed to persist outgoing token %s: %w", minted.Outgoing.ID, err)
	}
	if err := e.inventory.Delete(ctx, original.ID); err != nil {
		return "", fmt.Errorf("failed to remove burned token %s: %w", original.ID, err)
	}

	var txID string
	if err := e.retrier.submit(ctx, "transfer split token", func() error {
		id, err := e.ledger.TransferToken(ctx, minted.Outgoing, recipient)
		if id != "" {
			txID = id
		}
		return err
	}); err != nil {
		return "", err
	}

	if err := e.inventory.Delete(ctx, minted.Outgoing.ID); err != nil {
		// Already transferred; the stale record fails on its next spend and is cleaned then.
		logger.WithError(err).Error("Failed to remove transferred token from inventory")
	}

	logger.WithField("tx_id", txID).Info("Split transfer completed")
	return txID, nil
}

func prepareMintPair(split *entities.TokenSplit) *entities.MintedPair {
	original := split.Token
	now := time.Now().UTC()
	return &entities.MintedPair{
		Outgoing: &entities.Token{
			ID:        uuid.NewSHA1(splitTokenNamespace, []byte(original.ID+"/outgoing")).String(),
			CoinID:    original.CoinID,
			Amount:    split.SplitAmount,
			CreatedAt: now,
		},
		Change: &entities.Token{
			ID:        uuid.NewSHA1(splitTokenNamespace, []byte(original.ID+"/change")).String(),
			CoinID:    original.CoinID,
			Amount:    split.Remainder,
			CreatedAt: now,
		},
	}
}
