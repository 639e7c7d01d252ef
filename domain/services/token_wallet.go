package services

import (
	"context"
	"fmt"
	"sync"

	"digitlotto/domain/entities"
	"digitlotto/domain/interfaces"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// TokenWallet pays out of the house token inventory. It is the only writer of
// the inventory, so sends are serialized.
type TokenWallet struct {
	mu        sync.Mutex
	ledger    interfaces.TokenLedger
	inventory interfaces.TokenInventory
	planner   *SplitPlanner
	executor  *SplitExecutor
	retrier   ledgerRetrier
}

// NewTokenWallet creates a wallet over the given ledger and inventory
func NewTokenWallet(ledger interfaces.TokenLedger, inventory interfaces.TokenInventory, planner *SplitPlanner, maxRetries uint64) *TokenWallet {
	return &TokenWallet{
		ledger:    ledger,
		inventory: inventory,
		planner:   planner,
		executor:  NewSplitExecutor(ledger, inventory, maxRetries),
		retrier:   newLedgerRetrier(maxRetries),
	}
}

// SendValue delivers exactly amount to recipient. The plan is always derived
// from the inventory on disk. When a send fails after some parts reached the
// recipient, the partial result is returned alongside the error.
func (w *TokenWallet) SendValue(ctx context.Context, recipient string, amount decimal.Decimal, coinID string) (*entities.TransferResult, error) {
	if !amount.IsPositive() || !amount.IsInteger() {
		return nil, entities.NewValidationError("send amount must be a positive whole number of smallest units")
	}
	if recipient == "" {
		return nil, entities.NewValidationError("recipient is required")
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	tokens, err := w.inventory.List(ctx, coinID)
	if err != nil {
		return nil, fmt.Errorf("failed to list token inventory: %w", err)
	}

	plan := w.planner.Plan(amount, tokens)
	if plan == nil {
		return nil, entities.NewInsufficientFundsError("inventory cannot cover %s", amount.String())
	}

	result := &entities.TransferResult{TransferID: uuid.NewString()}
	logger := log.WithFields(log.Fields{
		"transfer_id": result.TransferID,
		"recipient":   recipient,
		"amount":      amount.String(),
		"direct":      len(plan.Direct),
		"split":       plan.RequiresSplit(),
	})
	logger.Info("Sending value")

	for _, token := range plan.Direct {
		var txID string
		if err := w.retrier.submit(ctx, "transfer token", func() error {
			id, err := w.ledger.TransferToken(ctx, token, recipient)
			if id != "" {
				txID = id
			}
			return err
		}); err != nil {
			logger.WithError(err).WithField("delivered", result.Total().String()).Error("Whole token transfer failed")
			return partialResult(result), err
		}

		if err := w.inventory.Delete(ctx, token.ID); err != nil {
			logger.WithError(err).WithField("token_id", token.ID).Error("Failed to remove transferred token from inventory")
		}

		result.PartsSent = append(result.PartsSent, token.Amount)
		result.TxIDs = append(result.TxIDs, txID)
	}

	if plan.RequiresSplit() {
		txID, err := w.executor.Execute(ctx, plan.Split, recipient)
		if err != nil {
			logger.WithError(err).WithField("delivered", result.Total().String()).Error("Split transfer failed")
			return partialResult(result), err
		}
		result.PartsSent = append(result.PartsSent, plan.Split.SplitAmount)
		result.TxIDs = append(result.TxIDs, txID)
	}

	logger.WithField("parts", len(result.PartsSent)).Info("Value sent")
	return result, nil
}

func partialResult(result *entities.TransferResult) *entities.TransferResult {
	if !result.Delivered() {
		return nil
	}
	return result
}

// Balance totals the spendable inventory for a coin
func (w *TokenWallet) Balance(ctx context.Context, coinID string) (decimal.Decimal, error) {
	tokens, err := w.inventory.List(ctx, coinID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to list token inventory: %w", err)
	}

	total := decimal.Zero
	for _, token := range tokens {
		total = total.Add(token.Amount)
	}
	return total, nil
}
