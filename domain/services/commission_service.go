package services

import (
	"context"
	"fmt"
	"time"

	"digitlotto/domain/entities"
	"digitlotto/domain/interfaces"
	"digitlotto/events"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// CommissionService manages the accumulated house fee
type CommissionService struct {
	commissionRepo interfaces.CommissionRepository
	eventPublisher interfaces.EventPublisher
}

// NewCommissionService creates a new commission service
func NewCommissionService(commissionRepo interfaces.CommissionRepository, eventPublisher interfaces.EventPublisher) *CommissionService {
	return &CommissionService{
		commissionRepo: commissionRepo,
		eventPublisher: eventPublisher,
	}
}

// Get returns the commission ledger
func (s *CommissionService) Get(ctx context.Context) (*entities.Commission, error) {
	commission, err := s.commissionRepo.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get commission: %w", err)
	}
	if commission == nil {
		return nil, entities.NewNotFoundError("commission ledger not initialised")
	}
	return commission, nil
}

// PrepareWithdrawal locks the ledger and resolves how much can be withdrawn.
// A nil request withdraws the whole available balance.
func (s *CommissionService) PrepareWithdrawal(ctx context.Context, requested *decimal.Decimal) (decimal.Decimal, error) {
	commission, err := s.commissionRepo.GetForUpdate(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to lock commission: %w", err)
	}
	if commission == nil {
		return decimal.Zero, entities.NewNotFoundError("commission ledger not initialised")
	}

	return commission.WithdrawalAmount(requested)
}

// RecordWithdrawal books a withdrawal once the value has left the wallet
func (s *CommissionService) RecordWithdrawal(ctx context.Context, amount decimal.Decimal, recipient string, result *entities.TransferResult, at time.Time) error {
	recorded, err := s.commissionRepo.RecordWithdrawal(ctx, amount, at)
	if err != nil {
		return fmt.Errorf("failed to record withdrawal: %w", err)
	}
	if !recorded {
		return entities.NewNoBalanceError("commission balance no longer covers %s", amount)
	}

	if err := s.eventPublisher.Publish(events.CommissionWithdrawnEvent{
		Amount:    amount,
		Recipient: recipient,
		TxID:      result.TransferID,
	}); err != nil {
		return fmt.Errorf("failed to publish commission withdrawn event: %w", err)
	}

	log.WithFields(log.Fields{
		"amount":      amount.String(),
		"recipient":   recipient,
		"transfer_id": result.TransferID,
	}).Info("Commission withdrawn")

	return nil
}
