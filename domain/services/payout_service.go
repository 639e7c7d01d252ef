package services

import (
	"context"
	"fmt"

	"digitlotto/domain/entities"
	"digitlotto/domain/interfaces"
	"digitlotto/events"

	log "github.com/sirupsen/logrus"
)

// PayoutService tracks the payout state of winning bets and completes rounds
type PayoutService struct {
	roundRepo      interfaces.RoundRepository
	betRepo        interfaces.BetRepository
	eventPublisher interfaces.EventPublisher
}

// NewPayoutService creates a new payout service
func NewPayoutService(
	roundRepo interfaces.RoundRepository,
	betRepo interfaces.BetRepository,
	eventPublisher interfaces.EventPublisher,
) *PayoutService {
	return &PayoutService{
		roundRepo:      roundRepo,
		betRepo:        betRepo,
		eventPublisher: eventPublisher,
	}
}

// PendingPayouts returns winning bets of a round not yet dispatched
func (s *PayoutService) PendingPayouts(ctx context.Context, roundID int64) ([]*entities.Bet, error) {
	bets, err := s.betRepo.GetByPayoutStatus(ctx, roundID, entities.PayoutStatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending payouts: %w", err)
	}
	return bets, nil
}

// BeginPayout claims a pending payout for dispatch. Returns false if another
// worker claimed it first.
func (s *PayoutService) BeginPayout(ctx context.Context, bet *entities.Bet) (bool, error) {
	claimed, err := s.betRepo.TransitionPayout(ctx, bet.ID, entities.PayoutStatusPending, entities.PayoutStatusSent, nil)
	if err != nil {
		return false, fmt.Errorf("failed to claim payout for bet %d: %w", bet.ID, err)
	}
	return claimed, nil
}

// RecordPayoutSent confirms a dispatched payout. A nil result confirms a
// payout whose value was fully delivered by earlier attempts.
func (s *PayoutService) RecordPayoutSent(ctx context.Context, bet *entities.Bet, result *entities.TransferResult) error {
	var txID string
	if result != nil {
		txID = result.TransferID
		if err := s.addAmountSent(ctx, bet, result); err != nil {
			return err
		}
	}
	confirmed, err := s.betRepo.TransitionPayout(ctx, bet.ID, entities.PayoutStatusSent, entities.PayoutStatusConfirmed, &txID)
	if err != nil {
		return fmt.Errorf("failed to confirm payout for bet %d: %w", bet.ID, err)
	}
	if !confirmed {
		return entities.NewStateConflictError("payout for bet %d is not in %s", bet.ID, entities.PayoutStatusSent)
	}

	if err := s.eventPublisher.Publish(events.PayoutSentEvent{
		BetID:       bet.ID,
		RoundNumber: bet.RoundNumber,
		Recipient:   bet.UserIdentity,
		Amount:      bet.Winnings,
		TxID:        txID,
	}); err != nil {
		return fmt.Errorf("failed to publish payout sent event: %w", err)
	}

	log.WithFields(log.Fields{
		"bet_id":       bet.ID,
		"round_number": bet.RoundNumber,
		"amount":       bet.Winnings.String(),
		"transfer_id":  txID,
	}).Info("Payout sent")

	return nil
}

// RecordPayoutFailure parks a dispatched payout as failed for operator review.
// Parts in partial already reached the winner and are not sent again.
func (s *PayoutService) RecordPayoutFailure(ctx context.Context, bet *entities.Bet, partial *entities.TransferResult, cause error) error {
	if err := s.addAmountSent(ctx, bet, partial); err != nil {
		return err
	}
	failed, err := s.betRepo.TransitionPayout(ctx, bet.ID, entities.PayoutStatusSent, entities.PayoutStatusFailed, nil)
	if err != nil {
		return fmt.Errorf("failed to mark payout failed for bet %d: %w", bet.ID, err)
	}
	if !failed {
		return entities.NewStateConflictError("payout for bet %d is not in %s", bet.ID, entities.PayoutStatusSent)
	}

	reason := "unknown"
	if cause != nil {
		reason = cause.Error()
	}

	if err := s.eventPublisher.Publish(events.PayoutFailedEvent{
		BetID:       bet.ID,
		RoundNumber: bet.RoundNumber,
		Amount:      bet.Winnings,
		Reason:      reason,
	}); err != nil {
		return fmt.Errorf("failed to publish payout failed event: %w", err)
	}

	log.WithFields(log.Fields{
		"bet_id":       bet.ID,
		"round_number": bet.RoundNumber,
		"amount":       bet.Winnings.String(),
		"delivered":    bet.AmountSent.String(),
		"reason":       reason,
	}).Error("Payout failed")

	return nil
}

func (s *PayoutService) addAmountSent(ctx context.Context, bet *entities.Bet, result *entities.TransferResult) error {
	if !result.Delivered() {
		return nil
	}
	total := result.Total()
	if err := s.betRepo.AddAmountSent(ctx, bet.ID, total); err != nil {
		return fmt.Errorf("failed to record amount sent for bet %d: %w", bet.ID, err)
	}
	bet.AmountSent = bet.AmountSent.Add(total)
	return nil
}

// FailInFlightPayouts marks payouts stuck in sent as failed. A payout in sent
// after a restart may or may not have reached the ledger, so it is never resent.
func (s *PayoutService) FailInFlightPayouts(ctx context.Context, roundID int64) (int, error) {
	bets, err := s.betRepo.GetByPayoutStatus(ctx, roundID, entities.PayoutStatusSent)
	if err != nil {
		return 0, fmt.Errorf("failed to get in-flight payouts: %w", err)
	}

	for _, bet := range bets {
		if err := s.RecordPayoutFailure(ctx, bet, nil, fmt.Errorf("outcome unknown after restart")); err != nil {
			return 0, err
		}
	}
	return len(bets), nil
}

// CompleteIfSettled completes a paying round once no payout is pending or sent.
// Returns true if the round is completed.
func (s *PayoutService) CompleteIfSettled(ctx context.Context, roundID int64) (bool, error) {
	round, err := s.roundRepo.GetByIDForUpdate(ctx, roundID)
	if err != nil {
		return false, fmt.Errorf("failed to get round: %w", err)
	}
	if round == nil {
		return false, entities.NewNotFoundError("round %d not found", roundID)
	}
	if round.IsCompleted() {
		return true, nil
	}
	if round.Status != entities.RoundStatusPaying {
		return false, entities.NewStateConflictError("round %d is %s, expected %s", round.RoundNumber, round.Status, entities.RoundStatusPaying)
	}

	unsettled, err := s.betRepo.CountUnsettledPayouts(ctx, roundID)
	if err != nil {
		return false, fmt.Errorf("failed to count unsettled payouts: %w", err)
	}
	if unsettled > 0 {
		return false, nil
	}

	totalPayout, err := s.betRepo.SumWinnings(ctx, roundID)
	if err != nil {
		return false, fmt.Errorf("failed to sum winnings: %w", err)
	}

	completed, err := s.roundRepo.Complete(ctx, roundID, totalPayout)
	if err != nil {
		return false, fmt.Errorf("failed to complete round: %w", err)
	}
	if !completed {
		return false, entities.NewStateConflictError("round %d left %s before completion", round.RoundNumber, entities.RoundStatusPaying)
	}

	if err := s.eventPublisher.Publish(events.RoundCompletedEvent{
		RoundID:     round.ID,
		RoundNumber: round.RoundNumber,
		TotalPool:   round.TotalPool,
		TotalPayout: totalPayout,
		HouseFee:    round.HouseFee,
	}); err != nil {
		return false, fmt.Errorf("failed to publish round completed event: %w", err)
	}

	log.WithFields(log.Fields{
		"round_number": round.RoundNumber,
		"total_pool":   round.TotalPool.String(),
		"total_payout": totalPayout.String(),
		"house_fee":    round.HouseFee.String(),
	}).Info("Round completed")

	return true, nil
}

// ResetFailedPayouts puts the failed payouts of a round back in the queue
func (s *PayoutService) ResetFailedPayouts(ctx context.Context, roundNumber int64) (*entities.Round, int64, error) {
	round, err := s.roundRepo.GetByNumber(ctx, roundNumber)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get round: %w", err)
	}
	if round == nil {
		return nil, 0, entities.NewNotFoundError("round %d not found", roundNumber)
	}
	if round.Status != entities.RoundStatusPaying && round.Status != entities.RoundStatusCompleted {
		return nil, 0, entities.NewStateConflictError("round %d is %s, payouts have not been assigned", roundNumber, round.Status)
	}

	reset, err := s.betRepo.ResetFailedPayouts(ctx, round.ID)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to reset failed payouts: %w", err)
	}

	log.WithFields(log.Fields{
		"round_number": roundNumber,
		"reset":        reset,
	}).Info("Failed payouts queued for reprocessing")

	return round, reset, nil
}
