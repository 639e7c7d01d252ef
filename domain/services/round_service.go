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

// RoundSummary is the current round with its participation count
type RoundSummary struct {
	Round    *entities.Round
	BetCount int
}

// RoundService drives the round state machine
type RoundService struct {
	roundRepo      interfaces.RoundRepository
	betRepo        interfaces.BetRepository
	commissionRepo interfaces.CommissionRepository
	eventPublisher interfaces.EventPublisher
	feePercent     decimal.Decimal
	drawDigit      func() (int, error)
}

// NewRoundService creates a new round service
func NewRoundService(
	roundRepo interfaces.RoundRepository,
	betRepo interfaces.BetRepository,
	commissionRepo interfaces.CommissionRepository,
	eventPublisher interfaces.EventPublisher,
	feePercent decimal.Decimal,
) *RoundService {
	return &RoundService{
		roundRepo:      roundRepo,
		betRepo:        betRepo,
		commissionRepo: commissionRepo,
		eventPublisher: eventPublisher,
		feePercent:     feePercent,
		drawDigit:      entities.GenerateWinningDigit,
	}
}

// WithDigitSource replaces the random digit source used by DrawWinner
func (s *RoundService) WithDigitSource(draw func() (int, error)) *RoundService {
	if draw != nil {
		s.drawDigit = draw
	}
	return s
}

// CreateRound opens the next round. Fails with STATE_CONFLICT while another round is open.
func (s *RoundService) CreateRound(ctx context.Context, now time.Time) (*entities.Round, error) {
	existing, err := s.roundRepo.GetCurrentOpen(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get open round: %w", err)
	}
	if existing != nil {
		return nil, entities.NewStateConflictError("round %d is still open", existing.RoundNumber)
	}

	round, err := s.roundRepo.Create(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create round: %w", err)
	}
	if round == nil {
		return nil, entities.NewStateConflictError("another round was opened concurrently")
	}

	s.publishOpened(round)
	return round, nil
}

// GetOrCreateCurrentRound returns the open round, opening one when none exists
func (s *RoundService) GetOrCreateCurrentRound(ctx context.Context, now time.Time) (*entities.Round, error) {
	return getOrCreateOpenRound(ctx, s.roundRepo, s.eventPublisher, now)
}

// CloseRound moves an open round to closed
func (s *RoundService) CloseRound(ctx context.Context, roundID int64, now time.Time) (*entities.Round, error) {
	closed, err := s.roundRepo.Close(ctx, roundID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to close round: %w", err)
	}

	round, err := s.roundRepo.GetByID(ctx, roundID)
	if err != nil {
		return nil, fmt.Errorf("failed to get round: %w", err)
	}
	if round == nil {
		return nil, entities.NewNotFoundError("round %d not found", roundID)
	}
	if !closed {
		return nil, entities.NewStateConflictError("round %d is %s, expected %s", round.RoundNumber, round.Status, entities.RoundStatusOpen)
	}

	if err := s.eventPublisher.Publish(events.RoundClosedEvent{
		RoundID:     round.ID,
		RoundNumber: round.RoundNumber,
		TotalPool:   round.TotalPool,
	}); err != nil {
		return nil, fmt.Errorf("failed to publish round closed event: %w", err)
	}

	log.WithFields(log.Fields{
		"round_number": round.RoundNumber,
		"total_pool":   round.TotalPool.String(),
	}).Info("Round closed")

	return round, nil
}

// DrawWinner draws the winning digit for a closed round. The persisted digit is final.
func (s *RoundService) DrawWinner(ctx context.Context, roundID int64, now time.Time) (*entities.Round, error) {
	round, err := s.roundRepo.GetByIDForUpdate(ctx, roundID)
	if err != nil {
		return nil, fmt.Errorf("failed to get round: %w", err)
	}
	if round == nil {
		return nil, entities.NewNotFoundError("round %d not found", roundID)
	}
	if round.Status != entities.RoundStatusClosed {
		return nil, entities.NewStateConflictError("round %d is %s, expected %s", round.RoundNumber, round.Status, entities.RoundStatusClosed)
	}

	digit, err := s.drawDigit()
	if err != nil {
		return nil, err
	}

	drawn, err := s.roundRepo.RecordDraw(ctx, roundID, digit, now)
	if err != nil {
		return nil, fmt.Errorf("failed to record draw: %w", err)
	}
	if !drawn {
		return nil, entities.NewStateConflictError("round %d left %s before the draw", round.RoundNumber, entities.RoundStatusClosed)
	}

	round.Status = entities.RoundStatusDrawing
	round.WinningDigit = &digit
	round.DrawTime = &now

	if err := s.eventPublisher.Publish(events.RoundDrawnEvent{
		RoundID:      round.ID,
		RoundNumber:  round.RoundNumber,
		WinningDigit: digit,
	}); err != nil {
		return nil, fmt.Errorf("failed to publish round drawn event: %w", err)
	}

	log.WithFields(log.Fields{
		"round_number":  round.RoundNumber,
		"winning_digit": digit,
	}).Info("Winning digit drawn")

	return round, nil
}

// CalculatePayouts assigns winnings to the paid bets of a drawn round, credits
// the house fee and moves the round to paying
func (s *RoundService) CalculatePayouts(ctx context.Context, roundID int64) (*PayoutResult, error) {
	round, err := s.roundRepo.GetByIDForUpdate(ctx, roundID)
	if err != nil {
		return nil, fmt.Errorf("failed to get round: %w", err)
	}
	if round == nil {
		return nil, entities.NewNotFoundError("round %d not found", roundID)
	}
	if round.Status != entities.RoundStatusDrawing {
		return nil, entities.NewStateConflictError("round %d is %s, expected %s", round.RoundNumber, round.Status, entities.RoundStatusDrawing)
	}
	if !round.HasWinningDigit() {
		return nil, fmt.Errorf("round %d is drawing without a winning digit", round.RoundNumber)
	}

	bets, err := s.betRepo.GetPaidByRound(ctx, roundID)
	if err != nil {
		return nil, fmt.Errorf("failed to get paid bets: %w", err)
	}

	result := CalculatePayouts(*round.WinningDigit, bets, s.feePercent)
	if !result.TotalPool.Equal(round.TotalPool) {
		log.WithFields(log.Fields{
			"round_number":  round.RoundNumber,
			"recorded_pool": round.TotalPool.String(),
			"paid_bets":     result.TotalPool.String(),
		}).Warn("Round pool differs from sum of paid bets")
	}

	for betID, winnings := range result.Winnings {
		if err := s.betRepo.SetWinnings(ctx, betID, winnings, entities.PayoutStatusPending); err != nil {
			return nil, fmt.Errorf("failed to set winnings for bet %d: %w", betID, err)
		}
	}

	if result.HouseFee.IsPositive() {
		if err := s.commissionRepo.Credit(ctx, result.HouseFee); err != nil {
			return nil, fmt.Errorf("failed to credit commission: %w", err)
		}
	}

	paying, err := s.roundRepo.BeginPaying(ctx, roundID, result.HouseFee)
	if err != nil {
		return nil, fmt.Errorf("failed to move round to paying: %w", err)
	}
	if !paying {
		return nil, entities.NewStateConflictError("round %d left %s before payouts were assigned", round.RoundNumber, entities.RoundStatusDrawing)
	}

	log.WithFields(log.Fields{
		"round_number":  round.RoundNumber,
		"winning_digit": result.WinningDigit,
		"total_pool":    result.TotalPool.String(),
		"house_fee":     result.HouseFee.String(),
		"total_payout":  result.TotalPayout.String(),
		"residual":      result.Residual.String(),
		"winners":       len(result.Winnings),
	}).Info("Payouts calculated")

	return result, nil
}

// GetCurrentRound returns the open round and its bet count
func (s *RoundService) GetCurrentRound(ctx context.Context) (*RoundSummary, error) {
	round, err := s.roundRepo.GetCurrentOpen(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get open round: %w", err)
	}
	if round == nil {
		return nil, entities.NewNotFoundError("no round is open")
	}

	count, err := s.betRepo.CountByRound(ctx, round.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count bets: %w", err)
	}

	return &RoundSummary{Round: round, BetCount: count}, nil
}

// GetRoundHistory returns the most recent rounds
func (s *RoundService) GetRoundHistory(ctx context.Context, limit int) ([]*entities.Round, error) {
	if limit <= 0 {
		limit = 20
	}
	rounds, err := s.roundRepo.GetHistory(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get round history: %w", err)
	}
	return rounds, nil
}

// GetRound returns a round by number
func (s *RoundService) GetRound(ctx context.Context, roundNumber int64) (*entities.Round, error) {
	round, err := s.roundRepo.GetByNumber(ctx, roundNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to get round: %w", err)
	}
	if round == nil {
		return nil, entities.NewNotFoundError("round %d not found", roundNumber)
	}
	return round, nil
}

// GetRoundByID returns a round by its id
func (s *RoundService) GetRoundByID(ctx context.Context, roundID int64) (*entities.Round, error) {
	round, err := s.roundRepo.GetByID(ctx, roundID)
	if err != nil {
		return nil, fmt.Errorf("failed to get round: %w", err)
	}
	if round == nil {
		return nil, entities.NewNotFoundError("round %d not found", roundID)
	}
	return round, nil
}

// GetUnsettledRounds returns rounds left between close and completion
func (s *RoundService) GetUnsettledRounds(ctx context.Context) ([]*entities.Round, error) {
	rounds, err := s.roundRepo.GetUnsettled(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get unsettled rounds: %w", err)
	}
	return rounds, nil
}

func (s *RoundService) publishOpened(round *entities.Round) {
	publishRoundOpened(s.eventPublisher, round)
}

func getOrCreateOpenRound(ctx context.Context, roundRepo interfaces.RoundRepository, publisher interfaces.EventPublisher, now time.Time) (*entities.Round, error) {
	round, err := roundRepo.GetCurrentOpen(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get open round: %w", err)
	}
	if round != nil {
		return round, nil
	}

	round, err = roundRepo.Create(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create round: %w", err)
	}
	if round != nil {
		publishRoundOpened(publisher, round)
		return round, nil
	}

	// Lost the race to a concurrent creator; its round is now committed.
	round, err = roundRepo.GetCurrentOpen(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get open round: %w", err)
	}
	if round == nil {
		return nil, entities.NewStateConflictError("no round could be opened")
	}
	return round, nil
}

func publishRoundOpened(publisher interfaces.EventPublisher, round *entities.Round) {
	if err := publisher.Publish(events.RoundOpenedEvent{
		RoundID:     round.ID,
		RoundNumber: round.RoundNumber,
	}); err != nil {
		log.WithError(err).Error("Failed to publish round opened event")
	}

	log.WithField("round_number", round.RoundNumber).Info("Round opened")
}
