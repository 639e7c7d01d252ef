package application

import (
	"context"
	"fmt"
	"time"

	"digitlotto/domain/entities"

	log "github.com/sirupsen/logrus"
)

// RoundScheduler drives rounds from open to completed on a timer
type RoundScheduler struct {
	settlement    *Settlement
	dispatcher    *PayoutDispatcher
	roundDuration time.Duration
	retryDelay    time.Duration
}

// NewRoundScheduler creates a new round scheduler
func NewRoundScheduler(settlement *Settlement, dispatcher *PayoutDispatcher, roundDuration, retryDelay time.Duration) *RoundScheduler {
	return &RoundScheduler{
		settlement:    settlement,
		dispatcher:    dispatcher,
		roundDuration: roundDuration,
		retryDelay:    retryDelay,
	}
}

// Start recovers rounds left unsettled by a previous process and then runs
// the round timer until ctx is cancelled or the returned stop func is called
func (s *RoundScheduler) Start(ctx context.Context) func() {
	stopChan := make(chan struct{})

	wait := func(d time.Duration) bool {
		select {
		case <-ctx.Done():
			log.Info("Round scheduler shutting down (context cancelled)...")
			return false
		case <-stopChan:
			log.Info("Round scheduler shutting down (stop requested)...")
			return false
		case <-time.After(d):
			return true
		}
	}

	go func() {
		log.WithField("round_duration", s.roundDuration).Info("Round scheduler started")

		if err := s.Recover(ctx); err != nil {
			log.WithError(err).Error("Startup recovery failed, continuing with scheduler loop")
		}

		for {
			if err := s.settleUnsettled(ctx); err != nil {
				log.WithError(err).Error("Failed to settle outstanding rounds")
				if !wait(s.retryDelay) {
					return
				}
				continue
			}

			round, err := s.currentRound(ctx)
			if err != nil {
				log.WithError(err).Error("Failed to get current round")
				if !wait(s.retryDelay) {
					return
				}
				continue
			}

			remaining := round.RemainingTime(s.roundDuration, s.settlement.now())
			if remaining > 0 {
				log.WithFields(log.Fields{
					"round_number": round.RoundNumber,
					"closes_in":    remaining.Round(time.Second),
				}).Info("Waiting for round to close")
				if !wait(remaining) {
					return
				}
			}

			if err := s.CloseAndSettle(ctx, round.ID); err != nil {
				log.WithFields(log.Fields{
					"round_number": round.RoundNumber,
					"retry_in":     s.retryDelay,
				}).WithError(err).Error("Round settlement failed, retrying")
				if !wait(s.retryDelay) {
					return
				}
			}
		}
	}()

	return func() {
		close(stopChan)
	}
}

// Recover fails payouts whose outcome was lost in a restart. Each such payout
// may or may not have reached the ledger, so it is left for the operator.
func (s *RoundScheduler) Recover(ctx context.Context) error {
	var unsettled []*entities.Round
	if err := s.settlement.inTransaction(ctx, func(svc *serviceSet) error {
		var err error
		unsettled, err = svc.rounds.GetUnsettledRounds(ctx)
		return err
	}); err != nil {
		return err
	}

	for _, round := range unsettled {
		if round.Status != entities.RoundStatusPaying {
			continue
		}

		var failed int
		if err := s.settlement.inTransaction(ctx, func(svc *serviceSet) error {
			var err error
			failed, err = svc.payouts.FailInFlightPayouts(ctx, round.ID)
			return err
		}); err != nil {
			return fmt.Errorf("failed to recover payouts of round %d: %w", round.RoundNumber, err)
		}
		if failed > 0 {
			log.WithFields(log.Fields{
				"round_number": round.RoundNumber,
				"failed":       failed,
			}).Warn("In-flight payouts marked failed after restart")
		}
	}

	log.WithField("unsettled_rounds", len(unsettled)).Info("Startup recovery finished")
	return nil
}

// CloseAndSettle closes the round and runs it through to completion. A round
// that is already past open is settled from the state it reached.
func (s *RoundScheduler) CloseAndSettle(ctx context.Context, roundID int64) error {
	err := s.settlement.inTransaction(ctx, func(svc *serviceSet) error {
		_, err := svc.rounds.CloseRound(ctx, roundID, s.settlement.now())
		return err
	})
	if err != nil && !entities.IsCode(err, entities.ErrCodeStateConflict) {
		return err
	}
	if err != nil {
		log.WithField("round_id", roundID).Debug("Round already closed, resuming settlement")
	}

	return s.SettleRound(ctx, roundID)
}

// SettleRound advances a closed, drawing or paying round until it is completed.
// The draw runs at most once; a persisted digit is never redrawn.
func (s *RoundScheduler) SettleRound(ctx context.Context, roundID int64) error {
	for {
		var round *entities.Round
		if err := s.settlement.inTransaction(ctx, func(svc *serviceSet) error {
			var err error
			round, err = svc.rounds.GetRoundByID(ctx, roundID)
			return err
		}); err != nil {
			return err
		}

		switch round.Status {
		case entities.RoundStatusOpen:
			return entities.NewStateConflictError("round %d is still open", round.RoundNumber)

		case entities.RoundStatusClosed:
			if err := s.settlement.inTransaction(ctx, func(svc *serviceSet) error {
				_, err := svc.rounds.DrawWinner(ctx, roundID, s.settlement.now())
				return err
			}); err != nil && !entities.IsCode(err, entities.ErrCodeStateConflict) {
				return fmt.Errorf("failed to draw round %d: %w", round.RoundNumber, err)
			}

		case entities.RoundStatusDrawing:
			if err := s.settlement.inTransaction(ctx, func(svc *serviceSet) error {
				_, err := svc.rounds.CalculatePayouts(ctx, roundID)
				return err
			}); err != nil && !entities.IsCode(err, entities.ErrCodeStateConflict) {
				return fmt.Errorf("failed to calculate payouts for round %d: %w", round.RoundNumber, err)
			}

		case entities.RoundStatusPaying:
			if _, err := s.dispatcher.DispatchRound(ctx, roundID); err != nil {
				return fmt.Errorf("failed to dispatch payouts for round %d: %w", round.RoundNumber, err)
			}

			var completed bool
			if err := s.settlement.inTransaction(ctx, func(svc *serviceSet) error {
				var err error
				completed, err = svc.payouts.CompleteIfSettled(ctx, roundID)
				return err
			}); err != nil {
				return fmt.Errorf("failed to complete round %d: %w", round.RoundNumber, err)
			}
			if !completed {
				return fmt.Errorf("round %d still has unsettled payouts", round.RoundNumber)
			}
			return nil

		case entities.RoundStatusCompleted:
			return nil

		default:
			return fmt.Errorf("round %d has unknown status %q", round.RoundNumber, round.Status)
		}
	}
}

func (s *RoundScheduler) settleUnsettled(ctx context.Context) error {
	var unsettled []*entities.Round
	if err := s.settlement.inTransaction(ctx, func(svc *serviceSet) error {
		var err error
		unsettled, err = svc.rounds.GetUnsettledRounds(ctx)
		return err
	}); err != nil {
		return err
	}

	for _, round := range unsettled {
		log.WithFields(log.Fields{
			"round_number": round.RoundNumber,
			"status":       round.Status,
		}).Info("Settling outstanding round")

		if err := s.SettleRound(ctx, round.ID); err != nil {
			return err
		}
	}
	return nil
}

func (s *RoundScheduler) currentRound(ctx context.Context) (*entities.Round, error) {
	var round *entities.Round
	err := s.settlement.inTransaction(ctx, func(svc *serviceSet) error {
		var err error
		round, err = svc.rounds.GetOrCreateCurrentRound(ctx, s.settlement.now())
		return err
	})
	return round, err
}
