package application

import (
	"context"
	"fmt"
	"time"

	"digitlotto/domain/entities"
	"digitlotto/domain/services"
	"digitlotto/infrastructure/observability"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// Operations is the request/response surface offered to callers outside the
// settlement loop: bet placement, manual round control, operator commands
// and queries
type Operations struct {
	settlement *Settlement
	scheduler  *RoundScheduler
	dispatcher *PayoutDispatcher
}

// NewOperations creates the operations facade
func NewOperations(settlement *Settlement, scheduler *RoundScheduler, dispatcher *PayoutDispatcher) *Operations {
	return &Operations{
		settlement: settlement,
		scheduler:  scheduler,
		dispatcher: dispatcher,
	}
}

// PlaceBet records a pending bet, starts watching its invoice and then asks
// the ledger for the payment. The invoice is watched before the request goes
// out so a receipt arriving right after the request is never missed.
func (o *Operations) PlaceBet(ctx context.Context, userID string, items []entities.BetItem) (*services.PlacedBet, error) {
	var placed *services.PlacedBet
	err := o.settlement.inTransaction(ctx, func(svc *serviceSet) error {
		var err error
		placed, err = svc.betting.PlaceBet(ctx, userID, items, o.settlement.now())
		return err
	})
	if err != nil {
		return nil, err
	}

	bet := placed.Bet
	logger := log.WithFields(log.Fields{
		"bet_id":     bet.ID,
		"invoice_id": bet.InvoiceID,
	})

	if err := o.settlement.Matcher.Register(bet.InvoiceID, "", bet.UserIdentity, bet.TotalAmount, o.settlement.now()); err != nil {
		err = fmt.Errorf("failed to watch invoice %s: %w", bet.InvoiceID, err)
		o.abandonBet(ctx, bet, err)
		return nil, err
	}
	observability.GetMetrics().UpdateAwaitingPayments(1)

	correlationID, err := o.settlement.paymentRequests().Request(ctx, bet)
	if err != nil {
		o.settlement.Matcher.Cancel(bet.InvoiceID)
		observability.GetMetrics().UpdateAwaitingPayments(-1)
		o.abandonBet(ctx, bet, err)
		return nil, err
	}

	if err := o.settlement.Matcher.AttachCorrelation(bet.InvoiceID, correlationID); err != nil {
		// The invoice is still matched by sender
		logger.WithError(err).Warn("Failed to attach payment request to invoice")
	}
	if err := o.settlement.inTransaction(ctx, func(svc *serviceSet) error {
		return svc.betting.AttachCorrelation(ctx, bet, correlationID)
	}); err != nil {
		logger.WithError(err).WithField("correlation_id", correlationID).Error("Failed to store payment request id")
	}

	placed.CorrelationID = correlationID
	return placed, nil
}

// abandonBet fails a committed bet whose payment was never requested
func (o *Operations) abandonBet(ctx context.Context, bet *entities.Bet, cause error) {
	if err := o.settlement.inTransaction(ctx, func(svc *serviceSet) error {
		return svc.betting.FailPaymentRequest(ctx, bet, cause)
	}); err != nil {
		log.WithFields(log.Fields{
			"bet_id":     bet.ID,
			"invoice_id": bet.InvoiceID,
		}).WithError(err).Error("Failed to close bet after payment request failure")
	}
}

// CloseRound closes an open round without settling it. Callers racing the
// scheduler get a STATE_CONFLICT when they lose.
func (o *Operations) CloseRound(ctx context.Context, roundNumber int64) (*entities.Round, error) {
	var round *entities.Round
	err := o.settlement.inTransaction(ctx, func(svc *serviceSet) error {
		current, err := svc.rounds.GetRound(ctx, roundNumber)
		if err != nil {
			return err
		}
		round, err = svc.rounds.CloseRound(ctx, current.ID, o.settlement.now())
		return err
	})
	return round, err
}

// DrawWinner draws the digit of a closed round
func (o *Operations) DrawWinner(ctx context.Context, roundNumber int64) (*entities.Round, error) {
	var round *entities.Round
	err := o.settlement.inTransaction(ctx, func(svc *serviceSet) error {
		current, err := svc.rounds.GetRound(ctx, roundNumber)
		if err != nil {
			return err
		}
		round, err = svc.rounds.DrawWinner(ctx, current.ID, o.settlement.now())
		return err
	})
	return round, err
}

// ProcessPayouts assigns winnings if needed, dispatches every pending payout
// and completes the round once all payouts are terminal
func (o *Operations) ProcessPayouts(ctx context.Context, roundNumber int64) (*entities.Round, error) {
	round, err := o.GetRound(ctx, roundNumber)
	if err != nil {
		return nil, err
	}
	switch round.Status {
	case entities.RoundStatusOpen, entities.RoundStatusClosed:
		return nil, entities.NewStateConflictError("round %d is %s, winner not drawn", roundNumber, round.Status)
	}

	if err := o.scheduler.SettleRound(ctx, round.ID); err != nil {
		return nil, err
	}
	return o.GetRound(ctx, roundNumber)
}

// ReprocessPayouts queues the failed payouts of a round and dispatches them again
func (o *Operations) ReprocessPayouts(ctx context.Context, roundNumber int64) (*DispatchSummary, error) {
	var round *entities.Round
	var reset int64
	err := o.settlement.inTransaction(ctx, func(svc *serviceSet) error {
		var err error
		round, reset, err = svc.payouts.ResetFailedPayouts(ctx, roundNumber)
		return err
	})
	if err != nil {
		return nil, err
	}
	if reset == 0 {
		return &DispatchSummary{}, nil
	}

	summary, err := o.dispatcher.DispatchRound(ctx, round.ID)
	if err != nil {
		return summary, err
	}

	if round.Status == entities.RoundStatusPaying {
		if err := o.settlement.inTransaction(ctx, func(svc *serviceSet) error {
			_, err := svc.payouts.CompleteIfSettled(ctx, round.ID)
			return err
		}); err != nil {
			return summary, err
		}
	}
	return summary, nil
}

// WithdrawCommission sends the requested amount, or the whole available
// balance when requested is nil, to the operator identity. The commission
// row stays locked while the value moves so no concurrent withdrawal can
// overdraw it. When the transfer fails part way, the delivered parts are
// recorded as withdrawn and returned with the error.
func (o *Operations) WithdrawCommission(ctx context.Context, requested *decimal.Decimal) (*entities.TransferResult, error) {
	recipient := o.settlement.OperatorIdentity
	if recipient == "" {
		return nil, entities.NewValidationError("no operator identity configured for withdrawals")
	}

	var result *entities.TransferResult
	var amount decimal.Decimal
	var sendErr error
	err := o.settlement.inTransaction(ctx, func(svc *serviceSet) error {
		var err error
		amount, err = svc.commission.PrepareWithdrawal(ctx, requested)
		if err != nil {
			return err
		}

		started := time.Now()
		result, sendErr = o.settlement.Wallet.SendValue(ctx, recipient, amount, o.settlement.CoinID)
		if sendErr != nil {
			observability.GetMetrics().RecordWalletTransfer(string(entities.PaymentPurposeCommissionWithdrawal), observability.TransferResultFailed, time.Since(started))
			if !result.Delivered() {
				return entities.WrapLedgerFailure("commission withdrawal transfer failed", sendErr)
			}
			return svc.commission.RecordWithdrawal(ctx, result.Total(), recipient, result, o.settlement.now())
		}
		observability.GetMetrics().RecordWalletTransfer(string(entities.PaymentPurposeCommissionWithdrawal), observability.TransferResultOK, time.Since(started))

		return svc.commission.RecordWithdrawal(ctx, amount, recipient, result, o.settlement.now())
	})
	if err != nil {
		if result.Delivered() {
			recordTransferParts(ctx, o.settlement, recipient, result, entities.PaymentPurposeCommissionWithdrawal, nil)
			log.WithFields(log.Fields{
				"amount":      amount.String(),
				"delivered":   result.Total().String(),
				"transfer_id": result.TransferID,
			}).WithError(err).Error("Commission sent but withdrawal not recorded")
		}
		return nil, err
	}

	recordTransferParts(ctx, o.settlement, recipient, result, entities.PaymentPurposeCommissionWithdrawal, nil)
	if sendErr != nil {
		log.WithFields(log.Fields{
			"amount":      amount.String(),
			"delivered":   result.Total().String(),
			"transfer_id": result.TransferID,
		}).WithError(sendErr).Error("Commission withdrawal partially sent")
		return result, entities.WrapLedgerFailure("commission withdrawal transfer failed after "+result.Total().String()+" was sent", sendErr)
	}
	return result, nil
}

// GetCurrentRound returns the open round with its bet count
func (o *Operations) GetCurrentRound(ctx context.Context) (*services.RoundSummary, error) {
	var summary *services.RoundSummary
	err := o.settlement.inTransaction(ctx, func(svc *serviceSet) error {
		var err error
		summary, err = svc.rounds.GetCurrentRound(ctx)
		return err
	})
	return summary, err
}

// GetRound returns a round by number
func (o *Operations) GetRound(ctx context.Context, roundNumber int64) (*entities.Round, error) {
	var round *entities.Round
	err := o.settlement.inTransaction(ctx, func(svc *serviceSet) error {
		var err error
		round, err = svc.rounds.GetRound(ctx, roundNumber)
		return err
	})
	return round, err
}

// GetRoundHistory returns the most recent rounds, newest first
func (o *Operations) GetRoundHistory(ctx context.Context, limit int) ([]*entities.Round, error) {
	var rounds []*entities.Round
	err := o.settlement.inTransaction(ctx, func(svc *serviceSet) error {
		var err error
		rounds, err = svc.rounds.GetRoundHistory(ctx, limit)
		return err
	})
	return rounds, err
}

// GetUserBets returns a user's most recent bets
func (o *Operations) GetUserBets(ctx context.Context, userID string, limit int) ([]*entities.Bet, error) {
	var bets []*entities.Bet
	err := o.settlement.inTransaction(ctx, func(svc *serviceSet) error {
		var err error
		bets, err = svc.betting.GetUserBets(ctx, userID, limit)
		return err
	})
	return bets, err
}

// GetCommission returns the commission ledger
func (o *Operations) GetCommission(ctx context.Context) (*entities.Commission, error) {
	var commission *entities.Commission
	err := o.settlement.inTransaction(ctx, func(svc *serviceSet) error {
		var err error
		commission, err = svc.commission.Get(ctx)
		return err
	})
	return commission, err
}

// GetPaymentLog returns the latest audit entries
func (o *Operations) GetPaymentLog(ctx context.Context, limit int) ([]*entities.PaymentLogEntry, error) {
	return o.settlement.Recorder.GetRecent(ctx, limit)
}
