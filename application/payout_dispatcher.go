package application

import (
	"context"
	"fmt"
	"sync"
	"time"

	"digitlotto/domain/entities"
	"digitlotto/infrastructure/observability"

	log "github.com/sirupsen/logrus"
)

// DispatchSummary counts what one dispatch pass did
type DispatchSummary struct {
	Sent    int
	Failed  int
	Skipped int // claimed by another dispatcher
}

type dispatchResult int

const (
	dispatchSent dispatchResult = iota
	dispatchFailed
	dispatchSkipped
)

// PayoutDispatcher pays winners of a paying round one bet at a time. Each bet
// is claimed in its own transaction, the value moves outside any transaction,
// and the outcome is recorded in a third.
type PayoutDispatcher struct {
	settlement *Settlement

	mu         sync.Mutex
	unrecorded map[int64]unrecordedPayout // by bet id
}

// unrecordedPayout is a payout that reached the ledger but whose outcome
// could not be written yet. The bet stays sent until it is.
type unrecordedPayout struct {
	bet     *entities.Bet
	result  *entities.TransferResult
	sendErr error // nil when the whole payout was delivered
}

// NewPayoutDispatcher creates a new payout dispatcher
func NewPayoutDispatcher(settlement *Settlement) *PayoutDispatcher {
	return &PayoutDispatcher{
		settlement: settlement,
		unrecorded: make(map[int64]unrecordedPayout),
	}
}

// DispatchRound records outcomes still held from earlier passes, then sends
// every pending payout of the round
func (d *PayoutDispatcher) DispatchRound(ctx context.Context, roundID int64) (*DispatchSummary, error) {
	if err := d.recordHeld(ctx, roundID); err != nil {
		return nil, err
	}

	var pending []*entities.Bet
	err := d.settlement.inTransaction(ctx, func(svc *serviceSet) error {
		var err error
		pending, err = svc.payouts.PendingPayouts(ctx, roundID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load pending payouts: %w", err)
	}

	summary := &DispatchSummary{}
	for _, bet := range pending {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		result, err := d.dispatchBet(ctx, bet)
		if err != nil {
			return summary, err
		}
		switch result {
		case dispatchSent:
			summary.Sent++
		case dispatchFailed:
			summary.Failed++
		default:
			summary.Skipped++
		}
	}

	if len(pending) > 0 {
		log.WithFields(log.Fields{
			"round_id": roundID,
			"sent":     summary.Sent,
			"failed":   summary.Failed,
		}).Info("Payout dispatch finished")
	}
	return summary, nil
}

// dispatchBet pays what is still owed on one bet. A returned error means the
// database could not record progress; a ledger failure is recorded on the
// bet, not returned.
func (d *PayoutDispatcher) dispatchBet(ctx context.Context, bet *entities.Bet) (dispatchResult, error) {
	owed := bet.OutstandingPayout()
	logger := log.WithFields(log.Fields{
		"bet_id":       bet.ID,
		"round_number": bet.RoundNumber,
		"recipient":    bet.UserIdentity,
		"amount":       owed.String(),
	})

	var claimed bool
	err := d.settlement.inTransaction(ctx, func(svc *serviceSet) error {
		var err error
		claimed, err = svc.payouts.BeginPayout(ctx, bet)
		return err
	})
	if err != nil {
		return dispatchFailed, fmt.Errorf("failed to claim payout for bet %d: %w", bet.ID, err)
	}
	if !claimed {
		logger.Debug("Payout already claimed elsewhere")
		return dispatchSkipped, nil
	}

	if !owed.IsPositive() {
		// Earlier attempts delivered everything; only the confirmation is missing
		logger.Info("Payout already delivered, confirming")
		return d.record(ctx, unrecordedPayout{bet: bet})
	}

	started := time.Now()
	result, sendErr := d.settlement.Wallet.SendValue(ctx, bet.UserIdentity, owed, d.settlement.CoinID)
	if sendErr != nil {
		observability.GetMetrics().RecordWalletTransfer(string(entities.PaymentPurposePayout), observability.TransferResultFailed, time.Since(started))
		logger.WithError(sendErr).WithField("delivered", result.Total().String()).Error("Payout transfer failed")
	} else {
		observability.GetMetrics().RecordWalletTransfer(string(entities.PaymentPurposePayout), observability.TransferResultOK, time.Since(started))
	}

	if result.Delivered() {
		recordTransferParts(ctx, d.settlement, bet.UserIdentity, result, entities.PaymentPurposePayout, map[string]any{
			"bet_id":       bet.ID,
			"round_number": bet.RoundNumber,
		})
	}

	return d.record(ctx, unrecordedPayout{bet: bet, result: result, sendErr: sendErr})
}

// record writes the outcome of a claimed payout, retrying while the database
// is unavailable. An outcome that still cannot be written is held and retried
// by the next dispatch pass, so the value is never sent twice.
func (d *PayoutDispatcher) record(ctx context.Context, outcome unrecordedPayout) (dispatchResult, error) {
	bet := outcome.bet
	err := d.settlement.retryTransaction(ctx, "record payout", func(svc *serviceSet) error {
		attempt := *bet
		if outcome.sendErr != nil {
			return svc.payouts.RecordPayoutFailure(ctx, &attempt, outcome.result, outcome.sendErr)
		}
		return svc.payouts.RecordPayoutSent(ctx, &attempt, outcome.result)
	})
	if entities.IsCode(err, entities.ErrCodeStateConflict) {
		log.WithField("bet_id", bet.ID).WithError(err).Warn("Payout left sent before its outcome was recorded")
		d.forget(bet.ID)
		return dispatchFailed, nil
	}
	if err != nil {
		d.mu.Lock()
		d.unrecorded[bet.ID] = outcome
		d.mu.Unlock()

		logger := log.WithFields(log.Fields{
			"bet_id":       bet.ID,
			"round_number": bet.RoundNumber,
		})
		if outcome.result != nil {
			logger = logger.WithFields(log.Fields{
				"transfer_id": outcome.result.TransferID,
				"delivered":   outcome.result.Total().String(),
			})
		}
		logger.WithError(err).Error("Payout outcome not recorded, holding for next pass")
		return dispatchFailed, fmt.Errorf("failed to record payout for bet %d: %w", bet.ID, err)
	}

	d.forget(bet.ID)
	if outcome.sendErr != nil {
		return dispatchFailed, nil
	}
	return dispatchSent, nil
}

func (d *PayoutDispatcher) forget(betID int64) {
	d.mu.Lock()
	delete(d.unrecorded, betID)
	d.mu.Unlock()
}

// recordHeld retries the held outcomes of a round
func (d *PayoutDispatcher) recordHeld(ctx context.Context, roundID int64) error {
	d.mu.Lock()
	var held []unrecordedPayout
	for _, outcome := range d.unrecorded {
		if outcome.bet.RoundID == roundID {
			held = append(held, outcome)
		}
	}
	d.mu.Unlock()

	for _, outcome := range held {
		if _, err := d.record(ctx, outcome); err != nil {
			return err
		}
	}
	return nil
}

// HeldOutcomes returns how many payout outcomes are waiting to be recorded
func (d *PayoutDispatcher) HeldOutcomes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.unrecorded)
}

// recordTransferParts writes one outgoing log entry per ledger transaction
func recordTransferParts(ctx context.Context, settlement *Settlement, recipient string, result *entities.TransferResult, purpose entities.PaymentPurpose, metadata map[string]any) {
	if settlement.Recorder == nil {
		return
	}
	for i, part := range result.PartsSent {
		entryMetadata := map[string]any{
			"transfer_id": result.TransferID,
			"part":        i + 1,
			"parts":       len(result.PartsSent),
		}
		for k, v := range metadata {
			entryMetadata[k] = v
		}
		txID := ""
		if i < len(result.TxIDs) {
			txID = result.TxIDs[i]
		}
		settlement.Recorder.RecordOutgoing(ctx, part, recipient, txID, purpose, entryMetadata)
	}
}
