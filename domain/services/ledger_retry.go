package services

import (
	"context"
	"errors"
	"time"

	"digitlotto/domain/entities"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"
)

// DefaultLedgerRetries bounds retries of an idempotent ledger call
const DefaultLedgerRetries = 3

// ledgerRetrier runs idempotent ledger steps, retrying only when the ledger is unavailable
type ledgerRetrier struct {
	newBackOff func() backoff.BackOff
}

func newLedgerRetrier(maxRetries uint64) ledgerRetrier {
	return ledgerRetrier{
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 250 * time.Millisecond
			b.MaxElapsedTime = 30 * time.Second
			return backoff.WithMaxRetries(b, maxRetries)
		},
	}
}

// submit treats ErrCommitmentExists as success and wraps any other final failure as LEDGER_FAILURE
func (r ledgerRetrier) submit(ctx context.Context, step string, op func() error) error {
	attempt := func() error {
		err := op()
		switch {
		case err == nil:
			return nil
		case errors.Is(err, entities.ErrCommitmentExists):
			log.WithField("step", step).Info("Ledger commitment already exists, continuing")
			return nil
		case errors.Is(err, entities.ErrLedgerUnavailable):
			return err
		default:
			return backoff.Permanent(err)
		}
	}

	notify := func(err error, wait time.Duration) {
		log.WithFields(log.Fields{
			"step":  step,
			"error": err,
			"wait":  wait,
		}).Warn("Ledger call failed, retrying")
	}

	if err := backoff.RetryNotify(attempt, backoff.WithContext(r.newBackOff(), ctx), notify); err != nil {
		return entities.WrapLedgerFailure(step+" failed", err)
	}
	return nil
}
