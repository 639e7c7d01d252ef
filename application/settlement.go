package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"digitlotto/domain/entities"
	"digitlotto/domain/interfaces"
	"digitlotto/domain/services"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// Settlement is the long-lived context shared by the scheduler, the payment
// listener and operator commands. It is built once at startup.
type Settlement struct {
	UoWFactory       UnitOfWorkFactory
	Wallet           interfaces.ValueSender
	Identities       interfaces.IdentityResolver
	Payments         interfaces.PaymentRequester
	Matcher          *services.PaymentMatcher
	Recorder         *services.PaymentRecorder
	CoinID           string
	HouseFeePercent  decimal.Decimal
	OperatorIdentity string
	Now              func() time.Time
	DrawDigit        func() (int, error)    // nil draws from crypto/rand
	RetryBackOff     func() backoff.BackOff // nil retries for up to 30s
}

func (s *Settlement) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Settlement) paymentRequests() *services.PaymentRequests {
	return services.NewPaymentRequests(s.Payments, s.CoinID)
}

func (s *Settlement) newRetryBackOff() backoff.BackOff {
	if s.RetryBackOff != nil {
		return s.RetryBackOff()
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxElapsedTime = 30 * time.Second
	return b
}

// retryTransaction runs inTransaction until it succeeds, the error is a coded
// domain error, or the backoff gives up. Used to record outcomes of value that
// already moved.
func (s *Settlement) retryTransaction(ctx context.Context, step string, fn func(svc *serviceSet) error) error {
	attempt := func() error {
		err := s.inTransaction(ctx, fn)
		var coded *entities.SettlementError
		if err != nil && errors.As(err, &coded) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		log.WithFields(log.Fields{
			"step": step,
			"wait": wait,
		}).WithError(err).Warn("Settlement write failed, retrying")
	}
	return backoff.RetryNotify(attempt, backoff.WithContext(s.newRetryBackOff(), ctx), notify)
}

// serviceSet holds the domain services bound to one unit of work
type serviceSet struct {
	rounds     *services.RoundService
	betting    *services.BettingService
	payouts    *services.PayoutService
	commission *services.CommissionService
}

func (s *Settlement) servicesFor(uow UnitOfWork) *serviceSet {
	return &serviceSet{
		rounds: services.NewRoundService(
			uow.RoundRepository(),
			uow.BetRepository(),
			uow.CommissionRepository(),
			uow.EventBus(),
			s.HouseFeePercent,
		).WithDigitSource(s.DrawDigit),
		betting: services.NewBettingService(
			uow.RoundRepository(),
			uow.BetRepository(),
			uow.EventBus(),
			s.Identities,
		),
		payouts: services.NewPayoutService(
			uow.RoundRepository(),
			uow.BetRepository(),
			uow.EventBus(),
		),
		commission: services.NewCommissionService(
			uow.CommissionRepository(),
			uow.EventBus(),
		),
	}
}

// inTransaction runs fn in a fresh unit of work, committing on success
func (s *Settlement) inTransaction(ctx context.Context, fn func(svc *serviceSet) error) error {
	uow := s.UoWFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	if err := fn(s.servicesFor(uow)); err != nil {
		return err
	}

	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
