package application_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"digitlotto/application"
	"digitlotto/config"
	"digitlotto/domain/entities"
	"digitlotto/domain/services"
	"digitlotto/infrastructure"
	"digitlotto/repository"
	"digitlotto/repository/testutil"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// testWriteRetries bounds settlement write retries; each write makes
// testWriteRetries+1 attempts
const testWriteRetries = 2

type prefixIdentities struct{}

func (prefixIdentities) ResolveIdentity(_ context.Context, handle string) (string, error) {
	if handle == "ghost" {
		return "", entities.NewNotFoundError("no identity for %s", handle)
	}
	return "pk-" + handle, nil
}

type countingPayments struct {
	seq atomic.Int64
}

func (p *countingPayments) RequestPayment(_ context.Context, _ string, _ decimal.Decimal, _, _ string) (string, error) {
	return fmt.Sprintf("corr-%d", p.seq.Add(1)), nil
}

type sentValue struct {
	Recipient string
	Amount    decimal.Decimal
}

// fakeWallet records transfers and fails for blocked recipients. A recipient
// with a cap receives at most the cap before the transfer fails.
type fakeWallet struct {
	mu      sync.Mutex
	sent    []sentValue
	blocked map[string]bool
	caps    map[string]decimal.Decimal
	onSend  func()
}

func newFakeWallet() *fakeWallet {
	return &fakeWallet{
		blocked: make(map[string]bool),
		caps:    make(map[string]decimal.Decimal),
	}
}

func (w *fakeWallet) SendValue(_ context.Context, recipient string, amount decimal.Decimal, _ string) (*entities.TransferResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.onSend != nil {
		w.onSend()
		w.onSend = nil
	}

	if w.blocked[recipient] {
		return nil, entities.WrapLedgerFailure("transfer rejected", errors.New("recipient unreachable"))
	}

	if limit, ok := w.caps[recipient]; ok && amount.GreaterThan(limit) {
		delete(w.caps, recipient)
		w.sent = append(w.sent, sentValue{Recipient: recipient, Amount: limit})
		n := len(w.sent)
		partial := &entities.TransferResult{
			TransferID: fmt.Sprintf("transfer-%d", n),
			PartsSent:  []decimal.Decimal{limit},
			TxIDs:      []string{fmt.Sprintf("tx-out-%d", n)},
		}
		return partial, entities.WrapLedgerFailure("split rejected", errors.New("burn rejected"))
	}

	w.sent = append(w.sent, sentValue{Recipient: recipient, Amount: amount})
	n := len(w.sent)
	return &entities.TransferResult{
		TransferID: fmt.Sprintf("transfer-%d", n),
		PartsSent:  []decimal.Decimal{amount},
		TxIDs:      []string{fmt.Sprintf("tx-out-%d", n)},
	}, nil
}

// capNext makes the next transfer to recipient deliver only limit
func (w *fakeWallet) capNext(recipient string, limit decimal.Decimal) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.caps[recipient] = limit
}

// beforeNextSend runs fn once, at the start of the next transfer
func (w *fakeWallet) beforeNextSend(fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onSend = fn
}

func (w *fakeWallet) block(recipient string, blocked bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.blocked[recipient] = blocked
}

func (w *fakeWallet) transfers() []sentValue {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]sentValue(nil), w.sent...)
}

// flakyFactory fails a set number of commits, as a dropped database
// connection would, and otherwise delegates to the real units of work
type flakyFactory struct {
	inner   application.UnitOfWorkFactory
	failing atomic.Int32
}

func (f *flakyFactory) Create() application.UnitOfWork {
	return &flakyUnitOfWork{UnitOfWork: f.inner.Create(), factory: f}
}

func (f *flakyFactory) failCommits(n int32) {
	f.failing.Store(n)
}

type flakyUnitOfWork struct {
	application.UnitOfWork
	factory *flakyFactory
}

func (u *flakyUnitOfWork) Commit() error {
	for {
		n := u.factory.failing.Load()
		if n <= 0 {
			return u.UnitOfWork.Commit()
		}
		if u.factory.failing.CompareAndSwap(n, n-1) {
			return errors.New("connection reset by peer")
		}
	}
}

// earlyPayer pays through the listener before its payment request returns,
// as a fast payer racing the request's reply would
type earlyPayer struct {
	env *testEnv
	seq atomic.Int64
}

func (p *earlyPayer) RequestPayment(ctx context.Context, payer string, amount decimal.Decimal, coinID, _ string) (string, error) {
	correlationID := fmt.Sprintf("early-%d", p.seq.Add(1))
	p.env.listener.Handle(ctx, entities.ValueReceived{
		CorrelationID: correlationID,
		Sender:        payer,
		Amount:        amount,
		CoinID:        coinID,
		TxID:          "tx-" + correlationID,
		ReceivedAt:    p.env.clock.Now(),
	})
	return correlationID, nil
}

// manualClock is a settable time source
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	db         *testutil.TestDatabase
	uows       *flakyFactory
	settlement *application.Settlement
	wallet     *fakeWallet
	clock      *manualClock
	dispatcher *application.PayoutDispatcher
	scheduler  *application.RoundScheduler
	listener   *application.PaymentListener
	ops        *application.Operations
	payloads   chan entities.TransferPayload
}

func (e *testEnv) Payloads() <-chan entities.TransferPayload {
	return e.payloads
}

// setupTestEnv wires the settlement core against a fresh database. The
// winning digit is always digit.
func setupTestEnv(t *testing.T, digit int) *testEnv {
	t.Helper()

	cfg := config.Get()
	db := testutil.SetupTestDatabase(t)

	env := &testEnv{
		db:       db,
		wallet:   newFakeWallet(),
		clock:    &manualClock{now: time.Now().UTC()},
		payloads: make(chan entities.TransferPayload, 8),
	}

	env.uows = &flakyFactory{inner: infrastructure.NewUnitOfWorkFactory(db.DB, infrastructure.NewNoopEventPublisher())}
	env.settlement = &application.Settlement{
		UoWFactory:       env.uows,
		Wallet:           env.wallet,
		Identities:       prefixIdentities{},
		Payments:         &countingPayments{},
		Matcher:          services.NewPaymentMatcher(cfg.PaymentTolerance, cfg.PaymentTimeout),
		Recorder:         services.NewPaymentRecorder(repository.NewPaymentLogRepository(db.DB)),
		CoinID:           cfg.CoinID,
		HouseFeePercent:  cfg.HouseFeePercent,
		OperatorIdentity: cfg.OperatorIdentity,
		Now:              env.clock.Now,
		DrawDigit:        func() (int, error) { return digit, nil },
		RetryBackOff: func() backoff.BackOff {
			return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, testWriteRetries)
		},
	}

	env.dispatcher = application.NewPayoutDispatcher(env.settlement)
	env.scheduler = application.NewRoundScheduler(env.settlement, env.dispatcher, cfg.RoundDuration, cfg.SettlementRetryDelay)
	env.listener = application.NewPaymentListener(env.settlement, env, time.Minute)
	env.ops = application.NewOperations(env.settlement, env.scheduler, env.dispatcher)
	return env
}

// placeAndPay places a bet and delivers a receipt covering it
func (e *testEnv) placeAndPay(t *testing.T, userID string, items ...entities.BetItem) *services.PlacedBet {
	t.Helper()
	ctx := context.Background()

	placed, err := e.ops.PlaceBet(ctx, userID, items)
	require.NoError(t, err)

	e.pay(placed, placed.Bet.TotalAmount)
	return placed
}

func (e *testEnv) pay(placed *services.PlacedBet, amount decimal.Decimal) {
	e.listener.Handle(context.Background(), entities.ValueReceived{
		CorrelationID: placed.CorrelationID,
		Sender:        placed.Bet.UserIdentity,
		Amount:        amount,
		CoinID:        e.settlement.CoinID,
		TxID:          fmt.Sprintf("tx-in-%s-%s", placed.Bet.InvoiceID, amount),
		ReceivedAt:    e.clock.Now(),
	})
}

func (e *testEnv) userBet(t *testing.T, userID string) *entities.Bet {
	t.Helper()
	bets, err := e.ops.GetUserBets(context.Background(), userID, 1)
	require.NoError(t, err)
	require.Len(t, bets, 1)
	return bets[0]
}

func stake(digit int, amount int64) entities.BetItem {
	return entities.BetItem{Digit: digit, Amount: decimal.NewFromInt(amount)}
}

func units(n int64) decimal.Decimal {
	return decimal.NewFromInt(n)
}
