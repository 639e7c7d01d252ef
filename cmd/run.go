package cmd

import (
	"context"
	"fmt"
	"time"

	"digitlotto/api"
	"digitlotto/application"
	"digitlotto/config"
	"digitlotto/database"
	"digitlotto/domain/interfaces"
	"digitlotto/domain/services"
	"digitlotto/events"
	"digitlotto/infrastructure"
	"digitlotto/infrastructure/cache"
	"digitlotto/infrastructure/ledger"
	"digitlotto/infrastructure/observability"
	"digitlotto/infrastructure/tokenstore"
	"digitlotto/repository"

	log "github.com/sirupsen/logrus"
)

const (
	ledgerRequestTimeout = 10 * time.Second
	apiRequestTimeout    = 30 * time.Second
	receiptSendTimeout   = 5 * time.Second
	receiptDedupeTTL     = 7 * 24 * time.Hour
	identityCacheTTL     = 10 * time.Minute
	expirySweepInterval  = 30 * time.Second
)

// Run starts the settlement service and blocks until ctx is cancelled
func Run(ctx context.Context) error {
	log.Info("Starting digitlotto settlement service...")

	cfg := config.Get()

	if err := observability.InitializeGlobalMetrics(ctx, cfg); err != nil {
		log.WithError(err).Warn("Failed to initialize metrics, continuing without them")
	}
	metrics := observability.GetMetrics()

	log.Info("Connecting to database...")
	db, err := database.NewConnection(ctx, cfg.GetDatabaseURL())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	log.Info("Database connection established successfully")

	log.WithField("servers", cfg.NATSServers).Info("Connecting to NATS...")
	natsClient := infrastructure.NewNATSClient(cfg.NATSServers)
	if err := natsClient.Connect(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}

	subjectMapper := infrastructure.NewEventSubjectMapper()
	if err := infrastructure.EnsureDomainEventStream(natsClient, subjectMapper); err != nil {
		return shutdownAfter(natsClient, db, fmt.Errorf("failed to ensure domain event stream: %w", err))
	}
	if err := natsClient.EnsureStream(
		ledger.ReceiptStream,
		[]string{ledger.SubjectValueReceived, ledger.SubjectPaymentResponse},
		"Ledger gateway notifications",
	); err != nil {
		return shutdownAfter(natsClient, db, fmt.Errorf("failed to ensure ledger notification stream: %w", err))
	}

	eventBus := events.NewBus()
	metrics.SubscribeToEvents(eventBus)
	eventPublisher := infrastructure.NewNATSEventPublisher(natsClient, subjectMapper, eventBus)
	uowFactory := infrastructure.NewUnitOfWorkFactory(db, eventPublisher)
	log.Info("Event publishing initialized")

	ledgerClient := ledger.NewClient(natsClient, ledgerRequestTimeout)

	var identities interfaces.IdentityResolver = ledgerClient
	var deduper ledger.Deduper
	if cfg.RedisAddr != "" {
		redisClient, err := cache.ConnectRedis(ctx, cfg.RedisAddr)
		if err != nil {
			return shutdownAfter(natsClient, db, err)
		}
		defer redisClient.Close()

		identities = cache.NewIdentityCache(redisClient, ledgerClient, identityCacheTTL)
		deduper = cache.NewReceiptDeduper(redisClient, receiptDedupeTTL)
		log.WithField("addr", cfg.RedisAddr).Info("Redis cache enabled")
	}

	store, err := tokenstore.NewFileStore(cfg.TokenDir)
	if err != nil {
		return shutdownAfter(natsClient, db, fmt.Errorf("failed to open token store: %w", err))
	}
	wallet := services.NewTokenWallet(ledgerClient, store, services.NewSplitPlanner(cfg.SplitSearchDepth), services.DefaultLedgerRetries)

	balance, err := wallet.Balance(ctx, cfg.CoinID)
	if err != nil {
		return shutdownAfter(natsClient, db, fmt.Errorf("failed to read token inventory: %w", err))
	}
	log.WithFields(log.Fields{
		"token_dir": cfg.TokenDir,
		"coin_id":   cfg.CoinID,
		"balance":   balance.String(),
	}).Info("Token wallet loaded")

	settlement := &application.Settlement{
		UoWFactory:       uowFactory,
		Wallet:           wallet,
		Identities:       identities,
		Payments:         ledgerClient,
		Matcher:          services.NewPaymentMatcher(cfg.PaymentTolerance, cfg.PaymentTimeout),
		Recorder:         services.NewPaymentRecorder(repository.NewPaymentLogRepository(db)),
		CoinID:           cfg.CoinID,
		HouseFeePercent:  cfg.HouseFeePercent,
		OperatorIdentity: cfg.OperatorIdentity,
	}

	dispatcher := application.NewPayoutDispatcher(settlement)
	scheduler := application.NewRoundScheduler(settlement, dispatcher, cfg.RoundDuration, cfg.SettlementRetryDelay)
	notifications := ledger.NewNotifications(cfg.ReceiptBuffer, receiptSendTimeout, deduper)
	listener := application.NewPaymentListener(settlement, notifications, expirySweepInterval)
	operations := application.NewOperations(settlement, scheduler, dispatcher)

	// Pending invoices are restored before any receipt can arrive
	stopListener, err := listener.Start(ctx)
	if err != nil {
		return shutdownAfter(natsClient, db, fmt.Errorf("failed to start payment listener: %w", err))
	}
	if err := notifications.Start(natsClient); err != nil {
		stopListener()
		return shutdownAfter(natsClient, db, err)
	}

	stopScheduler := scheduler.Start(ctx)

	if err := api.NewServer(operations, apiRequestTimeout).Start(natsClient); err != nil {
		stopScheduler()
		stopListener()
		return shutdownAfter(natsClient, db, fmt.Errorf("failed to start API server: %w", err))
	}

	log.WithField("environment", cfg.Environment).Info("Settlement service is running")
	<-ctx.Done()

	log.Info("Shutting down settlement service...")
	stopScheduler()
	stopListener()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := observability.ShutdownGlobalMetrics(shutdownCtx); err != nil {
		log.WithError(err).Warn("Failed to flush metrics")
	}

	return shutdownAfter(natsClient, db, nil)
}

// shutdownAfter closes the long-lived connections and returns err
func shutdownAfter(natsClient *infrastructure.NATSClient, db *database.DB, err error) error {
	if closeErr := natsClient.Close(); closeErr != nil {
		log.WithError(closeErr).Error("Error closing NATS connection")
	}

	log.Info("Closing database connection...")
	db.Close()

	if err == nil {
		log.Info("Shutdown completed")
	}
	return err
}
