package observability

import (
	"context"
	"fmt"
	"sync"
	"time"

	"digitlotto/config"
	"digitlotto/events"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// MetricsProvider manages OpenTelemetry metrics for the settlement service.
// A nil provider is valid and records nothing.
type MetricsProvider struct {
	config        *config.Config
	meterProvider *sdkmetric.MeterProvider
	meter         metric.Meter
	initialized   bool
	mu            sync.RWMutex

	// Metric instruments
	roundTransitionsCounter      metric.Int64Counter
	paymentReceiptsCounter       metric.Int64Counter
	paymentOutcomesCounter       metric.Int64Counter
	paymentsAwaitingGauge        metric.Int64UpDownCounter
	payoutsCounter               metric.Int64Counter
	walletTransfersCounter       metric.Int64Counter
	walletTransferDurationHist   metric.Float64Histogram
	natsMessagesReceivedCounter  metric.Int64Counter
	natsMessagesPublishedCounter metric.Int64Counter
}

// NewMetricsProvider creates a new metrics provider
func NewMetricsProvider(cfg *config.Config) *MetricsProvider {
	return &MetricsProvider{
		config: cfg,
	}
}

// Initialize sets up the OpenTelemetry metrics provider
func (mp *MetricsProvider) Initialize(ctx context.Context) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if mp.initialized {
		log.Debug("Metrics provider already initialized")
		return nil
	}

	if !mp.config.OTelEnabled {
		log.Info("OpenTelemetry metrics disabled")
		mp.initialized = true
		return nil
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(mp.config.OTelServiceName),
			attribute.String("environment", mp.config.Environment),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	var exporter sdkmetric.Exporter
	switch mp.config.OTelExporterType {
	case "console":
		exporter, err = stdoutmetric.New()
		if err != nil {
			return fmt.Errorf("failed to create console exporter: %w", err)
		}
		log.Info("Using console metric exporter")

	case "otlp":
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		exporter, err = otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(mp.config.OTelOTLPEndpoint),
			otlpmetricgrpc.WithInsecure(),
		)
		if err != nil {
			return fmt.Errorf("failed to create OTLP exporter: %w", err)
		}
		log.WithField("endpoint", mp.config.OTelOTLPEndpoint).Info("Using OTLP metric exporter")

	case "none":
		log.Info("Metrics export disabled (exporter_type='none')")
		mp.initialized = true
		return nil

	default:
		return fmt.Errorf("unknown exporter type: %s", mp.config.OTelExporterType)
	}

	mp.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(
				exporter,
				sdkmetric.WithInterval(time.Duration(mp.config.OTelExportIntervalMillis)*time.Millisecond),
			),
		),
	)

	otel.SetMeterProvider(mp.meterProvider)
	mp.meter = mp.meterProvider.Meter("digitlotto")

	if err := mp.createInstruments(); err != nil {
		return fmt.Errorf("failed to create instruments: %w", err)
	}

	mp.initialized = true
	log.Info("Metrics provider initialized successfully")
	return nil
}

// createInstruments creates all metric instruments
func (mp *MetricsProvider) createInstruments() error {
	var err error

	mp.roundTransitionsCounter, err = mp.meter.Int64Counter(
		RoundsTransitionsTotal,
		metric.WithDescription("Round state transitions by target status"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create round transitions counter: %w", err)
	}

	mp.paymentReceiptsCounter, err = mp.meter.Int64Counter(
		PaymentReceiptsTotal,
		metric.WithDescription("Incoming receipts by match outcome"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create payment receipts counter: %w", err)
	}

	mp.paymentOutcomesCounter, err = mp.meter.Int64Counter(
		PaymentOutcomesTotal,
		metric.WithDescription("Confirmed payments by settlement outcome"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create payment outcomes counter: %w", err)
	}

	mp.paymentsAwaitingGauge, err = mp.meter.Int64UpDownCounter(
		PaymentsAwaiting,
		metric.WithDescription("Invoices awaiting payment"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create payments awaiting gauge: %w", err)
	}

	mp.payoutsCounter, err = mp.meter.Int64Counter(
		PayoutsTotal,
		metric.WithDescription("Payouts by result"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create payouts counter: %w", err)
	}

	mp.walletTransfersCounter, err = mp.meter.Int64Counter(
		WalletTransfersTotal,
		metric.WithDescription("Outgoing wallet transfers by purpose and result"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create wallet transfers counter: %w", err)
	}

	mp.walletTransferDurationHist, err = mp.meter.Float64Histogram(
		WalletTransferDuration,
		metric.WithDescription("Duration of outgoing wallet transfers in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return fmt.Errorf("failed to create wallet transfer duration histogram: %w", err)
	}

	mp.natsMessagesReceivedCounter, err = mp.meter.Int64Counter(
		NATSMessagesReceivedTotal,
		metric.WithDescription("Total number of NATS messages received"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create NATS messages received counter: %w", err)
	}

	mp.natsMessagesPublishedCounter, err = mp.meter.Int64Counter(
		NATSMessagesPublishedTotal,
		metric.WithDescription("Total number of NATS messages published"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create NATS messages published counter: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the metrics provider
func (mp *MetricsProvider) Shutdown(ctx context.Context) error {
	if mp == nil {
		return nil
	}
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if mp.meterProvider != nil {
		return mp.meterProvider.Shutdown(ctx)
	}
	return nil
}

// SubscribeToEvents counts domain events delivered on the local bus
func (mp *MetricsProvider) SubscribeToEvents(bus *events.Bus) {
	bus.Subscribe(events.EventTypeRoundClosed, func(ctx context.Context, event events.Event) {
		mp.RecordRoundTransition("closed")
	})
	bus.Subscribe(events.EventTypeRoundDrawn, func(ctx context.Context, event events.Event) {
		mp.RecordRoundTransition("drawing")
	})
	bus.Subscribe(events.EventTypeRoundCompleted, func(ctx context.Context, event events.Event) {
		mp.RecordRoundTransition("completed")
	})
	bus.Subscribe(events.EventTypeRoundOpened, func(ctx context.Context, event events.Event) {
		mp.RecordRoundTransition("open")
	})
	bus.Subscribe(events.EventTypePayoutSent, func(ctx context.Context, event events.Event) {
		mp.RecordPayout(PayoutResultSent)
	})
	bus.Subscribe(events.EventTypePayoutFailed, func(ctx context.Context, event events.Event) {
		mp.RecordPayout(PayoutResultFailed)
	})
}

// RecordRoundTransition records a round entering status
func (mp *MetricsProvider) RecordRoundTransition(status string) {
	if !mp.isEnabled() {
		return
	}
	mp.roundTransitionsCounter.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String(LabelStatus, status)),
	)
}

// RecordReceipt records an incoming receipt and how the matcher handled it
func (mp *MetricsProvider) RecordReceipt(outcome string) {
	if !mp.isEnabled() {
		return
	}
	mp.paymentReceiptsCounter.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String(LabelOutcome, outcome)),
	)
}

// RecordPaymentOutcome records what happened to a confirmed payment
func (mp *MetricsProvider) RecordPaymentOutcome(outcome string) {
	if !mp.isEnabled() {
		return
	}
	mp.paymentOutcomesCounter.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String(LabelOutcome, outcome)),
	)
}

// UpdateAwaitingPayments updates the count of open invoices (increment/decrement)
func (mp *MetricsProvider) UpdateAwaitingPayments(delta int64) {
	if !mp.isEnabled() {
		return
	}
	mp.paymentsAwaitingGauge.Add(context.Background(), delta)
}

// RecordPayout records a payout reaching a terminal result
func (mp *MetricsProvider) RecordPayout(result string) {
	if !mp.isEnabled() {
		return
	}
	mp.payoutsCounter.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String(LabelOutcome, result)),
	)
}

// RecordWalletTransfer records an outgoing transfer with its duration
func (mp *MetricsProvider) RecordWalletTransfer(purpose, result string, duration time.Duration) {
	if !mp.isEnabled() {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(LabelPurpose, purpose),
		attribute.String(LabelOutcome, result),
	)
	mp.walletTransfersCounter.Add(context.Background(), 1, attrs)
	mp.walletTransferDurationHist.Record(context.Background(), duration.Seconds(), attrs)
}

// RecordNATSMessageReceived records a NATS message being received
func (mp *MetricsProvider) RecordNATSMessageReceived(subject string) {
	if !mp.isEnabled() {
		return
	}
	mp.natsMessagesReceivedCounter.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String(LabelSubject, subject)),
	)
}

// RecordNATSMessagePublished records a NATS message being published
func (mp *MetricsProvider) RecordNATSMessagePublished(eventType string) {
	if !mp.isEnabled() {
		return
	}
	mp.natsMessagesPublishedCounter.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String(LabelEventType, eventType)),
	)
}

// isEnabled checks if metrics are enabled and instruments exist
func (mp *MetricsProvider) isEnabled() bool {
	if mp == nil {
		return false
	}
	mp.mu.RLock()
	defer mp.mu.RUnlock()
	return mp.initialized && mp.config.OTelEnabled && mp.meter != nil
}

// Global metrics provider instance
var (
	globalMetrics *MetricsProvider
	metricsOnce   sync.Once
)

// InitializeGlobalMetrics initializes the global metrics provider
func InitializeGlobalMetrics(ctx context.Context, cfg *config.Config) error {
	var err error
	metricsOnce.Do(func() {
		globalMetrics = NewMetricsProvider(cfg)
		err = globalMetrics.Initialize(ctx)
	})
	return err
}

// GetMetrics returns the global metrics provider, nil before initialization
func GetMetrics() *MetricsProvider {
	return globalMetrics
}

// ShutdownGlobalMetrics shuts down the global metrics provider
func ShutdownGlobalMetrics(ctx context.Context) error {
	return globalMetrics.Shutdown(ctx)
}
