package observability

// Metric name prefixes
const (
	MetricPrefix = "digitlotto"
)

// Metric names
const (
	// Round metrics
	RoundsTransitionsTotal = MetricPrefix + ".rounds.transitions_total"

	// Payment metrics
	PaymentReceiptsTotal = MetricPrefix + ".payments.receipts_total"
	PaymentOutcomesTotal = MetricPrefix + ".payments.outcomes_total"
	PaymentsAwaiting     = MetricPrefix + ".payments.awaiting"

	// Payout metrics
	PayoutsTotal = MetricPrefix + ".payouts.total"

	// Wallet metrics
	WalletTransfersTotal   = MetricPrefix + ".wallet.transfers_total"
	WalletTransferDuration = MetricPrefix + ".wallet.transfer_duration"

	// NATS metrics
	NATSMessagesReceivedTotal  = MetricPrefix + ".nats.messages_received_total"
	NATSMessagesPublishedTotal = MetricPrefix + ".nats.messages_published_total"
)

// Label keys
const (
	LabelStatus    = "status"
	LabelOutcome   = "outcome"
	LabelPurpose   = "purpose"
	LabelEventType = "event_type"
	LabelSubject   = "subject"
)

// Payout results
const (
	PayoutResultSent   = "sent"
	PayoutResultFailed = "failed"
)

// Wallet transfer results
const (
	TransferResultOK     = "ok"
	TransferResultFailed = "failed"
)
