package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Webhook, pipeline and notification counters, partitioned by endpoint or network.

var (
	// Webhook
	WebhookDeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stacksend",
		Subsystem: "webhook",
		Name:      "deliveries_total",
		Help:      "Webhook deliveries by endpoint and response outcome",
	}, []string{"endpoint", "outcome"})

	WebhookProcessingLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "stacksend",
		Subsystem: "webhook",
		Name:      "processing_duration_seconds",
		Help:      "Time to run the pipeline for one delivery",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"endpoint"})

	BackgroundJobErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stacksend",
		Subsystem: "webhook",
		Name:      "background_errors_total",
		Help:      "Failures of detached ack-first processing jobs",
	}, []string{"endpoint"})

	// Normalizer
	TransactionsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stacksend",
		Subsystem: "normalizer",
		Name:      "transactions_skipped_total",
		Help:      "Transactions that produced no transfer, by reason",
	}, []string{"reason"})

	TransactionFaults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stacksend",
		Subsystem: "normalizer",
		Name:      "faults_total",
		Help:      "Malformed blocks or transactions isolated from their batch",
	}, []string{"dialect"})

	UnparsableAmounts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stacksend",
		Subsystem: "normalizer",
		Name:      "unparsable_amounts_total",
		Help:      "Recipient amounts that could not be parsed and were recorded as 0",
	}, []string{"dialect"})

	// Ledger
	TransfersRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stacksend",
		Subsystem: "ledger",
		Name:      "transfers_recorded_total",
		Help:      "Transfers inserted into the ledger",
	}, []string{"network", "type"})

	TransfersDuplicate = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stacksend",
		Subsystem: "ledger",
		Name:      "transfers_duplicate_total",
		Help:      "Transfers skipped because the tx id was already recorded",
	}, []string{"network", "type"})

	StorageErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stacksend",
		Subsystem: "ledger",
		Name:      "storage_errors_total",
		Help:      "Storage failures that aborted a transaction",
	}, []string{"stage"})

	// Notifications
	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stacksend",
		Subsystem: "notify",
		Name:      "attempts_total",
		Help:      "Notification attempts by result",
	}, []string{"result"})

	NotificationLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "stacksend",
		Subsystem: "notify",
		Name:      "send_duration_seconds",
		Help:      "Channel send latency",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})

	// Events
	EventsPublishErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "stacksend",
		Subsystem: "events",
		Name:      "publish_errors_total",
		Help:      "Failed transfer event publishes",
	})

	// Bot
	BotCommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stacksend",
		Subsystem: "bot",
		Name:      "commands_total",
		Help:      "Bot commands handled",
	}, []string{"command"})
)
