package telemetry

// Histogram bucket definitions
var (
	// DeliveryBuckets for outbound webhook/broker calls
	DeliveryBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

	// BatchSizeBuckets for records per flushed batch
	BatchSizeBuckets = []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000}
)

// Intake Metrics
var (
	// EventsTotal counts host events by kind (client_ready, user_changes, revision, disconnect)
	EventsTotal CounterVec = noopCounterVec{}

	// DroppedEventsTotal counts events ignored by reason (missing_identity, filtered, unknown_session, not_loaded)
	DroppedEventsTotal CounterVec = noopCounterVec{}

	// SessionsTracked tracks entries in the session directory
	SessionsTracked Gauge = NoopStat{}
)

// Aggregation Metrics
var (
	// LedgerRecords tracks change records waiting for the next flush
	LedgerRecords Gauge = NoopStat{}

	// FlushesTotal counts non-empty batches handed to the dispatcher
	FlushesTotal Counter = NoopStat{}

	// FlushRecords measures records per flushed batch
	FlushRecords Histogram = NoopStat{}
)

// Delivery Metrics
var (
	// DeliveriesTotal counts delivery attempts by scheme and result (delivered, failed)
	DeliveriesTotal CounterVec = noopCounterVec{}

	// DeliveryDurationSeconds measures delivery latency by scheme
	DeliveryDurationSeconds HistogramVec = noopHistogramVec{}
)

// InitMetrics initializes all Prometheus metrics.
// Must be called after InitializeTelemetry().
func InitMetrics() {
	EventsTotal = NewCounterVec(
		"events_total",
		"Host events received by kind",
		[]string{"kind"},
	)
	DroppedEventsTotal = NewCounterVec(
		"dropped_events_total",
		"Host events ignored by reason",
		[]string{"reason"},
	)
	SessionsTracked = NewGauge(
		"sessions_tracked",
		"Number of sessions in the session directory",
	)

	LedgerRecords = NewGauge(
		"ledger_records",
		"Change records pending the next flush",
	)
	FlushesTotal = NewCounter(
		"flushes_total",
		"Total non-empty batches flushed",
	)
	FlushRecords = NewHistogramWithBuckets(
		"flush_records",
		"Records per flushed batch",
		BatchSizeBuckets,
	)

	DeliveriesTotal = NewCounterVec(
		"deliveries_total",
		"Delivery attempts by scheme and result",
		[]string{"scheme", "result"},
	)
	DeliveryDurationSeconds = NewHistogramVec(
		"delivery_duration_seconds",
		"Delivery duration in seconds",
		[]string{"scheme"},
		DeliveryBuckets,
	)
}
