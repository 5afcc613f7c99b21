package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Poller stage counters and histograms, partitioned by market address.

var (
	// Poller
	PollerCyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "phoenix",
		Subsystem: "poller",
		Name:      "cycles_total",
		Help:      "Total poll cycles executed",
	}, []string{"market"})

	PollerCycleErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "phoenix",
		Subsystem: "poller",
		Name:      "cycle_errors_total",
		Help:      "Total poll cycles terminated by a fetch error",
	}, []string{"market"})

	PollerSignaturesFetched = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "phoenix",
		Subsystem: "poller",
		Name:      "signatures_fetched_total",
		Help:      "Total new confirmed signatures returned by ledger queries",
	}, []string{"market"})

	PollerBatchesDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "phoenix",
		Subsystem: "poller",
		Name:      "batches_dispatched_total",
		Help:      "Total event batches pushed onto the output queue",
	}, []string{"market"})

	PollerCycleLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "phoenix",
		Subsystem: "poller",
		Name:      "cycle_duration_seconds",
		Help:      "Poll cycle duration (fetch through dispatch)",
		Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"market"})

	PollerCursorSlot = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "phoenix",
		Subsystem: "poller",
		Name:      "cursor_slot",
		Help:      "Slot of the newest signature recorded as the poll cursor",
	}, []string{"market"})

	// Decoder
	DecoderEventsDecoded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "phoenix",
		Subsystem: "decoder",
		Name:      "events_decoded_total",
		Help:      "Total market events decoded from transactions",
	}, []string{"market", "kind"})

	DecoderErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "phoenix",
		Subsystem: "decoder",
		Name:      "errors_total",
		Help:      "Total decode failures treated as zero-event transactions",
	}, []string{"market"})

	DecoderLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "phoenix",
		Subsystem: "decoder",
		Name:      "decode_duration_seconds",
		Help:      "Per-transaction decode duration (including the RPC fetch)",
		Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"market"})

	// Output queue
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "phoenix",
		Subsystem: "queue",
		Name:      "depth",
		Help:      "Current depth of the output event queue",
	})

	SinkBatchesConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "phoenix",
		Subsystem: "sink",
		Name:      "batches_consumed_total",
		Help:      "Total event batches drained by the configured sink",
	}, []string{"sink"})

	SinkErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "phoenix",
		Subsystem: "sink",
		Name:      "errors_total",
		Help:      "Total sink delivery errors",
	}, []string{"sink"})

	// RPC
	RPCCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "phoenix",
		Subsystem: "rpc",
		Name:      "calls_total",
		Help:      "Total JSON-RPC calls by method and status",
	}, []string{"method", "status"})

	RPCRateLimitWaits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "phoenix",
		Subsystem: "rpc",
		Name:      "rate_limit_waits_total",
		Help:      "Total times RPC calls waited for the rate limiter",
	}, []string{"method"})

	// Alerts
	AlertsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "phoenix",
		Subsystem: "alert",
		Name:      "sent_total",
		Help:      "Total alerts sent",
	}, []string{"channel", "alert_type"})

	AlertsCooldownSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "phoenix",
		Subsystem: "alert",
		Name:      "cooldown_skipped_total",
		Help:      "Total alerts skipped due to cooldown",
	}, []string{"channel", "alert_type"})
)
