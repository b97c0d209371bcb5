package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the fee mint engine.
type Metrics struct {
	// --- Event processing ---
	EventsProcessed  *prometheus.CounterVec
	EventsRejected   *prometheus.CounterVec
	EventsDeferred   *prometheus.CounterVec
	EventDuration    *prometheus.HistogramVec
	LastLedgerSeq    *prometheus.GaugeVec

	// --- Accrual ---
	AccruedUnminted  *prometheus.GaugeVec
	FeeAccruedTotal  *prometheus.CounterVec

	// --- Throttle ---
	WindowSum        *prometheus.GaugeVec
	CarryDeficit     *prometheus.GaugeVec
	CapClipped       *prometheus.CounterVec

	// --- Scheduler ---
	SchedulerState    *prometheus.GaugeVec
	MintTriggers      *prometheus.CounterVec
	CongestionForced  *prometheus.CounterVec
	CongestionSamples *prometheus.GaugeVec
	TrailingTxSpend   *prometheus.GaugeVec

	// --- Minting ---
	MintsCommitted   *prometheus.CounterVec
	MintsFailed      *prometheus.CounterVec
	MintedAmount     *prometheus.CounterVec
	SharesMinted     *prometheus.CounterVec
	TxFeesPaid       *prometheus.CounterVec
	SubmitDuration   *prometheus.HistogramVec

	// --- Valuation ---
	ValuationErrors  *prometheus.CounterVec
	ValuationLatency *prometheus.HistogramVec

	// --- Persistence ---
	CheckpointsWritten  prometheus.Counter
	MintRecordsWritten  prometheus.Counter
	CheckpointDuration  prometheus.Histogram
	PersistErrors       *prometheus.CounterVec
	PersistRetry        prometheus.Counter
	PersistLastSequence prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	submitBuckets := []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	localBuckets := []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01}

	return &Metrics{
		EventsProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "feemint_events_processed_total",
			Help: "Ledger-close events fully processed",
		}, []string{"fund"}),

		EventsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "feemint_events_rejected_total",
			Help: "Events rejected (duplicate, out-of-order)",
		}, []string{"fund", "reason"}),

		EventsDeferred: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "feemint_events_deferred_total",
			Help: "Events deferred on transient failure (valuation, submit)",
		}, []string{"fund", "op"}),

		EventDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "feemint_event_duration_seconds",
			Help:    "Time to process one ledger-close event",
			Buckets: submitBuckets,
		}, []string{"fund"}),

		LastLedgerSeq: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "feemint_last_ledger_sequence",
			Help: "Highest ledger sequence processed",
		}, []string{"fund"}),

		AccruedUnminted: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "feemint_accrued_unminted",
			Help: "Fee owed but not yet minted (value units)",
		}, []string{"fund"}),

		FeeAccruedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "feemint_fee_accrued_total",
			Help: "Cumulative fee accrued (value units)",
		}, []string{"fund"}),

		WindowSum: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "feemint_window_minted",
			Help: "Total minted within the trailing 24h window (value units)",
		}, []string{"fund"}),

		CarryDeficit: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "feemint_carry_forward_deficit",
			Help: "Fee owed beyond daily cap, queued for later minting",
		}, []string{"fund"}),

		CapClipped: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "feemint_cap_clipped_total",
			Help: "Mint decisions clipped by the daily cap",
		}, []string{"fund"}),

		SchedulerState: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "feemint_scheduler_state",
			Help: "Scheduler state (0=idle 1=accruing 2=ready 3=congested)",
		}, []string{"fund"}),

		MintTriggers: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "feemint_mint_triggers_total",
			Help: "Mint decisions by trigger reason",
		}, []string{"fund", "reason"}),

		CongestionForced: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "feemint_congestion_forced_total",
			Help: "Mints forced early by network congestion",
		}, []string{"fund"}),

		CongestionSamples: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "feemint_congestion_samples",
			Help: "Base-fee samples currently inside the congestion window",
		}, []string{"fund"}),

		TrailingTxSpend: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "feemint_trailing_day_tx_fees",
			Help: "Ledger transaction fees paid for mints in the trailing 24h (value units)",
		}, []string{"fund"}),

		MintsCommitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "feemint_mints_committed_total",
			Help: "Mint transactions committed on the ledger",
		}, []string{"fund"}),

		MintsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "feemint_mints_failed_total",
			Help: "Mint attempts that failed (transient or rejected)",
		}, []string{"fund", "kind"}),

		MintedAmount: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "feemint_minted_amount_total",
			Help: "Total fee minted (value units)",
		}, []string{"fund"}),

		SharesMinted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "feemint_shares_minted_total",
			Help: "Total share units issued for fees",
		}, []string{"fund"}),

		TxFeesPaid: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "feemint_tx_fees_paid_total",
			Help: "Network transaction fees paid (value units)",
		}, []string{"fund"}),

		SubmitDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "feemint_submit_duration_seconds",
			Help:    "Ledger submission latency",
			Buckets: submitBuckets,
		}, []string{"fund"}),

		ValuationErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "feemint_valuation_errors_total",
			Help: "Valuation fetch failures",
		}, []string{"fund"}),

		ValuationLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "feemint_valuation_latency_seconds",
			Help:    "Valuation fetch latency",
			Buckets: submitBuckets,
		}, []string{"fund"}),

		CheckpointsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "feemint_checkpoints_written_total",
			Help: "Fee state checkpoints written to Postgres",
		}),

		MintRecordsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "feemint_mint_records_written_total",
			Help: "Mint records appended to Postgres",
		}),

		CheckpointDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "feemint_checkpoint_duration_seconds",
			Help:    "Checkpoint write duration",
			Buckets: localBuckets,
		}),

		PersistErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "feemint_persist_errors_total",
			Help: "Persistence errors",
		}, []string{"error_type"}),

		PersistRetry: promauto.NewCounter(prometheus.CounterOpts{
			Name: "feemint_persist_retry_total",
			Help: "Persistence retries",
		}),

		PersistLastSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "feemint_persist_last_sequence",
			Help: "Last checkpointed ledger sequence",
		}),
	}
}
