package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the risk-decision engine.
type Metrics struct {
	// --- Fraud scoring ---
	TransactionsScored *prometheus.CounterVec
	FraudRuleHits      *prometheus.CounterVec
	ScoreDuration      prometheus.Histogram
	FraudAlertsSent    *prometheus.CounterVec

	// --- Counter store ---
	CounterDegraded *prometheus.CounterVec

	// --- Risk ledger ---
	AssessmentsTotal     *prometheus.CounterVec
	RiskAlertsCreated    *prometheus.CounterVec
	PositionsUpdated     prometheus.Counter
	PositionUpdateErrors prometheus.Counter

	// --- Request gate ---
	BreakerState       *prometheus.GaugeVec
	BreakerTransitions *prometheus.CounterVec
	BreakerRejections  *prometheus.CounterVec
	RateLimitHits      prometheus.Counter
	GateEntries        *prometheus.GaugeVec

	// --- Events & persistence ---
	EventPublishFailures *prometheus.CounterVec
	PersistErrors        *prometheus.CounterVec
	SettlementsIngested  *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics on the default
// registry. Call at most once per process.
func NewMetrics() *Metrics {
	scoreBuckets := []float64{
		0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005,
		0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0,
	}

	return &Metrics{
		TransactionsScored: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "risk_transactions_scored_total",
			Help: "Transactions scored by the fraud engine, by verdict",
		}, []string{"verdict"}),

		FraudRuleHits: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "risk_fraud_rule_hits_total",
			Help: "Fraud rules triggered during scoring",
		}, []string{"rule"}),

		ScoreDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "risk_score_duration_seconds",
			Help:    "Time to produce a fraud score, including counter reads",
			Buckets: scoreBuckets,
		}),

		FraudAlertsSent: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "risk_fraud_alerts_sent_total",
			Help: "Fraud alerts published, by risk level",
		}, []string{"level"}),

		CounterDegraded: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "risk_counter_store_degraded_total",
			Help: "Counter store operations that failed open (no signal)",
		}, []string{"op"}),

		AssessmentsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "risk_assessments_total",
			Help: "Pre-commit risk assessments, by outcome",
		}, []string{"outcome"}),

		RiskAlertsCreated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "risk_alerts_created_total",
			Help: "Risk alerts created by the ledger",
		}, []string{"type", "level"}),

		PositionsUpdated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "risk_positions_updated_total",
			Help: "Daily position updates applied",
		}),

		PositionUpdateErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "risk_position_update_errors_total",
			Help: "Position updates that degraded due to store errors",
		}),

		BreakerState: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "risk_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"service"}),

		BreakerTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "risk_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		}, []string{"service", "to"}),

		BreakerRejections: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "risk_circuit_breaker_rejections_total",
			Help: "Calls rejected while a breaker was open",
		}, []string{"service"}),

		RateLimitHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "risk_rate_limit_hits_total",
			Help: "Requests rejected by the per-client rate limiter",
		}),

		GateEntries: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "risk_gate_entries",
			Help: "Live per-key entries held by the request gate",
		}, []string{"kind"}),

		EventPublishFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "risk_event_publish_failures_total",
			Help: "Event sink publish failures (fire-and-forget, logged)",
		}, []string{"subject"}),

		PersistErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "risk_persist_errors_total",
			Help: "Persistence errors recovered without blocking payments",
		}, []string{"store"}),

		SettlementsIngested: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "risk_settlements_ingested_total",
			Help: "Settlement events consumed from the stream",
		}, []string{"status"}),
	}
}
