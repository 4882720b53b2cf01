package followup

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the follow-up subsystem.
type Metrics struct {
	SubmitsTotal     *prometheus.CounterVec
	RunsTotal        *prometheus.CounterVec
	RunDuration      *prometheus.HistogramVec
	RunCases         prometheus.Histogram
	RunOwners        prometheus.Histogram
	RunIntents       prometheus.Histogram
	UnresolvedOwners prometheus.Counter
	DeliveriesTotal  *prometheus.CounterVec
	DeliveryDuration prometheus.Histogram
	DigestsTotal     *prometheus.CounterVec
}

// NewMetrics registers and returns follow-up metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SubmitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nudge_submits_total",
			Help: "Total run submissions by result.",
		}, []string{"result"}),
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nudge_runs_total",
			Help: "Total follow-up runs by final status.",
		}, []string{"status"}),
		RunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "nudge_run_duration_seconds",
			Help:    "Duration of follow-up runs in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms .. ~40s
		}, []string{"status"}),
		RunCases: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "nudge_run_cases",
			Help:    "Case records per run.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1 .. ~2048
		}),
		RunOwners: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "nudge_run_owners",
			Help:    "Distinct resolvable owners per run.",
			Buckets: prometheus.LinearBuckets(0, 5, 10), // 0 .. 45
		}),
		RunIntents: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "nudge_run_intents",
			Help:    "Notification intents assembled per run.",
			Buckets: prometheus.LinearBuckets(0, 5, 10), // 0 .. 45
		}),
		UnresolvedOwners: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nudge_unresolved_owners_total",
			Help: "Total owner identities with no directory entry, across runs.",
		}),
		DeliveriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nudge_deliveries_total",
			Help: "Total intent deliveries by outcome.",
		}, []string{"outcome"}),
		DeliveryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "nudge_delivery_duration_seconds",
			Help:    "Duration of individual intent deliveries in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms .. ~25s
		}),
		DigestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nudge_digests_total",
			Help: "Total run digest generations by outcome.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		m.SubmitsTotal,
		m.RunsTotal,
		m.RunDuration,
		m.RunCases,
		m.RunOwners,
		m.RunIntents,
		m.UnresolvedOwners,
		m.DeliveriesTotal,
		m.DeliveryDuration,
		m.DigestsTotal,
	)

	return m
}
