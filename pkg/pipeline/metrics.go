package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Stage names used as metric labels
const (
	StageLoad       = "load"
	StageExtract    = "extract"
	StageTransform  = "transform"
	StageClean      = "clean"
	StageDistribute = "distribute"
	StageReport     = "report"
)

// Row outcomes used as metric labels
const (
	OutcomeAccepted  = "accepted"
	OutcomeRejected  = "rejected"
	OutcomeDuplicate = "duplicate"
)

// Run statuses used as metric labels
const (
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
	RunCancelled = "cancelled"
)

// Metrics tracks pipeline runs on a prometheus registerer
type Metrics struct {
	Rows          *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec
	Runs          *prometheus.CounterVec
}

// NewMetrics registers the pipeline collectors on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Rows: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ingress_rows_total",
			Help: "Rows processed per stage and outcome.",
		}, []string{"stage", "outcome"}),
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ingress_stage_duration_seconds",
			Help:    "Wall time spent in each pipeline stage.",
			Buckets: prometheus.ExponentialBuckets(0.005, 4, 8),
		}, []string{"stage"}),
		Runs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ingress_runs_total",
			Help: "Pipeline runs by final status.",
		}, []string{"status"}),
	}
}

func (m *Metrics) addRows(stage, outcome string, n int) {
	if n > 0 {
		m.Rows.WithLabelValues(stage, outcome).Add(float64(n))
	}
}

func (m *Metrics) observeStage(stage string, d time.Duration) {
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (m *Metrics) runFinished(status string) {
	m.Runs.WithLabelValues(status).Inc()
}
