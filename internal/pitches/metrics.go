package pitches

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics instruments the tracking operations. A nil *Metrics records nothing.
type Metrics struct {
	views             *prometheus.CounterVec
	progressReports   prometheus.Counter
	actions           *prometheus.CounterVec
	versionConflicts  prometheus.Counter
	mutationDurations *prometheus.HistogramVec
}

// NewMetrics registers the tracking collectors on registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		views: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pitch_views_total",
				Help: "Open events by admission outcome",
			},
			[]string{"outcome"}, // "admitted", "suppressed"
		),
		progressReports: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "pitch_progress_reports_total",
				Help: "Watch progress reports applied",
			},
		),
		actions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pitch_action_clicks_total",
				Help: "Action clicks by action type and whether it was the viewer's first",
			},
			[]string{"action", "first"},
		),
		versionConflicts: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "pitch_version_conflicts_total",
				Help: "Pitch saves rejected by the version check",
			},
		),
		mutationDurations: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pitch_mutation_duration_seconds",
				Help:    "Duration of pitch read-modify-write cycles",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

func (m *Metrics) observeView(admitted bool) {
	if m == nil {
		return
	}
	outcome := "suppressed"
	if admitted {
		outcome = "admitted"
	}
	m.views.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observeProgress() {
	if m == nil {
		return
	}
	m.progressReports.Inc()
}

func (m *Metrics) observeAction(action ActionType, first bool) {
	if m == nil {
		return
	}
	label := "false"
	if first {
		label = "true"
	}
	m.actions.WithLabelValues(string(action), label).Inc()
}

func (m *Metrics) observeConflict() {
	if m == nil {
		return
	}
	m.versionConflicts.Inc()
}

func (m *Metrics) observeMutation(operation string, seconds float64) {
	if m == nil {
		return
	}
	m.mutationDurations.WithLabelValues(operation).Observe(seconds)
}
