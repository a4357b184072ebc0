package observability

import (
	"context"

	"github.com/aretw0/chequeflow/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors fed by the workflow hooks.
type Metrics struct {
	ScreenVisits     *prometheus.CounterVec
	Dispatches       *prometheus.CounterVec
	Results          *prometheus.CounterVec
	CallDuration     *prometheus.HistogramVec
	Rollbacks        *prometheus.CounterVec
	SessionsEnded    *prometheus.CounterVec
	ActiveSessions   prometheus.Gauge
	RollbackAttempts prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg uses prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		ScreenVisits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chequeflow_screen_visits_total",
			Help: "Total number of screen entries",
		}, []string{"screen"}),
		Dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chequeflow_dispatches_total",
			Help: "Total number of operations sent to the transport",
		}, []string{"operation"}),
		Results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chequeflow_results_total",
			Help: "Operation results by outcome and error kind",
		}, []string{"operation", "outcome", "error_kind"}),
		CallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chequeflow_call_duration_seconds",
			Help:    "Duration of transport calls",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		Rollbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chequeflow_rollbacks_total",
			Help: "Back navigations by result",
		}, []string{"from", "committed"}),
		SessionsEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chequeflow_sessions_ended_total",
			Help: "Sessions by terminal phase",
		}, []string{"phase"}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chequeflow_active_sessions",
			Help: "Sessions started and not yet ended",
		}),
		RollbackAttempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chequeflow_rollback_attempt",
			Help:    "Attempt number of each rollback request",
			Buckets: []float64{1, 2, 3, 5, 8},
		}),
	}
	for _, c := range []prometheus.Collector{
		m.ScreenVisits, m.Dispatches, m.Results, m.CallDuration,
		m.Rollbacks, m.SessionsEnded, m.ActiveSessions, m.RollbackAttempts,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Hooks returns lifecycle hooks that record into m.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnSessionStart: func(context.Context, *domain.SessionEvent) {
			m.ActiveSessions.Inc()
		},
		OnScreenEnter: func(_ context.Context, e *domain.ScreenEvent) {
			m.ScreenVisits.WithLabelValues(string(e.Screen)).Inc()
		},
		OnDispatch: func(_ context.Context, e *domain.OperationEvent) {
			m.Dispatches.WithLabelValues(string(e.Operation)).Inc()
		},
		OnResult: func(_ context.Context, e *domain.OperationEvent) {
			kind := ""
			if e.Error != nil {
				kind = string(e.Error.Kind)
			}
			m.Results.WithLabelValues(string(e.Operation), string(e.Outcome), kind).Inc()
			if e.Duration > 0 {
				m.CallDuration.WithLabelValues(string(e.Operation)).Observe(e.Duration.Seconds())
			}
		},
		OnRollback: func(_ context.Context, e *domain.RollbackEvent) {
			committed := "false"
			if e.Committed {
				committed = "true"
			}
			m.Rollbacks.WithLabelValues(string(e.From), committed).Inc()
			m.RollbackAttempts.Observe(float64(e.Attempt))
		},
		OnSessionEnd: func(_ context.Context, e *domain.SessionEvent) {
			m.SessionsEnded.WithLabelValues(string(e.Phase)).Inc()
			m.ActiveSessions.Dec()
		},
	}
}
