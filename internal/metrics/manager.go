package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "tempo"

// Event delivery outcomes.
const (
	OutcomeAcked = "acked"
	OutcomeRetry = "retry"
	OutcomeDead  = "dead"
)

// Manager holds the instruments. A nil *Manager is valid and records
// nothing.
type Manager struct {
	// counters
	CounterEvents         *prometheus.CounterVec
	CounterGoalsUpdated   prometheus.Counter
	CounterGoalsCompleted prometheus.Counter
	CounterSweepUsers     *prometheus.CounterVec
	CounterRequests       *prometheus.CounterVec

	// histograms
	HistSweepDuration        prometheus.Histogram
	HistogramRequestDuration *prometheus.HistogramVec
}

// NewTestManagerAndRegistry returns a manager on a fresh registry.
func NewTestManagerAndRegistry() (*Manager, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	return NewManager("test", reg), reg
}

// NewManager registers all instruments on reg under the given subsystem.
func NewManager(subsystem string, reg prometheus.Registerer) *Manager {
	factory := promauto.With(reg)

	return &Manager{
		CounterEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "events_handled",
			Help:      "Completion events handled, by kind and outcome",
		}, []string{"kind", "outcome"}),
		CounterGoalsUpdated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "goals_updated",
			Help:      "Goals recomputed by sweeps",
		}),
		CounterGoalsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "goals_completed",
			Help:      "Goals completed by sweeps",
		}),
		CounterSweepUsers: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "sweep_users",
			Help:      "Users processed by sweeps, by result",
		}, []string{"result"}),
		CounterRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "request",
			Help:      "The total number of incoming requests",
		}, []string{"method", "status"}),
		HistSweepDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "sweep_duration_seconds",
			Help:      "Duration of goal sweeps",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		HistogramRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "request_duration_seconds",
			Help:      "Duration of dashboard requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

// EventHandled counts one delivery attempt.
func (m *Manager) EventHandled(kind, outcome string) {
	if m == nil {
		return
	}
	m.CounterEvents.WithLabelValues(kind, outcome).Inc()
}

// SweepUser records the result for one user of a sweep.
func (m *Manager) SweepUser(updated, completed int, failed bool) {
	if m == nil {
		return
	}
	m.CounterGoalsUpdated.Add(float64(updated))
	m.CounterGoalsCompleted.Add(float64(completed))
	result := "ok"
	if failed {
		result = "error"
	}
	m.CounterSweepUsers.WithLabelValues(result).Inc()
}

// SweepDone observes a finished sweep.
func (m *Manager) SweepDone(d time.Duration) {
	if m == nil {
		return
	}
	m.HistSweepDuration.Observe(d.Seconds())
}

// RequestMetrics counts requests by method and status and times them by
// route.
func (m *Manager) RequestMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		begin := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.HistogramRequestDuration.WithLabelValues(route).Observe(time.Since(begin).Seconds())
		m.CounterRequests.With(prometheus.Labels{
			"method": c.Request.Method,
			"status": strconv.Itoa(c.Writer.Status()),
		}).Inc()
	}
}
