package invoke

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	callbackrt "github.com/wippyai/callback-runtime"
)

const (
	outcomeSuccess    = "success"
	outcomeError      = "error"
	outcomeUnexpected = "unexpected_failure"
	outcomeTransport  = "transport"
	outcomeFree       = "free"
)

// Metrics counts boundary crossings by method index and outcome.
type Metrics struct {
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics creates the dispatcher metrics and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		calls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "callback",
				Subsystem: "invoker",
				Name:      "calls_total",
				Help:      "Boundary crossings by method index and outcome",
			},
			[]string{"method", "outcome"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "callback",
				Subsystem: "invoker",
				Name:      "call_duration_seconds",
				Help:      "Time spent inside the boundary",
				Buckets:   []float64{0.00001, 0.0001, 0.001, 0.01, 0.1, 1},
			},
			[]string{"method"},
		),
	}
}

// Calls returns the counter for one method and outcome.
func (m *Metrics) Calls(method callbackrt.MethodIndex, outcome string) prometheus.Counter {
	return m.calls.WithLabelValues(strconv.FormatUint(uint64(method), 10), outcome)
}

func (m *Metrics) observe(method callbackrt.MethodIndex, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	label := strconv.FormatUint(uint64(method), 10)
	m.calls.WithLabelValues(label, outcome).Inc()
	m.duration.WithLabelValues(label).Observe(d.Seconds())
}
