package host

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/opentalon/funchost/internal/description"
)

const namespace = "funchost"

// Outcome labels of funchost_resolutions_total.
const (
	OutcomeResolved           = "resolved"
	OutcomeTriggerConfigError = "trigger_config_error"
	OutcomeUnknownTriggerType = "unknown_trigger_type"
	OutcomeNoMatchingProvider = "no_matching_provider"
	OutcomeError              = "error"
)

// Metrics holds the host's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	resolutions *prometheus.CounterVec
	duration    prometheus.Histogram
	registered  prometheus.Gauge
	invocations *prometheus.CounterVec
	invokeTime  prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolutions_total",
			Help:      "Function folder resolutions by outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "resolve_duration_seconds",
			Help:      "Time spent resolving one function folder.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 8),
		}),
		registered: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "registered_functions",
			Help:      "Functions currently in the registration table.",
		}),
		invocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invocations_total",
			Help:      "Function invocations by result.",
		}, []string{"result"}),
		invokeTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "invoke_duration_seconds",
			Help:      "Function invocation latency.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg != nil {
		reg.MustRegister(m.resolutions, m.duration, m.registered, m.invocations, m.invokeTime)
	}
	return m
}

// OutcomeLabel classifies a resolution error.
func OutcomeLabel(err error) string {
	switch {
	case err == nil:
		return OutcomeResolved
	case description.IsTriggerConfigError(err):
		return OutcomeTriggerConfigError
	case description.IsUnknownTriggerType(err):
		return OutcomeUnknownTriggerType
	case description.IsNoMatchingProvider(err):
		return OutcomeNoMatchingProvider
	default:
		return OutcomeError
	}
}

func (m *Metrics) observe(err error, d time.Duration) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(OutcomeLabel(err)).Inc()
	m.duration.Observe(d.Seconds())
}

func (m *Metrics) setRegistered(n int) {
	if m == nil {
		return
	}
	m.registered.Set(float64(n))
}

func (m *Metrics) observeInvocation(err error, d time.Duration) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.invocations.WithLabelValues(result).Inc()
	m.invokeTime.Observe(d.Seconds())
}
