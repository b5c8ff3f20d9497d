package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// NexusMetrics is the Prometheus surface for a single Nexus Controller's
// observable state and membership activity. A nil *NexusMetrics is valid:
// every method is a no-op, so callers need not branch on whether metrics
// are enabled.
type NexusMetrics struct {
	state              *prometheus.GaugeVec
	childCount         *prometheus.GaugeVec
	membershipOpsTotal *prometheus.CounterVec
	reconfigureSeconds *prometheus.HistogramVec
}

// NewNexusMetrics constructs the Nexus metric collectors against the
// process-wide registry. Returns nil if metrics are not enabled
// (InitRegistry not called).
func NewNexusMetrics() *NexusMetrics {
	if !IsEnabled() {
		return nil
	}
	reg := GetRegistry()
	return &NexusMetrics{
		state: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "nexus_state",
				Help: "Current Nexus state as a small integer (Init=0, Open=1, Degraded=2, Closed=3, Faulted=4).",
			},
			[]string{"name"},
		),
		childCount: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "nexus_child_count",
				Help: "Number of children currently registered to the Nexus.",
			},
			[]string{"name"},
		),
		membershipOpsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexus_membership_ops_total",
				Help: "Total membership operations by operation and result.",
			},
			[]string{"op", "result"},
		),
		reconfigureSeconds: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nexus_reconfigure_seconds",
				Help:    "Time to publish and acknowledge a reconfiguration across all channels.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"name"},
		),
	}
}

// SetState records the Nexus's current state, encoded per the help text
// above.
func (m *NexusMetrics) SetState(name string, state int) {
	if m == nil {
		return
	}
	m.state.WithLabelValues(name).Set(float64(state))
}

// SetChildCount records the current child_count.
func (m *NexusMetrics) SetChildCount(name string, count int) {
	if m == nil {
		return
	}
	m.childCount.WithLabelValues(name).Set(float64(count))
}

// ObserveMembershipOp records the outcome of a membership operation, result
// being "ok" or "error".
func (m *NexusMetrics) ObserveMembershipOp(op, result string) {
	if m == nil {
		return
	}
	m.membershipOpsTotal.WithLabelValues(op, result).Inc()
}

// ObserveReconfigure records how long a reconfiguration took to reach every
// channel.
func (m *NexusMetrics) ObserveReconfigure(name string, d time.Duration) {
	if m == nil {
		return
	}
	m.reconfigureSeconds.WithLabelValues(name).Observe(d.Seconds())
}
