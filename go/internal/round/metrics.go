package round

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector defines the interface for collecting game metrics
type MetricsCollector interface {
	RecordRoundStarted(roundNumber int)
	RecordBet(accepted bool, reason string)
	RecordDeliveryFailure()
	RecordConnections(count int)
	RecordMediaUnavailable()
}

// NoOpMetricsCollector is a no-op implementation for when metrics aren't needed
type NoOpMetricsCollector struct{}

func (n *NoOpMetricsCollector) RecordRoundStarted(roundNumber int)     {}
func (n *NoOpMetricsCollector) RecordBet(accepted bool, reason string) {}
func (n *NoOpMetricsCollector) RecordDeliveryFailure()                 {}
func (n *NoOpMetricsCollector) RecordConnections(count int)            {}
func (n *NoOpMetricsCollector) RecordMediaUnavailable()                {}

// PrometheusMetrics implements MetricsCollector using Prometheus
type PrometheusMetrics struct {
	roundsStarted    prometheus.Counter
	currentRound     prometheus.Gauge
	bets             *prometheus.CounterVec
	deliveryFailures prometheus.Counter
	connections      prometheus.Gauge
	mediaUnavailable prometheus.Counter
}

// NewPrometheusMetrics creates the collectors and registers them with reg
func NewPrometheusMetrics(reg prometheus.Registerer) (*PrometheusMetrics, error) {
	m := &PrometheusMetrics{
		roundsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "betsync",
			Name:      "rounds_started_total",
			Help:      "Number of rounds started since process start.",
		}),
		currentRound: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "betsync",
			Name:      "current_round",
			Help:      "Number of the current round.",
		}),
		bets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "betsync",
			Name:      "bets_total",
			Help:      "Bets received, by outcome.",
		}, []string{"status", "reason"}),
		deliveryFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "betsync",
			Name:      "delivery_failures_total",
			Help:      "Messages that could not be handed to a connection.",
		}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "betsync",
			Name:      "connections",
			Help:      "Currently registered connections.",
		}),
		mediaUnavailable: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "betsync",
			Name:      "media_unavailable_total",
			Help:      "Round starts postponed because no media was available.",
		}),
	}

	collectors := []prometheus.Collector{
		m.roundsStarted,
		m.currentRound,
		m.bets,
		m.deliveryFailures,
		m.connections,
		m.mediaUnavailable,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func (m *PrometheusMetrics) RecordRoundStarted(roundNumber int) {
	m.roundsStarted.Inc()
	m.currentRound.Set(float64(roundNumber))
}

func (m *PrometheusMetrics) RecordBet(accepted bool, reason string) {
	status := "accepted"
	if !accepted {
		status = "rejected"
	}
	m.bets.WithLabelValues(status, reason).Inc()
}

func (m *PrometheusMetrics) RecordDeliveryFailure() {
	m.deliveryFailures.Inc()
}

func (m *PrometheusMetrics) RecordConnections(count int) {
	m.connections.Set(float64(count))
}

func (m *PrometheusMetrics) RecordMediaUnavailable() {
	m.mediaUnavailable.Inc()
}
