package metrics

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

const MetricsSubsystem = "server"

// Metrics contains metrics exposed by the order server.
type Metrics struct {
	// Number of sessions currently registered.
	Sessions metrics.Gauge
	// Number of sessions accepted since start.
	SessionsAccepted metrics.Counter
	// Number of frames decoded from terminals.
	FramesReceived metrics.Counter
	// Number of frames written to terminals.
	FramesSent metrics.Counter
	// Number of connections closed because of an undecodable frame.
	FrameErrors metrics.Counter
	// Number of envelopes dropped because a session queue was full.
	DroppedEnvelopes metrics.Counter
	// Number of requests handled, by type.
	Requests metrics.Counter
	// Number of requests answered with an error, by code.
	RequestErrors metrics.Counter
	// Number of orders in the store.
	Orders metrics.Gauge
}

// PrometheusMetrics returns Metrics build using Prometheus client library.
// Optionally, labels can be provided along with their values ("foo",
// "fooValue").
func PrometheusMetrics(namespace string, labelsAndValues ...string) *Metrics {
	labels := []string{}
	for i := 0; i < len(labelsAndValues); i += 2 {
		labels = append(labels, labelsAndValues[i])
	}
	return &Metrics{
		Sessions: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "sessions",
			Help:      "Number of connected terminals.",
		}, labels).With(labelsAndValues...),
		SessionsAccepted: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "sessions_accepted_total",
			Help:      "Number of accepted terminal connections.",
		}, labels).With(labelsAndValues...),
		FramesReceived: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "frames_received_total",
			Help:      "Number of frames decoded from terminals.",
		}, labels).With(labelsAndValues...),
		FramesSent: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "frames_sent_total",
			Help:      "Number of frames written to terminals.",
		}, labels).With(labelsAndValues...),
		FrameErrors: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "frame_errors_total",
			Help:      "Number of sessions closed because of an undecodable frame.",
		}, labels).With(labelsAndValues...),
		DroppedEnvelopes: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "dropped_envelopes_total",
			Help:      "Number of outbound envelopes dropped because a session queue was full.",
		}, labels).With(labelsAndValues...),
		Requests: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "requests_total",
			Help:      "Number of requests handled, by type.",
		}, withLabel(labels, "type")).With(labelsAndValues...),
		RequestErrors: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "request_errors_total",
			Help:      "Number of requests answered with an error, by code.",
		}, withLabel(labels, "code")).With(labelsAndValues...),
		Orders: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "orders",
			Help:      "Number of orders in the store.",
		}, labels).With(labelsAndValues...),
	}
}

func withLabel(labels []string, label string) []string {
	return append(append([]string(nil), labels...), label)
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		Sessions:         discard.NewGauge(),
		SessionsAccepted: discard.NewCounter(),
		FramesReceived:   discard.NewCounter(),
		FramesSent:       discard.NewCounter(),
		FrameErrors:      discard.NewCounter(),
		DroppedEnvelopes: discard.NewCounter(),
		Requests:         discard.NewCounter(),
		RequestErrors:    discard.NewCounter(),
		Orders:           discard.NewGauge(),
	}
}
