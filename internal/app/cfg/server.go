package cfg

import (
	"time"

	"github.com/chefdemo-gingerale533/jojoburgerspos/internal"
	"github.com/chefdemo-gingerale533/jojoburgerspos/internal/app/apps"
	"github.com/chefdemo-gingerale533/jojoburgerspos/internal/pkg/metrics"
)

// MetricsNamespace prefixes every exported metric.
const MetricsNamespace = "jojoburgerspos"

// ServerCfg configures the limits of the order server.
type ServerCfg struct {
	maxSessions   int
	maxFrameBytes int
	queueCap      int
	shutdownGrace time.Duration
}

// NewServerCfg creates a new ServerCfg.
func NewServerCfg(maxSessions, maxFrameBytes, queueCap int, shutdownGrace time.Duration) *ServerCfg {
	return &ServerCfg{
		maxSessions:   maxSessions,
		maxFrameBytes: maxFrameBytes,
		queueCap:      queueCap,
		shutdownGrace: shutdownGrace,
	}
}

// ServerFromEnv creates a new ServerCfg from the current environment.
func ServerFromEnv() *ServerCfg {
	return NewServerCfg(
		internal.MaxSessions,
		internal.MaxFrameBytes,
		internal.QueueCap,
		time.Duration(internal.ShutdownGraceMS)*time.Millisecond,
	)
}

// ApplyServerApp applies the ServerCfg to a ServerApp.
func (cfg ServerCfg) ApplyServerApp(app *apps.ServerApp) error {
	app.MaxSessions = cfg.maxSessions
	app.MaxFrameBytes = cfg.maxFrameBytes
	app.QueueCap = cfg.queueCap
	app.ShutdownGrace = cfg.shutdownGrace
	return nil
}

// HealthCfg configures the port of the health endpoint. Port 0 disables it.
type HealthCfg struct {
	port uint16
}

// NewHealthCfg creates a new HealthCfg.
func NewHealthCfg(port uint16) *HealthCfg {
	return &HealthCfg{port: port}
}

// HealthFromEnv creates a new HealthCfg from the current environment.
func HealthFromEnv() *HealthCfg {
	return NewHealthCfg(uint16(internal.HealthPort))
}

// ApplyServerApp applies the HealthCfg to a ServerApp.
func (cfg HealthCfg) ApplyServerApp(app *apps.ServerApp) error {
	app.HealthPort = cfg.port
	return nil
}

// KafkaCfg configures the Kafka feed of order snapshots. No brokers disables it.
type KafkaCfg struct {
	brokers []string
	topic   string
}

// NewKafkaCfg creates a new KafkaCfg.
func NewKafkaCfg(brokers []string, topic string) *KafkaCfg {
	return &KafkaCfg{brokers: brokers, topic: topic}
}

// KafkaFromEnv creates a new KafkaCfg from the current environment.
func KafkaFromEnv() *KafkaCfg {
	return NewKafkaCfg(internal.KafkaBrokers, internal.KafkaTopic)
}

// ApplyServerApp applies the KafkaCfg to a ServerApp.
func (cfg KafkaCfg) ApplyServerApp(app *apps.ServerApp) error {
	app.KafkaBrokers = append([]string(nil), cfg.brokers...)
	app.KafkaTopic = cfg.topic
	return nil
}

// MetricsCfg sets the metrics a ServerApp reports to.
type MetricsCfg struct {
	metrics *metrics.Metrics
}

// NewMetricsCfg creates a new MetricsCfg.
func NewMetricsCfg(m *metrics.Metrics) *MetricsCfg {
	return &MetricsCfg{metrics: m}
}

// PrometheusMetricsCfg registers the server metrics with the default
// Prometheus registry. It must be called at most once per process.
func PrometheusMetricsCfg() *MetricsCfg {
	return NewMetricsCfg(metrics.PrometheusMetrics(MetricsNamespace, "env", internal.Env))
}

// ApplyServerApp applies the MetricsCfg to a ServerApp.
func (cfg MetricsCfg) ApplyServerApp(app *apps.ServerApp) error {
	app.Metrics = cfg.metrics
	return nil
}
