// Package internal holds the command line flags shared by every app and the
// values they resolve to.
//
// Each flag can also be set through the environment, prefixed with JOJO_ and
// upper-cased, e.g. JOJO_PORT=5001 or JOJO_KAFKA_BROKERS=a:9092,b:9092. A .env
// file in the working directory is loaded first if present.
package internal

import (
	"io/fs"
	"strings"

	"github.com/chefdemo-gingerale533/jojoburgerspos/internal/pkg/validate"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment variables that override flags.
const EnvPrefix = "JOJO"

// Flag describes a command line flag. The type of Value selects the flag type
// and is its default.
type Flag struct {
	Name  string
	Usage string
	Value interface{}
}

// Flags.
var (
	EnvFlag = Flag{
		Name:  "env",
		Usage: "deployment environment: development, test or production",
		Value: "development",
	}
	LogLevelFlag = Flag{
		Name:  "log-level",
		Usage: "log level: trace, debug, info, warn or error",
		Value: "info",
	}
	PortFlag = Flag{
		Name:  "port",
		Usage: "TCP port of the order server",
		Value: 5000,
	}
	HealthPortFlag = Flag{
		Name:  "health-port",
		Usage: "HTTP port serving /health and /metrics, 0 disables it",
		Value: 8081,
	}
	MaxSessionsFlag = Flag{
		Name:  "max-sessions",
		Usage: "maximum number of connected terminals",
		Value: 256,
	}
	MaxFrameBytesFlag = Flag{
		Name:  "max-frame-bytes",
		Usage: "largest accepted frame body in bytes",
		Value: 1 << 20,
	}
	QueueCapFlag = Flag{
		Name:  "queue-cap",
		Usage: "outbound envelopes buffered per terminal before new ones are dropped",
		Value: 1024,
	}
	ShutdownGraceMSFlag = Flag{
		Name:  "shutdown-grace-ms",
		Usage: "milliseconds terminals get to flush on shutdown before sockets are forced closed",
		Value: 5000,
	}
	KafkaBrokersFlag = Flag{
		Name:  "kafka-brokers",
		Usage: "Kafka brokers receiving order list snapshots, empty disables the feed",
		Value: []string{},
	}
	KafkaTopicFlag = Flag{
		Name:  "kafka-topic",
		Usage: "Kafka topic for order list snapshots",
		Value: "orders",
	}
	ServerHostFlag = Flag{
		Name:  "server-host",
		Usage: "host of the order server the client connects to",
		Value: "localhost",
	}
	ClientTimeoutMSFlag = Flag{
		Name:  "client-timeout-ms",
		Usage: "milliseconds the client waits for a reply",
		Value: 5000,
	}
)

// Resolved flag values, set by ValidateEnv.
var (
	Env             string
	LogLevel        string
	Port            int
	HealthPort      int
	MaxSessions     int
	MaxFrameBytes   int
	QueueCap        int
	ShutdownGraceMS int
	KafkaBrokers    []string
	KafkaTopic      string
	ServerHost      string
	ClientTimeoutMS int
)

type env struct {
	Env             string   `validate:"oneof=development test production"`
	LogLevel        string   `validate:"oneof=trace debug info warn error"`
	Port            int      `validate:"min=1,max=65535"`
	HealthPort      int      `validate:"min=0,max=65535"`
	MaxSessions     int      `validate:"min=1"`
	MaxFrameBytes   int      `validate:"min=64,max=67108864"`
	QueueCap        int      `validate:"min=1"`
	ShutdownGraceMS int      `validate:"min=1"`
	KafkaBrokers    []string `validate:"dive,hostname_port"`
	KafkaTopic      string   `validate:"required_with=KafkaBrokers"`
	ServerHost      string   `validate:"required"`
	ClientTimeoutMS int      `validate:"min=1"`
}

// RegisterCommandFlags adds flags to cmd as persistent flags and binds them to viper.
func RegisterCommandFlags(cmd *cobra.Command, flags []*Flag) error {
	pf := cmd.PersistentFlags()
	for _, f := range flags {
		switch v := f.Value.(type) {
		case string:
			pf.String(f.Name, v, f.Usage)
		case int:
			pf.Int(f.Name, v, f.Usage)
		case bool:
			pf.Bool(f.Name, v, f.Usage)
		case []string:
			pf.StringSlice(f.Name, v, f.Usage)
		default:
			return errors.Errorf("flag %s has unsupported type %T", f.Name, f.Value)
		}
		if err := viper.BindPFlag(f.Name, pf.Lookup(f.Name)); err != nil {
			return errors.Wrapf(err, "bind flag %s failed", f.Name)
		}
	}
	return nil
}

// ValidateEnv loads .env, resolves every flag and validates the result.
func ValidateEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return errors.Wrap(err, "load .env failed")
	}
	e := env{
		Env:             viper.GetString(EnvFlag.Name),
		LogLevel:        strings.ToLower(viper.GetString(LogLevelFlag.Name)),
		Port:            viper.GetInt(PortFlag.Name),
		HealthPort:      viper.GetInt(HealthPortFlag.Name),
		MaxSessions:     viper.GetInt(MaxSessionsFlag.Name),
		MaxFrameBytes:   viper.GetInt(MaxFrameBytesFlag.Name),
		QueueCap:        viper.GetInt(QueueCapFlag.Name),
		ShutdownGraceMS: viper.GetInt(ShutdownGraceMSFlag.Name),
		KafkaBrokers:    splitList(viper.GetStringSlice(KafkaBrokersFlag.Name)),
		KafkaTopic:      viper.GetString(KafkaTopicFlag.Name),
		ServerHost:      viper.GetString(ServerHostFlag.Name),
		ClientTimeoutMS: viper.GetInt(ClientTimeoutMSFlag.Name),
	}
	if err := validate.Validate().Struct(e); err != nil {
		return errors.Wrap(err, "invalid configuration")
	}
	Env = e.Env
	LogLevel = e.LogLevel
	Port = e.Port
	HealthPort = e.HealthPort
	MaxSessions = e.MaxSessions
	MaxFrameBytes = e.MaxFrameBytes
	QueueCap = e.QueueCap
	ShutdownGraceMS = e.ShutdownGraceMS
	KafkaBrokers = e.KafkaBrokers
	KafkaTopic = e.KafkaTopic
	ServerHost = e.ServerHost
	ClientTimeoutMS = e.ClientTimeoutMS
	return nil
}

// splitList flattens comma separated entries, as found in environment variables.
func splitList(values []string) []string {
	out := []string{}
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func init() {
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
	for _, f := range []*Flag{
		&EnvFlag, &LogLevelFlag, &PortFlag, &HealthPortFlag, &MaxSessionsFlag,
		&MaxFrameBytesFlag, &QueueCapFlag, &ShutdownGraceMSFlag, &KafkaBrokersFlag,
		&KafkaTopicFlag, &ServerHostFlag, &ClientTimeoutMSFlag,
	} {
		viper.SetDefault(f.Name, f.Value)
	}
}
