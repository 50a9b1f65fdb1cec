// Package log add logging utilities.
package log

import (
	"strings"
	"time"

	"github.com/chefdemo-gingerale533/jojoburgerspos/internal/pkg/codec"
	"github.com/chefdemo-gingerale533/jojoburgerspos/internal/pkg/order"

	"github.com/sirupsen/logrus"
)

// SetLogger sets the default logger's level.
func SetLogger(level string) {
	customFormatter := new(logrus.TextFormatter)
	customFormatter.TimestampFormat = time.RFC3339
	customFormatter.FullTimestamp = true
	logrus.SetFormatter(customFormatter)
	logrus.SetLevel(ParseLevel(level))
}

// ParseLevel maps a level name to a logrus level, defaulting to error.
func ParseLevel(level string) logrus.Level {
	switch strings.ToLower(level) {
	case "trace":
		return logrus.TraceLevel
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.ErrorLevel
	}
}

// EnvelopeToFields describes an envelope without dumping its whole payload.
func EnvelopeToFields(env codec.Envelope) logrus.Fields {
	return logrus.Fields{
		"type":  env.Type,
		"bytes": len(env.Data),
	}
}

// OrderToFields describes an order.
func OrderToFields(o order.Order) logrus.Fields {
	return logrus.Fields{
		"order":  o.ID,
		"status": o.Status.String(),
		"items":  len(o.Items),
	}
}
