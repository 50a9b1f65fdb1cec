package apps

import (
	"context"
	"fmt"
	"time"

	"github.com/chefdemo-gingerale533/jojoburgerspos/internal"
	"github.com/chefdemo-gingerale533/jojoburgerspos/internal/pkg/health"
	"github.com/chefdemo-gingerale533/jojoburgerspos/internal/pkg/metrics"
	"github.com/chefdemo-gingerale533/jojoburgerspos/internal/pkg/notify"
	"github.com/chefdemo-gingerale533/jojoburgerspos/internal/pkg/server"
	"github.com/chefdemo-gingerale533/jojoburgerspos/internal/pkg/validate"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var logger logrus.FieldLogger = logrus.StandardLogger()

// healthShutdownTimeout bounds how long the health server gets to drain.
const healthShutdownTimeout = 2 * time.Second

// ServerAppCfg configures a ServerApp.
type ServerAppCfg interface {
	ApplyServerApp(*ServerApp) error
}

// ServerApp runs the order server together with its health endpoint and the
// optional Kafka feed of order list snapshots.
type ServerApp struct {
	Port          uint16 `validate:"required"`
	HealthPort    uint16
	MaxSessions   int           `validate:"min=1"`
	MaxFrameBytes int           `validate:"min=1"`
	QueueCap      int           `validate:"min=1"`
	ShutdownGrace time.Duration `validate:"min=1ms"`
	KafkaBrokers  []string      `validate:"dive,hostname_port"`
	KafkaTopic    string        `validate:"required_with=KafkaBrokers"`
	Metrics       *metrics.Metrics

	// ready is closed once the order server accepts terminals.
	ready chan struct{}
}

// NewServerApp creates a new ServerApp.
func NewServerApp(cfgs ...ServerAppCfg) (*ServerApp, error) {
	app := &ServerApp{
		MaxSessions:   server.DefaultMaxSessions,
		MaxFrameBytes: internal.MaxFrameBytesFlag.Value.(int),
		QueueCap:      internal.QueueCapFlag.Value.(int),
		ShutdownGrace: time.Duration(internal.ShutdownGraceMSFlag.Value.(int)) * time.Millisecond,
		KafkaTopic:    internal.KafkaTopicFlag.Value.(string),
		ready:         make(chan struct{}),
	}
	for _, cfg := range cfgs {
		if err := cfg.ApplyServerApp(app); err != nil {
			return nil, errors.Wrap(err, "apply ServerApp cfg failed")
		}
	}
	if app.Port == 0 {
		app.Port = uint16(internal.Port)
	}
	if app.Metrics == nil {
		app.Metrics = metrics.NopMetrics()
	}
	if err := validate.Validate().Struct(app); err != nil {
		return nil, errors.Wrap(err, "validate ServerApp failed")
	}
	return app, nil
}

// Run serves terminals until ctx is cancelled or a component fails.
func (app *ServerApp) Run(ctx context.Context, args []string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	srv, err := server.NewServer(
		server.WithAddr(fmt.Sprintf(":%d", app.Port)),
		server.WithMetrics(app.Metrics),
		server.WithMaxSessions(app.MaxSessions),
		server.WithQueueCap(app.QueueCap),
		server.WithMaxFrameSize(uint32(app.MaxFrameBytes)),
		server.WithGracePeriod(app.ShutdownGrace),
	)
	if err != nil {
		return errors.Wrap(err, "create server failed")
	}
	if err := srv.Start(ctx); err != nil {
		return errors.Wrap(err, "start server failed")
	}
	close(app.ready)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		return srv.Stop()
	})

	if len(app.KafkaBrokers) > 0 {
		pub, err := notify.NewKafkaPublisher(notify.WithBrokers(app.KafkaBrokers, app.KafkaTopic))
		if err != nil {
			cancel()
			_ = g.Wait()
			return errors.Wrap(err, "create kafka publisher failed")
		}
		unsubscribe := srv.Store().OnOrdersChanged(pub.Publish)
		defer func() {
			unsubscribe()
			if err := pub.Close(); err != nil {
				logger.WithError(err).Warn("close kafka publisher failed")
			}
		}()
		g.Go(func() error {
			return pub.Run(gctx)
		})
		logger.WithFields(logrus.Fields{
			"brokers": app.KafkaBrokers,
			"topic":   app.KafkaTopic,
		}).Info("publishing order snapshots")
	}

	if app.HealthPort != 0 {
		hs, err := health.NewServer(
			health.WithPort(app.HealthPort),
			health.WithStatus(func() (int, int) {
				return srv.Sessions(), srv.Store().Len()
			}),
		)
		if err != nil {
			cancel()
			_ = g.Wait()
			return errors.Wrap(err, "create health server failed")
		}
		g.Go(hs.Start)
		g.Go(func() error {
			<-gctx.Done()
			sctx, scancel := context.WithTimeout(context.Background(), healthShutdownTimeout)
			defer scancel()
			return hs.Shutdown(sctx)
		})
	}

	return errors.Wrap(g.Wait(), "server app failed")
}
