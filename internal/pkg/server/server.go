package server

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/chefdemo-gingerale533/jojoburgerspos/internal/pkg/codec"
	"github.com/chefdemo-gingerale533/jojoburgerspos/internal/pkg/handler"
	"github.com/chefdemo-gingerale533/jojoburgerspos/internal/pkg/metrics"
	"github.com/chefdemo-gingerale533/jojoburgerspos/internal/pkg/order"
	"github.com/chefdemo-gingerale533/jojoburgerspos/internal/pkg/session"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

var logger logrus.FieldLogger = logrus.StandardLogger()

const (
	// DefaultPort is the port terminals connect to.
	DefaultPort = 5000
	// DefaultMaxSessions caps concurrent terminal connections.
	DefaultMaxSessions = 256

	minAcceptBackoff = 5 * time.Millisecond
	maxAcceptBackoff = time.Second
)

// Server accepts terminal connections and keeps them in sync with the order store.
type Server struct {
	addr         string
	store        *order.Store
	metrics      *metrics.Metrics
	maxSessions  int64
	queueCap     int
	maxFrameSize uint32
	gracePeriod  time.Duration
	writeTimeout time.Duration

	registry *session.Registry
	handler  *handler.Handler
	sem      *semaphore.Weighted

	mu          sync.Mutex
	started     bool
	stopped     bool
	listener    net.Listener
	cancel      context.CancelFunc
	unsubscribe func()
	acceptDone  chan struct{}
	stopDone    chan struct{}
	sessions    sync.WaitGroup
}

// Cfg configures a Server.
type Cfg func(*Server) error

// WithAddr sets the listen address, e.g. ":5000" or "127.0.0.1:0".
func WithAddr(addr string) Cfg {
	return func(s *Server) error {
		s.addr = addr
		return nil
	}
}

// WithOrderStore sets the order store shared by all terminals.
func WithOrderStore(store *order.Store) Cfg {
	return func(s *Server) error {
		s.store = store
		return nil
	}
}

// WithMetrics sets the metrics reported by the server and its sessions.
func WithMetrics(m *metrics.Metrics) Cfg {
	return func(s *Server) error {
		s.metrics = m
		return nil
	}
}

// WithMaxSessions caps the number of concurrent sessions.
func WithMaxSessions(n int) Cfg {
	return func(s *Server) error {
		if n <= 0 {
			return errors.New("max sessions must be positive")
		}
		s.maxSessions = int64(n)
		return nil
	}
}

// WithQueueCap sets the outbound queue cap of each session.
func WithQueueCap(n int) Cfg {
	return func(s *Server) error {
		if n <= 0 {
			return errors.New("queue cap must be positive")
		}
		s.queueCap = n
		return nil
	}
}

// WithMaxFrameSize sets the largest inbound frame body accepted.
func WithMaxFrameSize(n uint32) Cfg {
	return func(s *Server) error {
		if n == 0 {
			return errors.New("max frame size must be positive")
		}
		s.maxFrameSize = n
		return nil
	}
}

// WithGracePeriod bounds how long Stop waits for sessions to flush and close.
func WithGracePeriod(d time.Duration) Cfg {
	return func(s *Server) error {
		if d <= 0 {
			return errors.New("grace period must be positive")
		}
		s.gracePeriod = d
		return nil
	}
}

// WithWriteTimeout bounds each write to a terminal.
func WithWriteTimeout(d time.Duration) Cfg {
	return func(s *Server) error {
		if d <= 0 {
			return errors.New("write timeout must be positive")
		}
		s.writeTimeout = d
		return nil
	}
}

// NewServer creates a new Server with the given configuration.
func NewServer(cfgs ...Cfg) (*Server, error) {
	s := &Server{
		addr:         net.JoinHostPort("", "5000"),
		metrics:      metrics.NopMetrics(),
		maxSessions:  DefaultMaxSessions,
		queueCap:     session.DefaultQueueCap,
		maxFrameSize: codec.DefaultMaxFrameSize,
		gracePeriod:  session.DefaultGracePeriod,
		writeTimeout: session.DefaultWriteTimeout,
		registry:     session.NewRegistry(),
		acceptDone:   make(chan struct{}),
		stopDone:     make(chan struct{}),
	}
	for _, cfg := range cfgs {
		if err := cfg(s); err != nil {
			return nil, errors.Wrap(err, "apply Server cfg failed")
		}
	}
	if s.store == nil {
		s.store = order.NewStore()
	}
	h, err := handler.NewHandler(
		handler.WithStore(s.store),
		handler.WithBroadcaster(s.registry),
		handler.WithMetrics(s.metrics),
	)
	if err != nil {
		return nil, errors.Wrap(err, "new handler failed")
	}
	s.handler = h
	s.sem = semaphore.NewWeighted(s.maxSessions)
	return s, nil
}

// Store returns the order store the server synchronizes.
func (s *Server) Store() *order.Store {
	return s.store
}

// Sessions returns the number of registered sessions.
func (s *Server) Sessions() int {
	return s.registry.Len()
}

// Addr returns the bound listen address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Start binds the listener and starts accepting terminals. It returns a
// *BindError if the address cannot be bound. The server runs until Stop is
// called or ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrAlreadyStarted
	}
	var lc net.ListenConfig
	l, err := lc.Listen(ctx, "tcp", s.addr)
	if err != nil {
		return &BindError{Addr: s.addr, Err: err}
	}
	s.started = true
	s.listener = l
	ctx, s.cancel = context.WithCancel(ctx)
	s.unsubscribe = s.store.OnOrdersChanged(s.handler.OrdersChanged)
	logger.WithField("addr", l.Addr().String()).Info("server listening")

	go func() {
		defer close(s.acceptDone)
		s.acceptLoop(ctx, l)
	}()
	go func() {
		<-ctx.Done()
		if err := s.Stop(); err != nil {
			logger.WithError(err).Error("stop server failed")
		}
	}()
	return nil
}

// Stop closes the listener and every session. It waits at most for the grace
// period before forcing remaining sockets closed. Stop is idempotent.
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	if s.stopped {
		s.mu.Unlock()
		<-s.stopDone
		return nil
	}
	s.stopped = true
	s.cancel()
	err := s.listener.Close()
	s.mu.Unlock()
	if err != nil && !errors.Is(err, net.ErrClosed) {
		logger.WithError(err).Warn("close listener failed")
	}
	<-s.acceptDone

	s.registry.Range(func(sess *session.Session) bool {
		sess.Close()
		return true
	})
	done := make(chan struct{})
	go func() {
		s.sessions.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(s.gracePeriod):
		logger.WithField("sessions", s.registry.Len()).Warn("grace period elapsed, forcing sessions closed")
		s.registry.Range(func(sess *session.Session) bool {
			sess.Kill()
			return true
		})
		<-done
	}
	s.unsubscribe()
	close(s.stopDone)
	logger.Info("server stopped")
	return nil
}

func (s *Server) acceptLoop(ctx context.Context, l net.Listener) {
	backoff := time.Duration(0)
	for {
		if err := s.sem.Acquire(ctx, 1); err != nil {
			return
		}
		conn, err := l.Accept()
		if err != nil {
			s.sem.Release(1)
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return
			}
			if backoff == 0 {
				backoff = minAcceptBackoff
			} else if backoff *= 2; backoff > maxAcceptBackoff {
				backoff = maxAcceptBackoff
			}
			logger.WithError(err).WithField("retry_in", backoff).Warn("accept failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			continue
		}
		backoff = 0
		if err := s.startSession(ctx, conn); err != nil {
			s.sem.Release(1)
			logger.WithError(err).Error("start session failed")
			_ = conn.Close()
		}
	}
}

func (s *Server) startSession(ctx context.Context, conn net.Conn) error {
	sess, err := session.New(conn,
		session.WithQueueCap(s.queueCap),
		session.WithMaxFrameSize(s.maxFrameSize),
		session.WithGracePeriod(s.gracePeriod),
		session.WithWriteTimeout(s.writeTimeout),
		session.WithMetrics(s.metrics),
	)
	if err != nil {
		return errors.Wrap(err, "new session failed")
	}
	// register before the loops start so broadcasts never miss a new terminal
	if err := s.registry.Register(sess); err != nil {
		return errors.Wrap(err, "register session failed")
	}
	s.metrics.SessionsAccepted.Add(1)
	s.metrics.Sessions.Set(float64(s.registry.Len()))
	l := logger.WithFields(logrus.Fields{
		"session":  sess.ID().String(),
		"remote":   conn.RemoteAddr().String(),
		"sessions": s.registry.Len(),
	})
	l.Info("terminal connected")

	s.sessions.Add(1)
	go func() {
		defer s.sessions.Done()
		defer s.sem.Release(1)
		err := sess.Serve(ctx, func(ctx context.Context, sess *session.Session, env codec.Envelope) {
			s.handler.Handle(ctx, sess, env)
		})
		if uerr := s.registry.Unregister(sess.ID()); uerr != nil {
			l.WithError(uerr).Error("unregister session failed")
		}
		s.metrics.Sessions.Set(float64(s.registry.Len()))
		dl := l.WithField("sessions", s.registry.Len())
		if err != nil {
			dl.WithError(err).Warn("terminal disconnected with error")
			return
		}
		dl.Info("terminal disconnected")
	}()
	return nil
}
