// Package session manages one terminal connection.
//
// A Session owns its socket. Inbound frames are decoded by the read loop,
// which runs in the goroutine calling Serve, and handed to a Handler one at a
// time. Outbound envelopes are appended to a private, capped queue by Enqueue
// and written by a separate write loop, so a slow peer never blocks the code
// that produced its messages.
//
// A Session moves through CONNECTING, ACTIVE, CLOSING and CLOSED. Close
// unblocks a pending read immediately and gives the writer a grace period to
// flush what is already queued before the socket is released.
package session

import (
	"bufio"
	"context"
	"io"
	"net"
	"sync"
	"time"

	"github.com/chefdemo-gingerale533/jojoburgerspos/internal/pkg/codec"
	"github.com/chefdemo-gingerale533/jojoburgerspos/internal/pkg/log"
	"github.com/chefdemo-gingerale533/jojoburgerspos/internal/pkg/metrics"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var logger logrus.FieldLogger = logrus.StandardLogger()

const (
	// DefaultQueueCap is the default number of envelopes a session buffers for its peer.
	DefaultQueueCap = 1024
	// DefaultWriteTimeout bounds a single flush to the peer.
	DefaultWriteTimeout = 10 * time.Second
	// DefaultGracePeriod bounds the final flush after Close.
	DefaultGracePeriod = 5 * time.Second
)

// Handler processes one inbound envelope.
type Handler func(ctx context.Context, s *Session, env codec.Envelope)

// Session is the server side of one terminal connection.
type Session struct {
	id      uuid.UUID
	conn    net.Conn
	dec     *codec.Decoder
	w       *bufio.Writer
	logger  logrus.FieldLogger
	metrics *metrics.Metrics

	queueCap     int
	writeTimeout time.Duration
	gracePeriod  time.Duration
	maxFrameSize uint32

	mu    sync.Mutex
	state State
	queue []codec.Envelope

	wake      chan struct{}
	closing   chan struct{}
	closed    chan struct{}
	closeOnce sync.Once
}

// Cfg configures a Session.
type Cfg func(*Session) error

// WithQueueCap sets the maximum number of queued outbound envelopes.
func WithQueueCap(n int) Cfg {
	return func(s *Session) error {
		if n <= 0 {
			return errors.New("queue cap must be positive")
		}
		s.queueCap = n
		return nil
	}
}

// WithWriteTimeout sets the deadline for each flush to the peer.
func WithWriteTimeout(d time.Duration) Cfg {
	return func(s *Session) error {
		s.writeTimeout = d
		return nil
	}
}

// WithGracePeriod sets how long Close waits for queued envelopes to be written.
func WithGracePeriod(d time.Duration) Cfg {
	return func(s *Session) error {
		s.gracePeriod = d
		return nil
	}
}

// WithMaxFrameSize sets the largest inbound frame body accepted.
func WithMaxFrameSize(n uint32) Cfg {
	return func(s *Session) error {
		s.maxFrameSize = n
		return nil
	}
}

// WithMetrics sets the metrics the session reports to.
func WithMetrics(m *metrics.Metrics) Cfg {
	return func(s *Session) error {
		s.metrics = m
		return nil
	}
}

// New creates a Session around an accepted connection.
func New(conn net.Conn, cfgs ...Cfg) (*Session, error) {
	s := &Session{
		id:           uuid.New(),
		conn:         conn,
		w:            bufio.NewWriter(conn),
		metrics:      metrics.NopMetrics(),
		queueCap:     DefaultQueueCap,
		writeTimeout: DefaultWriteTimeout,
		gracePeriod:  DefaultGracePeriod,
		maxFrameSize: codec.DefaultMaxFrameSize,
		state:        Connecting,
		wake:         make(chan struct{}, 1),
		closing:      make(chan struct{}),
		closed:       make(chan struct{}),
	}
	for _, cfg := range cfgs {
		if err := cfg(s); err != nil {
			return nil, errors.Wrap(err, "apply Session cfg failed")
		}
	}
	dec, err := codec.NewDecoder(conn, codec.WithMaxFrameSize(s.maxFrameSize))
	if err != nil {
		return nil, errors.Wrap(err, "new decoder failed")
	}
	s.dec = dec
	s.logger = logger.WithFields(logrus.Fields{
		"session": s.id.String(),
		"remote":  conn.RemoteAddr().String(),
	})
	return s, nil
}

// ID returns the identifier assigned when the session was created.
func (s *Session) ID() uuid.UUID {
	return s.id
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done is closed once the session reaches CLOSED.
func (s *Session) Done() <-chan struct{} {
	return s.closed
}

// Enqueue appends env to the outbound queue. When the queue is full the
// envelope is dropped and ErrQueueFull is returned.
func (s *Session) Enqueue(env codec.Envelope) error {
	s.mu.Lock()
	if s.state >= Closing {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if len(s.queue) >= s.queueCap {
		s.mu.Unlock()
		s.metrics.DroppedEnvelopes.Add(1)
		s.logger.WithFields(log.EnvelopeToFields(env)).Warn("outbound queue full, dropping envelope")
		return ErrQueueFull
	}
	s.queue = append(s.queue, env)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
	return nil
}

// Receive blocks until the next inbound envelope is decoded.
// It is not safe for concurrent use; Serve calls it from the read loop.
func (s *Session) Receive() (codec.Envelope, error) {
	env, err := s.dec.Decode()
	if err != nil {
		if s.State() >= Closing {
			return codec.Envelope{}, ErrSessionClosed
		}
		var fe *codec.FrameError
		if errors.As(err, &fe) {
			s.metrics.FrameErrors.Add(1)
			return codec.Envelope{}, err
		}
		if errors.Is(err, io.EOF) {
			return codec.Envelope{}, io.EOF
		}
		return codec.Envelope{}, errors.Wrap(err, "read frame failed")
	}
	s.metrics.FramesReceived.Add(1)
	return env, nil
}

// Serve runs the session until the peer disconnects, a frame cannot be
// decoded, a write fails, ctx is cancelled or Close is called. Every decoded
// envelope is passed to handle. Serve returns once the socket is released;
// a clean disconnect returns nil.
func (s *Session) Serve(ctx context.Context, handle Handler) error {
	s.mu.Lock()
	if s.state != Connecting {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.state = Active
	s.mu.Unlock()
	s.logger.Debug("session active")

	stop := context.AfterFunc(ctx, s.Close)
	defer stop()

	writeDone := make(chan error, 1)
	go func() {
		writeDone <- s.writeLoop()
	}()

	err := s.readLoop(ctx, handle)
	s.Close()
	if werr := <-writeDone; err == nil {
		err = werr
	}
	if cerr := s.conn.Close(); cerr != nil && err == nil && !errors.Is(cerr, net.ErrClosed) {
		err = errors.Wrap(cerr, "close connection failed")
	}

	s.mu.Lock()
	s.state = Closed
	s.mu.Unlock()
	close(s.closed)
	s.logger.Debug("session closed")
	return err
}

// Close moves the session to CLOSING. It is safe to call more than once and
// from any goroutine.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		prev := s.state
		s.state = Closing
		s.mu.Unlock()
		close(s.closing)

		if prev == Connecting {
			// Serve never ran, nothing else owns the socket.
			_ = s.conn.Close()
			s.mu.Lock()
			s.state = Closed
			s.mu.Unlock()
			close(s.closed)
			return
		}
		_ = s.conn.SetReadDeadline(time.Now())
	})
}

// Kill closes the session and releases the socket without waiting for queued
// envelopes to be written.
func (s *Session) Kill() {
	s.Close()
	_ = s.conn.Close()
}

func (s *Session) readLoop(ctx context.Context, handle Handler) error {
	for {
		env, err := s.Receive()
		if err != nil {
			if errors.Is(err, ErrSessionClosed) || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		s.logger.WithFields(log.EnvelopeToFields(env)).Trace("received envelope")
		handle(ctx, s, env)
	}
}

func (s *Session) writeLoop() error {
	for {
		select {
		case <-s.closing:
			return s.flush(s.gracePeriod)
		case <-s.wake:
			if err := s.flush(s.writeTimeout); err != nil {
				s.Close()
				return err
			}
		}
	}
}

func (s *Session) flush(timeout time.Duration) error {
	s.mu.Lock()
	batch := s.queue
	s.queue = nil
	s.mu.Unlock()
	if len(batch) == 0 {
		return nil
	}
	if timeout > 0 {
		if err := s.conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
			return errors.Wrap(err, "set write deadline failed")
		}
	}
	sent := 0
	for _, env := range batch {
		if err := codec.Encode(s.w, env); err != nil {
			if errors.Is(err, codec.ErrFrameTooLarge) {
				// the peer would drop the connection on this frame; skip it
				s.metrics.DroppedEnvelopes.Add(1)
				s.logger.WithError(err).WithFields(log.EnvelopeToFields(env)).Error("outbound frame too large, dropping envelope")
				continue
			}
			return errors.Wrapf(err, "encode %s envelope failed", env.Type)
		}
		sent++
	}
	if err := s.w.Flush(); err != nil {
		return errors.Wrap(err, "flush connection failed")
	}
	s.metrics.FramesSent.Add(float64(sent))
	return nil
}
