package client

import (
	"context"
	"fmt"
	"net"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/chefdemo-gingerale533/jojoburgerspos/internal/pkg/codec"
	"github.com/chefdemo-gingerale533/jojoburgerspos/internal/pkg/log"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var logger logrus.FieldLogger = logrus.StandardLogger()

// DefaultTimeout bounds a single request round trip.
const DefaultTimeout = 5 * time.Second

// Client implements the terminal side of the order protocol.
type Client struct {
	serverAddr string
	timeout    time.Duration

	mu   sync.Mutex
	conn net.Conn
	dec  *codec.Decoder
	// last is the most recent order list received, nil until one arrives.
	last []codec.Order
}

// replyMatcher reports whether list, received right after prev, is the
// outcome of the request in flight. Mutations are answered by the broadcast
// every terminal gets, so lists caused by other terminals must be skipped.
type replyMatcher func(prev, list []codec.Order) bool

// Cfg configures a Client.
type Cfg func(*Client) error

// WithServerPort sets the server port to connect to on localhost.
func WithServerPort(p uint16) Cfg {
	return func(c *Client) error {
		c.serverAddr = fmt.Sprintf("localhost:%d", p)
		return nil
	}
}

// WithServerAddr sets the server address to connect to.
func WithServerAddr(addr string) Cfg {
	return func(c *Client) error {
		if addr == "" {
			return errors.New("server address is empty")
		}
		c.serverAddr = addr
		return nil
	}
}

// WithTimeout sets the timeout for dialing and for each request.
func WithTimeout(d time.Duration) Cfg {
	return func(c *Client) error {
		c.timeout = d
		return nil
	}
}

// NewClient creates a new Client with the given configuration.
func NewClient(cfgs ...Cfg) (*Client, error) {
	client := &Client{
		serverAddr: "localhost:5000",
		timeout:    DefaultTimeout,
	}
	for _, cfg := range cfgs {
		if err := cfg(client); err != nil {
			return nil, errors.Wrap(err, "apply Client cfg failed")
		}
	}
	return client, nil
}

// Connect establishes the connection to the server, replacing any previous one.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	d := net.Dialer{Timeout: c.timeout}
	conn, err := d.DialContext(ctx, "tcp", c.serverAddr)
	if err != nil {
		return errors.Wrapf(err, "connect to %s failed", c.serverAddr)
	}
	dec, err := codec.NewDecoder(conn)
	if err != nil {
		_ = conn.Close()
		return errors.Wrap(err, "new decoder failed")
	}
	c.conn = conn
	c.dec = dec
	c.last = nil
	logger.WithField("addr", c.serverAddr).Debug("connected to server")
	return nil
}

// Close closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return errors.Wrap(err, "close connection failed")
}

// ListOrders returns the current order list.
func (c *Client) ListOrders(ctx context.Context) ([]codec.Order, error) {
	return c.request(ctx, codec.TypeGetOrders, nil, anyList)
}

// SubmitOrder submits a new order and returns the order list that first
// contains it.
func (c *Client) SubmitOrder(ctx context.Context, items []string) ([]codec.Order, error) {
	return c.request(ctx, codec.TypeNewOrder, codec.NewOrderRequest{Items: items}, func(prev, list []codec.Order) bool {
		floor := maxID(prev)
		for _, o := range list {
			if o.ID > floor && slices.Equal(o.Items, items) {
				return true
			}
		}
		return false
	})
}

// UpdateOrder moves an order to status and returns the order list that first
// shows the change.
func (c *Client) UpdateOrder(ctx context.Context, id uint64, status string) ([]codec.Order, error) {
	want := strings.ToLower(strings.TrimSpace(status))
	return c.request(ctx, codec.TypeUpdateOrder, codec.UpdateOrderRequest{ID: id, Status: status}, func(prev, list []codec.Order) bool {
		before, ok := find(prev, id)
		if !ok || before.Status == want {
			return false
		}
		after, ok := find(list, id)
		return ok && after.Status == want
	})
}

// RemoveOrder removes an order and returns the first order list without it.
func (c *Client) RemoveOrder(ctx context.Context, id uint64) ([]codec.Order, error) {
	return c.request(ctx, codec.TypeRemoveOrder, codec.RemoveOrderRequest{ID: id}, func(prev, list []codec.Order) bool {
		_, before := find(prev, id)
		_, after := find(list, id)
		return before && !after
	})
}

// Watch calls fn with every order list the server sends until ctx is done,
// the connection fails or fn returns an error. Cancelling ctx returns nil.
func (c *Client) Watch(ctx context.Context, fn func([]codec.Order) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for {
		env, err := c.recv(ctx, 0)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		orders, err := decodeReply(env)
		if err != nil {
			var re *RemoteError
			if errors.As(err, &re) {
				logger.WithError(err).Warn("server reported an error")
				continue
			}
			return err
		}
		c.observe(orders)
		if err := fn(orders); err != nil {
			return err
		}
	}
}

// request sends one request and reads until an error envelope or an order
// list accepted by match arrives. Before the first mutation on a connection
// the current list is loaded, so later lists can be compared against it.
func (c *Client) request(ctx context.Context, typ string, payload interface{}, match replyMatcher) ([]codec.Order, error) {
	env, err := codec.NewEnvelope(typ, payload)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if typ != codec.TypeGetOrders && c.last == nil && c.conn != nil {
		load, err := codec.NewEnvelope(codec.TypeGetOrders, nil)
		if err != nil {
			return nil, err
		}
		if _, err := c.roundTrip(ctx, load, anyList); err != nil {
			return nil, errors.Wrap(err, "load orders failed")
		}
	}
	return c.roundTrip(ctx, env, match)
}

func (c *Client) roundTrip(ctx context.Context, env codec.Envelope, match replyMatcher) ([]codec.Order, error) {
	if err := c.send(ctx, env); err != nil {
		return nil, err
	}
	for {
		reply, err := c.recv(ctx, 0)
		if err != nil {
			return nil, err
		}
		orders, err := decodeReply(reply)
		if err != nil {
			return nil, err
		}
		prev := c.observe(orders)
		if match(prev, c.last) {
			return c.last, nil
		}
		logger.WithField("type", env.Type).Debug("skipped order list caused by another terminal")
	}
}

// observe records orders as the latest list and returns the previous one.
func (c *Client) observe(orders []codec.Order) []codec.Order {
	prev := c.last
	if orders == nil {
		orders = []codec.Order{}
	}
	c.last = orders
	return prev
}

func anyList(_, _ []codec.Order) bool {
	return true
}

func maxID(orders []codec.Order) uint64 {
	var id uint64
	for _, o := range orders {
		if o.ID > id {
			id = o.ID
		}
	}
	return id
}

func find(orders []codec.Order, id uint64) (codec.Order, bool) {
	for _, o := range orders {
		if o.ID == id {
			return o, true
		}
	}
	return codec.Order{}, false
}

func (c *Client) send(ctx context.Context, env codec.Envelope) error {
	if c.conn == nil {
		return ErrNotConnected
	}
	if err := c.conn.SetWriteDeadline(deadline(ctx, c.timeout)); err != nil {
		return errors.Wrap(err, "set write deadline failed")
	}
	if err := codec.Encode(c.conn, env); err != nil {
		return errors.Wrapf(err, "send %s failed", env.Type)
	}
	logger.WithFields(log.EnvelopeToFields(env)).Debug("sent envelope")
	return nil
}

// recv returns the next orders_list or error envelope. A zero timeout waits
// until ctx is done.
func (c *Client) recv(ctx context.Context, timeout time.Duration) (codec.Envelope, error) {
	if c.conn == nil {
		return codec.Envelope{}, ErrNotConnected
	}
	if err := c.conn.SetReadDeadline(deadline(ctx, timeout)); err != nil {
		return codec.Envelope{}, errors.Wrap(err, "set read deadline failed")
	}
	conn := c.conn
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})
	defer stop()
	for {
		env, err := c.dec.Decode()
		if err != nil {
			if ctx.Err() != nil {
				return codec.Envelope{}, ctx.Err()
			}
			return codec.Envelope{}, errors.Wrap(err, "receive failed")
		}
		logger.WithFields(log.EnvelopeToFields(env)).Debug("received envelope")
		if env.Type == codec.TypeOrdersList || env.Type == codec.TypeError {
			return env, nil
		}
	}
}

func decodeReply(env codec.Envelope) ([]codec.Order, error) {
	switch env.Type {
	case codec.TypeOrdersList:
		var list codec.OrdersList
		if err := env.Unmarshal(&list); err != nil {
			return nil, err
		}
		return list.Orders, nil
	case codec.TypeError:
		var reply codec.ErrorReply
		if err := env.Unmarshal(&reply); err != nil {
			return nil, err
		}
		return nil, &RemoteError{Code: reply.Code, Message: reply.Message}
	}
	return nil, errors.Errorf("unexpected %s envelope", env.Type)
}

func deadline(ctx context.Context, timeout time.Duration) time.Time {
	var t time.Time
	if timeout > 0 {
		t = time.Now().Add(timeout)
	}
	if d, ok := ctx.Deadline(); ok && (t.IsZero() || d.Before(t)) {
		t = d
	}
	return t
}
