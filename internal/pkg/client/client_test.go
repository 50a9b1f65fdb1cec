package client

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/chefdemo-gingerale533/jojoburgerspos/internal/pkg/codec"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

// fakeServer accepts one connection and answers each request with the
// envelopes returned by respond.
func fakeServer(t *testing.T, respond func(req codec.Envelope) []codec.Envelope) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		dec, err := codec.NewDecoder(conn)
		if err != nil {
			return
		}
		for {
			req, err := dec.Decode()
			if err != nil {
				return
			}
			for _, env := range respond(req) {
				if err := codec.Encode(conn, env); err != nil {
					return
				}
			}
		}
	}()
	return l.Addr().String()
}

func ordersList(t *testing.T, orders ...codec.Order) codec.Envelope {
	t.Helper()
	env, err := codec.NewEnvelope(codec.TypeOrdersList, codec.OrdersList{Orders: orders})
	require.NoError(t, err)
	return env
}

func newConnected(t *testing.T, addr string) *Client {
	t.Helper()
	c, err := NewClient(WithServerAddr(addr), WithTimeout(time.Second))
	require.NoError(t, err)
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// orderBook answers requests like the server does, replying to mutations
// with the resulting list.
type orderBook struct {
	t      *testing.T
	mu     sync.Mutex
	orders []codec.Order
	lastID uint64
	seen   []codec.Envelope
}

func (b *orderBook) respond(req codec.Envelope) []codec.Envelope {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seen = append(b.seen, req)
	switch req.Type {
	case codec.TypeNewOrder:
		var r codec.NewOrderRequest
		if err := req.Unmarshal(&r); err != nil {
			return nil
		}
		b.lastID++
		b.orders = append(b.orders, codec.Order{ID: b.lastID, Items: r.Items, Status: "pending"})
	case codec.TypeUpdateOrder:
		var r codec.UpdateOrderRequest
		if err := req.Unmarshal(&r); err != nil {
			return nil
		}
		for i := range b.orders {
			if b.orders[i].ID == r.ID {
				b.orders[i].Status = r.Status
			}
		}
	case codec.TypeRemoveOrder:
		var r codec.RemoveOrderRequest
		if err := req.Unmarshal(&r); err != nil {
			return nil
		}
		kept := b.orders[:0]
		for _, o := range b.orders {
			if o.ID != r.ID {
				kept = append(kept, o)
			}
		}
		b.orders = kept
	}
	return []codec.Envelope{ordersList(b.t, append([]codec.Order(nil), b.orders...)...)}
}

func (b *orderBook) types() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var types []string
	for _, env := range b.seen {
		types = append(types, env.Type)
	}
	return types
}

func errorEnvelope(t *testing.T, code, msg string) codec.Envelope {
	t.Helper()
	env, err := codec.NewEnvelope(codec.TypeError, codec.ErrorReply{Code: code, Message: msg})
	require.NoError(t, err)
	return env
}

func TestRequests(t *testing.T) {
	book := &orderBook{t: t}
	c := newConnected(t, fakeServer(t, book.respond))
	ctx := context.Background()

	orders, err := c.SubmitOrder(ctx, []string{"Burger"})
	require.NoError(t, err)
	require.Equal(t, []codec.Order{{ID: 1, Items: []string{"Burger"}, Status: "pending"}}, orders)
	orders, err = c.ListOrders(ctx)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	orders, err = c.UpdateOrder(ctx, 1, "in_progress")
	require.NoError(t, err)
	require.Equal(t, "in_progress", orders[0].Status)
	orders, err = c.RemoveOrder(ctx, 1)
	require.NoError(t, err)
	require.Empty(t, orders)

	// the first mutation on a connection loads the current list
	require.Equal(t, []string{
		codec.TypeGetOrders,
		codec.TypeNewOrder,
		codec.TypeGetOrders,
		codec.TypeUpdateOrder,
		codec.TypeRemoveOrder,
	}, book.types())
}

func TestMutationSkipsOtherTerminalsLists(t *testing.T) {
	burger := codec.Order{ID: 1, Items: []string{"Burger"}, Status: "pending"}
	salad := codec.Order{ID: 2, Items: []string{"Salad"}, Status: "pending"}
	fries := codec.Order{ID: 3, Items: []string{"Burger"}, Status: "pending"}
	addr := fakeServer(t, func(req codec.Envelope) []codec.Envelope {
		switch req.Type {
		case codec.TypeGetOrders:
			return []codec.Envelope{ordersList(t, burger)}
		case codec.TypeNewOrder:
			// another terminal's submit lands first
			return []codec.Envelope{ordersList(t, burger, salad), ordersList(t, burger, salad, fries)}
		case codec.TypeUpdateOrder:
			return []codec.Envelope{
				ordersList(t, burger, salad, fries, codec.Order{ID: 4, Items: []string{"Coke"}, Status: "pending"}),
				errorEnvelope(t, "not_found", "order 999"),
			}
		}
		return nil
	})
	c := newConnected(t, addr)
	ctx := context.Background()

	orders, err := c.SubmitOrder(ctx, []string{"Burger"})
	require.NoError(t, err)
	require.Equal(t, []codec.Order{burger, salad, fries}, orders)

	_, err = c.UpdateOrder(ctx, 999, "completed")
	var re *RemoteError
	require.True(t, errors.As(err, &re))
	require.Equal(t, "not_found", re.Code)
}

func TestRemoveWaitsForOrderToDisappear(t *testing.T) {
	burger := codec.Order{ID: 1, Items: []string{"Burger"}, Status: "pending"}
	salad := codec.Order{ID: 2, Items: []string{"Salad"}, Status: "pending"}
	addr := fakeServer(t, func(req codec.Envelope) []codec.Envelope {
		if req.Type == codec.TypeGetOrders {
			return []codec.Envelope{ordersList(t, burger)}
		}
		return []codec.Envelope{ordersList(t, burger, salad), ordersList(t, salad)}
	})
	c := newConnected(t, addr)
	orders, err := c.RemoveOrder(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, []codec.Order{salad}, orders)
}

func TestRemoteError(t *testing.T) {
	addr := fakeServer(t, func(req codec.Envelope) []codec.Envelope {
		if req.Type == codec.TypeGetOrders {
			return []codec.Envelope{ordersList(t)}
		}
		return []codec.Envelope{errorEnvelope(t, "not_found", "order 9")}
	})
	c := newConnected(t, addr)
	_, err := c.RemoveOrder(context.Background(), 9)
	var re *RemoteError
	require.True(t, errors.As(err, &re))
	require.Equal(t, "not_found", re.Code)
	require.Equal(t, "order 9", re.Message)
}

func TestSkipsUnrelatedEnvelopes(t *testing.T) {
	addr := fakeServer(t, func(codec.Envelope) []codec.Envelope {
		return []codec.Envelope{{Type: "heartbeat"}, ordersList(t)}
	})
	c := newConnected(t, addr)
	orders, err := c.ListOrders(context.Background())
	require.NoError(t, err)
	require.Empty(t, orders)
}

func TestRequestTimeout(t *testing.T) {
	addr := fakeServer(t, func(codec.Envelope) []codec.Envelope { return nil })
	c, err := NewClient(WithServerAddr(addr), WithTimeout(50*time.Millisecond))
	require.NoError(t, err)
	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()
	_, err = c.ListOrders(context.Background())
	require.Error(t, err)
}

func TestWatch(t *testing.T) {
	addr := fakeServer(t, func(codec.Envelope) []codec.Envelope {
		return []codec.Envelope{ordersList(t), ordersList(t, codec.Order{ID: 2, Items: []string{"Coke"}, Status: "pending"})}
	})
	c := newConnected(t, addr)
	_, err := c.ListOrders(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	var got [][]codec.Order
	require.NoError(t, c.Watch(ctx, func(orders []codec.Order) error {
		got = append(got, orders)
		cancel()
		return nil
	}))
	require.Len(t, got, 1)
	require.Equal(t, uint64(2), got[0][0].ID)
}

func TestNotConnected(t *testing.T) {
	c, err := NewClient(WithServerPort(1))
	require.NoError(t, err)
	_, err = c.ListOrders(context.Background())
	require.True(t, errors.Is(err, ErrNotConnected))
	require.NoError(t, c.Close())
	_, err = NewClient(WithServerAddr(""))
	require.Error(t, err)
}
