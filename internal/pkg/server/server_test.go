package server

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"

	"github.com/chefdemo-gingerale533/jojoburgerspos/internal/pkg/client"
	"github.com/chefdemo-gingerale533/jojoburgerspos/internal/pkg/codec"

	"github.com/fortytw2/leaktest"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

var errStop = errors.New("stop watching")

func startServer(t *testing.T, cfgs ...Cfg) *Server {
	t.Helper()
	s, err := NewServer(append([]Cfg{
		WithAddr("127.0.0.1:0"),
		WithGracePeriod(time.Second),
	}, cfgs...)...)
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { require.NoError(t, s.Stop()) })
	return s
}

func connect(t *testing.T, s *Server) *client.Client {
	t.Helper()
	c, err := client.NewClient(
		client.WithServerAddr(s.Addr().String()),
		client.WithTimeout(2*time.Second),
	)
	require.NoError(t, err)
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// nextOrders waits for the next orders_list pushed to c.
func nextOrders(t *testing.T, c *client.Client) []codec.Order {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var got []codec.Order
	err := c.Watch(ctx, func(orders []codec.Order) error {
		got = orders
		return errStop
	})
	require.True(t, errors.Is(err, errStop), "watch returned %v", err)
	return got
}

func TestScenarioOverTheWire(t *testing.T) {
	t.Cleanup(leaktest.Check(t))
	s := startServer(t)
	c := connect(t, s)
	ctx := context.Background()

	orders, err := c.SubmitOrder(ctx, []string{"Burger", "Coke"})
	require.NoError(t, err)
	require.Equal(t, []codec.Order{{ID: 1, Items: []string{"Burger", "Coke"}, Status: "pending"}}, orders)

	orders, err = c.UpdateOrder(ctx, 1, "completed")
	require.NoError(t, err)
	require.Equal(t, "completed", orders[0].Status)

	_, err = c.UpdateOrder(ctx, 1, "pending")
	var re *client.RemoteError
	require.True(t, errors.As(err, &re))
	require.Equal(t, "invalid_transition", re.Code)

	orders, err = c.ListOrders(ctx)
	require.NoError(t, err)
	require.Equal(t, "completed", orders[0].Status)

	orders, err = c.RemoveOrder(ctx, 1)
	require.NoError(t, err)
	require.Empty(t, orders)
}

func TestMutationReachesEverySession(t *testing.T) {
	t.Cleanup(leaktest.Check(t))
	s := startServer(t)
	const n = 4
	clients := make([]*client.Client, n)
	for i := range clients {
		clients[i] = connect(t, s)
	}
	require.Eventually(t, func() bool { return s.Sessions() == n }, 2*time.Second, 5*time.Millisecond)

	// one of the other terminals goes away before the order is placed
	require.NoError(t, clients[n-1].Close())
	require.Eventually(t, func() bool { return s.Sessions() == n-1 }, 2*time.Second, 5*time.Millisecond)

	orders, err := clients[0].SubmitOrder(context.Background(), []string{"Fries"})
	require.NoError(t, err)
	require.Len(t, orders, 1)
	for _, c := range clients[1 : n-1] {
		got := nextOrders(t, c)
		require.Equal(t, orders, got)
	}
}

func TestRepliesIgnoreOtherTerminalsBroadcasts(t *testing.T) {
	t.Cleanup(leaktest.Check(t))
	s := startServer(t)
	kiosk, pos := connect(t, s), connect(t, s)
	ctx := context.Background()

	// the kiosk's queue now holds a broadcast it did not cause
	_, err := pos.SubmitOrder(ctx, []string{"Burger"})
	require.NoError(t, err)

	_, err = kiosk.UpdateOrder(ctx, 999, "completed")
	var re *client.RemoteError
	require.True(t, errors.As(err, &re), "update returned %v", err)
	require.Equal(t, "not_found", re.Code)

	orders, err := kiosk.ListOrders(ctx)
	require.NoError(t, err)
	require.Len(t, orders, 1)

	// pos has the kiosk's broadcast queued ahead of its own reply
	_, err = kiosk.SubmitOrder(ctx, []string{"Salad"})
	require.NoError(t, err)
	orders, err = pos.UpdateOrder(ctx, 1, "in_progress")
	require.NoError(t, err)
	require.Len(t, orders, 2)
	require.Equal(t, "in_progress", orders[0].Status)

	orders, err = pos.RemoveOrder(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, []codec.Order{{ID: 1, Items: []string{"Burger"}, Status: "in_progress"}}, orders)
}

func TestInProcessMutationIsBroadcast(t *testing.T) {
	t.Cleanup(leaktest.Check(t))
	s := startServer(t)
	c := connect(t, s)
	require.Eventually(t, func() bool { return s.Sessions() == 1 }, 2*time.Second, 5*time.Millisecond)

	o, err := s.Store().Submit([]string{"Salad"})
	require.NoError(t, err)
	got := nextOrders(t, c)
	require.Equal(t, []codec.Order{{ID: o.ID, Items: []string{"Salad"}, Status: "pending"}}, got)
}

func TestFrameErrorOnlyClosesOffender(t *testing.T) {
	t.Cleanup(leaktest.Check(t))
	s := startServer(t, WithMaxFrameSize(64))
	good := connect(t, s)

	bad, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	defer bad.Close()
	header := make([]byte, codec.HeaderSize)
	binary.BigEndian.PutUint32(header, 1<<30)
	_, err = bad.Write(header)
	require.NoError(t, err)

	require.NoError(t, bad.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err = bad.Read(make([]byte, 1))
	require.True(t, errors.Is(err, io.EOF) || isConnReset(err), "got %v", err)

	orders, err := good.SubmitOrder(context.Background(), []string{"Burger"})
	require.NoError(t, err)
	require.Len(t, orders, 1)
}

func isConnReset(err error) bool {
	var ne *net.OpError
	return errors.As(err, &ne) && !ne.Timeout()
}

func TestBindError(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	s, err := NewServer(WithAddr(l.Addr().String()))
	require.NoError(t, err)
	err = s.Start(context.Background())
	var be *BindError
	require.True(t, errors.As(err, &be), "got %v", err)
	require.Equal(t, l.Addr().String(), be.Addr)
	require.Nil(t, s.Addr())
	require.NoError(t, s.Stop())
}

func TestStopIsIdempotentAndDisconnects(t *testing.T) {
	t.Cleanup(leaktest.Check(t))
	s, err := NewServer(WithAddr("127.0.0.1:0"), WithGracePeriod(time.Second))
	require.NoError(t, err)
	require.NoError(t, s.Stop())
	require.NoError(t, s.Start(context.Background()))
	require.True(t, errors.Is(s.Start(context.Background()), ErrAlreadyStarted))

	c, err := client.NewClient(client.WithServerAddr(s.Addr().String()), client.WithTimeout(time.Second))
	require.NoError(t, err)
	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()
	_, err = c.ListOrders(context.Background())
	require.NoError(t, err)

	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop())
	require.Zero(t, s.Sessions())
	_, err = c.ListOrders(context.Background())
	require.Error(t, err)
}

func TestContextCancelStopsServer(t *testing.T) {
	t.Cleanup(leaktest.Check(t))
	s, err := NewServer(WithAddr("127.0.0.1:0"), WithGracePeriod(time.Second))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))
	addr := s.Addr().String()
	cancel()
	require.NoError(t, s.Stop())

	_, err = net.DialTimeout("tcp", addr, 200*time.Millisecond)
	require.Error(t, err)
}

func TestMaxSessions(t *testing.T) {
	t.Cleanup(leaktest.Check(t))
	s := startServer(t, WithMaxSessions(1))
	first := connect(t, s)
	_, err := first.ListOrders(context.Background())
	require.NoError(t, err)

	second, err := client.NewClient(client.WithServerAddr(s.Addr().String()), client.WithTimeout(100*time.Millisecond))
	require.NoError(t, err)
	require.NoError(t, second.Connect(context.Background()))
	defer second.Close()
	_, err = second.ListOrders(context.Background())
	require.Error(t, err)
	require.Equal(t, 1, s.Sessions())

	require.NoError(t, first.Close())
	require.Eventually(t, func() bool {
		_, err := second.ListOrders(context.Background())
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestNewServerRejectsBadCfg(t *testing.T) {
	for _, cfg := range []Cfg{WithMaxSessions(0), WithQueueCap(0), WithMaxFrameSize(0), WithGracePeriod(0), WithWriteTimeout(0)} {
		_, err := NewServer(cfg)
		require.Error(t, err)
	}
}
