package order

import (
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreScenario(t *testing.T) {
	s := NewStore()
	o, err := s.Submit([]string{"Burger", "Coke"})
	require.NoError(t, err)
	require.Equal(t, Order{ID: 1, Items: []string{"Burger", "Coke"}, Status: Pending}, o)

	o, err = s.UpdateStatus(1, Completed)
	require.NoError(t, err)
	require.Equal(t, Completed, o.Status)

	_, err = s.UpdateStatus(1, Pending)
	require.True(t, errors.Is(err, ErrInvalidTransition))
	got, err := s.Get(1)
	require.NoError(t, err)
	require.Equal(t, Completed, got.Status)
}

func TestSubmitValidation(t *testing.T) {
	s := NewStore()
	for _, items := range [][]string{nil, {}, {"Burger", " "}} {
		_, err := s.Submit(items)
		require.True(t, errors.Is(err, ErrValidation), "items %q", items)
	}
	require.Zero(t, s.Len())
}

func TestTransitions(t *testing.T) {
	tests := []struct {
		from, to Status
		ok       bool
	}{
		{Pending, InProgress, true},
		{Pending, Completed, true},
		{InProgress, Completed, true},
		{Pending, Pending, false},
		{InProgress, InProgress, false},
		{InProgress, Pending, false},
		{Completed, Completed, false},
		{Completed, InProgress, false},
		{Completed, Pending, false},
	}
	for _, tt := range tests {
		s := NewStore()
		o, err := s.Submit([]string{"Fries"})
		require.NoError(t, err)
		if tt.from != Pending {
			_, err = s.UpdateStatus(o.ID, tt.from)
			require.NoError(t, err)
		}
		_, err = s.UpdateStatus(o.ID, tt.to)
		got, getErr := s.Get(o.ID)
		require.NoError(t, getErr)
		if tt.ok {
			require.NoError(t, err, "%s -> %s", tt.from, tt.to)
			require.Equal(t, tt.to, got.Status)
		} else {
			require.True(t, errors.Is(err, ErrInvalidTransition), "%s -> %s", tt.from, tt.to)
			require.Equal(t, tt.from, got.Status)
		}
	}
}

func TestUpdateUnknownStatus(t *testing.T) {
	s := NewStore()
	o, err := s.Submit([]string{"Shake"})
	require.NoError(t, err)
	_, err = s.UpdateStatus(o.ID, Unknown)
	require.True(t, errors.Is(err, ErrValidation))
}

func TestNotFound(t *testing.T) {
	s := NewStore()
	_, err := s.Submit([]string{"Burger"})
	require.NoError(t, err)

	require.True(t, errors.Is(s.Remove(7), ErrNotFound))
	require.Equal(t, 1, s.Len())
	_, err = s.UpdateStatus(7, InProgress)
	require.True(t, errors.Is(err, ErrNotFound))
	_, err = s.Get(7)
	require.True(t, errors.Is(err, ErrNotFound))
}

func TestRemoveNeverReusesIDs(t *testing.T) {
	s := NewStore()
	a, err := s.Submit([]string{"A"})
	require.NoError(t, err)
	b, err := s.Submit([]string{"B"})
	require.NoError(t, err)
	require.NoError(t, s.Remove(b.ID))
	require.NoError(t, s.Remove(a.ID))
	c, err := s.Submit([]string{"C"})
	require.NoError(t, err)
	require.Equal(t, uint64(3), c.ID)
}

func TestListIsSnapshot(t *testing.T) {
	s := NewStore()
	items := []string{"Burger"}
	_, err := s.Submit(items)
	require.NoError(t, err)
	items[0] = "Salad"

	list := s.List()
	require.Equal(t, []string{"Burger"}, list[0].Items)
	list[0].Items[0] = "Salad"
	list[0].Status = Completed
	require.Equal(t, []Order{{ID: 1, Items: []string{"Burger"}, Status: Pending}}, s.List())
}

func TestListPreservesSubmissionOrder(t *testing.T) {
	s := NewStore()
	for _, item := range []string{"A", "B", "C", "D"} {
		_, err := s.Submit([]string{item})
		require.NoError(t, err)
	}
	require.NoError(t, s.Remove(2))
	var ids []uint64
	for _, o := range s.List() {
		ids = append(ids, o.ID)
	}
	require.Equal(t, []uint64{1, 3, 4}, ids)
}

func TestOnOrdersChanged(t *testing.T) {
	s := NewStore()
	var got [][]Order
	unsubscribe := s.OnOrdersChanged(func(orders []Order) {
		got = append(got, orders)
	})

	o, err := s.Submit([]string{"Burger"})
	require.NoError(t, err)
	_, err = s.UpdateStatus(o.ID, InProgress)
	require.NoError(t, err)
	_, err = s.UpdateStatus(o.ID, Pending)
	require.Error(t, err)
	_ = s.List()
	require.NoError(t, s.Remove(o.ID))

	require.Len(t, got, 3)
	require.Equal(t, Pending, got[0][0].Status)
	require.Equal(t, InProgress, got[1][0].Status)
	require.Empty(t, got[2])

	unsubscribe()
	unsubscribe()
	_, err = s.Submit([]string{"Coke"})
	require.NoError(t, err)
	require.Len(t, got, 3)
}

func TestSubscribe(t *testing.T) {
	s := NewStore()
	snapshots, unsubscribe := s.Subscribe(1)

	_, err := s.Submit([]string{"Burger"})
	require.NoError(t, err)
	_, err = s.Submit([]string{"Salad"})
	require.NoError(t, err)

	// the reader fell behind: only the newest snapshot is kept
	got := <-snapshots
	require.Len(t, got, 2)
	require.Equal(t, []string{"Salad"}, got[1].Items)

	// listeners may call back into the store from their own goroutine
	done := make(chan struct{})
	go func() {
		defer close(done)
		for orders := range snapshots {
			assert.Equal(t, len(orders), len(s.List()))
		}
	}()
	require.NoError(t, s.Remove(1))

	unsubscribe()
	unsubscribe()
	<-done
	_, err = s.Submit([]string{"Coke"})
	require.NoError(t, err)
}

func TestConcurrentMutationsAreLinearized(t *testing.T) {
	s := NewStore()
	var seen []int
	s.OnOrdersChanged(func(orders []Order) {
		seen = append(seen, len(orders))
	})

	const workers, perWorker = 8, 50
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				o, err := s.Submit([]string{"Burger"})
				if err != nil {
					t.Error(err)
					return
				}
				if _, err := s.UpdateStatus(o.ID, InProgress); err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()

	list := s.List()
	require.Len(t, list, workers*perWorker)
	ids := make(map[uint64]bool)
	for _, o := range list {
		require.False(t, ids[o.ID], "duplicate id %d", o.ID)
		ids[o.ID] = true
		require.Equal(t, InProgress, o.Status)
	}
	require.Len(t, seen, 2*workers*perWorker)
	for i := 1; i < len(seen); i++ {
		require.GreaterOrEqual(t, seen[i], seen[i-1])
	}
}

func TestParseStatus(t *testing.T) {
	for name, want := range map[string]Status{
		"pending":     Pending,
		"in_progress": InProgress,
		"Completed":   Completed,
		" COMPLETED ": Completed,
	} {
		got, err := ParseStatus(name)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	_, err := ParseStatus("cooking")
	require.True(t, errors.Is(err, ErrValidation))
	require.Equal(t, "unknown", Unknown.String())
}
