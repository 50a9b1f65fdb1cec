package order

import (
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// Listener receives a snapshot of the order list after each mutation.
//
// Listeners run while the store is locked, so they must return quickly and
// must not call back into the store.
type Listener func(orders []Order)

// Store is the authoritative, mutex guarded order list.
type Store struct {
	mu        sync.Mutex
	orders    []*Order
	index     map[uint64]*Order
	lastID    uint64
	listeners map[uint64]Listener
	nextSub   uint64
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		index:     make(map[uint64]*Order),
		listeners: make(map[uint64]Listener),
	}
}

// Submit stores a new pending order with the given items and returns it.
func (s *Store) Submit(items []string) (Order, error) {
	if len(items) == 0 {
		return Order{}, errors.Wrap(ErrValidation, "order has no items")
	}
	for i, item := range items {
		if strings.TrimSpace(item) == "" {
			return Order{}, errors.Wrapf(ErrValidation, "item %d has no name", i)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastID++
	o := &Order{
		ID:     s.lastID,
		Items:  append([]string(nil), items...),
		Status: Pending,
	}
	s.orders = append(s.orders, o)
	s.index[o.ID] = o
	s.notifyLocked()
	return o.clone(), nil
}

// List returns a copy of all orders in submission order.
func (s *Store) List() []Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// View calls fn with a snapshot of the order list while holding the store
// lock, so no mutation or change notification can interleave with fn. fn must
// not block or call back into the store.
func (s *Store) View(fn func(orders []Order)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.snapshotLocked())
}

// Get returns the order with the given id.
func (s *Store) Get(id uint64) (Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.index[id]
	if !ok {
		return Order{}, errors.Wrapf(ErrNotFound, "order %d", id)
	}
	return o.clone(), nil
}

// UpdateStatus moves the order to status and returns the updated order.
func (s *Store) UpdateStatus(id uint64, status Status) (Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.index[id]
	if !ok {
		return Order{}, errors.Wrapf(ErrNotFound, "order %d", id)
	}
	if err := o.Status.ValidateTransition(status); err != nil {
		return Order{}, errors.Wrapf(err, "order %d", id)
	}
	o.Status = status
	s.notifyLocked()
	return o.clone(), nil
}

// Remove deletes the order with the given id. Its id is never handed out again.
func (s *Store) Remove(id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.index[id]; !ok {
		return errors.Wrapf(ErrNotFound, "order %d", id)
	}
	delete(s.index, id)
	for i, o := range s.orders {
		if o.ID == id {
			s.orders = append(s.orders[:i], s.orders[i+1:]...)
			break
		}
	}
	s.notifyLocked()
	return nil
}

// Len returns the number of stored orders.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

// OnOrdersChanged registers fn to be called after every successful mutation.
// The returned function removes the subscription.
//
// fn runs with the store locked: calling List, Get or any mutation from fn
// deadlocks, and a slow fn delays every terminal. Use Subscribe to receive
// snapshots on another goroutine.
func (s *Store) OnOrdersChanged(fn Listener) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSub++
	id := s.nextSub
	s.listeners[id] = fn
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.listeners, id)
		})
	}
}

// Subscribe delivers a snapshot after every successful mutation on the
// returned channel, which holds up to buffer snapshots. When the reader falls
// behind the oldest pending snapshot is discarded, so the newest one is never
// lost. The channel is closed by unsubscribe.
func (s *Store) Subscribe(buffer int) (snapshots <-chan []Order, unsubscribe func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan []Order, buffer)
	stop := s.OnOrdersChanged(func(orders []Order) {
		for {
			select {
			case ch <- orders:
				return
			default:
			}
			select {
			case <-ch:
			default:
			}
		}
	})
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			stop()
			close(ch)
		})
	}
}

func (s *Store) snapshotLocked() []Order {
	out := make([]Order, len(s.orders))
	for i, o := range s.orders {
		out[i] = o.clone()
	}
	return out
}

// notifyLocked must be called with s.mu held. Each listener gets its own copy.
func (s *Store) notifyLocked() {
	if len(s.listeners) == 0 {
		return
	}
	ids := make([]uint64, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		s.listeners[id](s.snapshotLocked())
	}
}
