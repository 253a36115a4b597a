// Package shoebox file: shoebox.go
package shoebox

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// ChangeFunc receives the previous and current value of one key.
type ChangeFunc[T any] func(oldValue, newValue T)

// AnyChangeFunc receives value changes for every key.
type AnyChangeFunc[T any] func(key string, oldValue, newValue T)

// Shoebox is a Store that publishes new, remove and change events.
// Writes are serialized so listeners observe each key's events in the order
// the store applied them.
type Shoebox[T any] struct {
	id    uuid.UUID
	store Store[T]
	log   *slog.Logger
	equal func(a, b any) bool

	// mu spans the store write and the capture of its notifications.
	mu sync.Mutex

	newListeners       *Registry[func(kv KeyValue[T])]
	removeListeners    *Registry[func(r Removal[T])]
	anyChangeListeners *Registry[AnyChangeFunc[T]]
	changeListeners    *keyedRegistries[ChangeFunc[T]]
	dispatch           dispatcher
}

func NewShoebox[T any](store Store[T], opts ...Option) *Shoebox[T] {
	o := buildOptions(opts)
	id := uuid.New()
	return &Shoebox[T]{
		id:                 id,
		store:              store,
		log:                o.logger.With("component", "shoebox", "shoebox_id", id.String()),
		equal:              o.equal,
		newListeners:       newRegistry[func(kv KeyValue[T])]("shoebox_new", o),
		removeListeners:    newRegistry[func(r Removal[T])]("shoebox_remove", o),
		anyChangeListeners: newRegistry[AnyChangeFunc[T]]("shoebox_any_change", o),
		changeListeners:    newKeyedRegistries[ChangeFunc[T]]("shoebox_change", o),
	}
}

func (s *Shoebox[T]) ID() uuid.UUID {
	return s.id
}

// --- CRUD ---

func (s *Shoebox[T]) Get(ctx context.Context, key string) (T, error) {
	return s.store.Get(ctx, key)
}

// Set stores value under key. A new key publishes a new event; an existing
// key publishes change events unless the value is unchanged.
func (s *Shoebox[T]) Set(ctx context.Context, key string, value T) error {
	if strings.TrimSpace(key) == "" {
		return ErrBlankKey
	}
	if err := s.set(ctx, key, value); err != nil {
		return err
	}
	s.dispatch.drain()
	return nil
}

func (s *Shoebox[T]) set(ctx context.Context, key string, value T) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, existed, err := s.store.Set(ctx, key, value)
	if err != nil {
		return fmt.Errorf("failed to set %q: %w", key, err)
	}

	switch {
	case !existed:
		kv := KeyValue[T]{Key: key, Value: value}
		s.dispatch.enqueue(s.newListeners.bind(func(fn func(KeyValue[T])) { fn(kv) }))
		shoeboxWrites.WithLabelValues("new").Inc()
	case s.equal(prev, value):
		shoeboxWrites.WithLabelValues("unchanged").Inc()
	default:
		// Per-key listeners are resolved at delivery: a key's watcher is
		// often registered while an earlier event for the key is delivered.
		s.dispatch.enqueue(
			func() { s.changeListeners.bind(key, func(fn ChangeFunc[T]) { fn(prev, value) })() },
			s.anyChangeListeners.bind(func(fn AnyChangeFunc[T]) { fn(key, prev, value) }),
		)
		shoeboxWrites.WithLabelValues("change").Inc()
	}
	return nil
}

// Remove deletes key and publishes a remove event carrying the old value.
func (s *Shoebox[T]) Remove(ctx context.Context, key string) error {
	if strings.TrimSpace(key) == "" {
		return ErrBlankKey
	}
	if err := s.remove(ctx, key); err != nil {
		return err
	}
	s.dispatch.drain()
	return nil
}

func (s *Shoebox[T]) remove(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, existed, err := s.store.Remove(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to remove %q: %w", key, err)
	}
	if !existed {
		return ErrNotFound
	}
	r := Removal[T]{KeyValue: KeyValue[T]{Key: key, Value: prev}, HasValue: true}
	s.dispatch.enqueue(s.removeListeners.bind(func(fn func(Removal[T])) { fn(r) }))
	shoeboxWrites.WithLabelValues("remove").Inc()
	return nil
}

func (s *Shoebox[T]) Entries(ctx context.Context) ([]KeyValue[T], error) {
	return s.store.Entries(ctx)
}

// --- Listeners ---

func (s *Shoebox[T]) OnNew(fn func(kv KeyValue[T])) Handle {
	return s.newListeners.Subscribe(fn)
}

func (s *Shoebox[T]) OnRemove(fn func(r Removal[T])) Handle {
	return s.removeListeners.Subscribe(fn)
}

// OnAnyChange subscribes to value changes of every key.
func (s *Shoebox[T]) OnAnyChange(fn AnyChangeFunc[T]) Handle {
	return s.anyChangeListeners.Subscribe(fn)
}

// OnChange subscribes to value changes of a single key.
func (s *Shoebox[T]) OnChange(key string, fn ChangeFunc[T]) Handle {
	return s.changeListeners.subscribe(key, fn)
}

func (s *Shoebox[T]) DeleteNewListener(h Handle) {
	s.newListeners.Unsubscribe(h)
}

func (s *Shoebox[T]) DeleteRemoveListener(h Handle) {
	s.removeListeners.Unsubscribe(h)
}

func (s *Shoebox[T]) DeleteAnyChangeListener(h Handle) {
	s.anyChangeListeners.Unsubscribe(h)
}

func (s *Shoebox[T]) DeleteChangeListener(key string, h Handle) {
	s.changeListeners.unsubscribe(key, h)
}

// ChangeListeners returns the number of listeners subscribed to key.
func (s *Shoebox[T]) ChangeListeners(key string) int {
	return s.changeListeners.len(key)
}

// follower is the set of subscriptions a View holds on a Shoebox.
type follower struct {
	newHandle    Handle
	removeHandle Handle
	changeHandle Handle
}

// follow snapshots the entries and subscribes atomically with respect to
// writes: every later write is delivered, no earlier one is.
func (s *Shoebox[T]) follow(
	ctx context.Context,
	onNew func(kv KeyValue[T]),
	onRemove func(r Removal[T]),
	onChange AnyChangeFunc[T],
) ([]KeyValue[T], follower, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.store.Entries(ctx)
	if err != nil {
		return nil, follower{}, fmt.Errorf("failed to read entries: %w", err)
	}
	return entries, follower{
		newHandle:    s.newListeners.Subscribe(onNew),
		removeHandle: s.removeListeners.Subscribe(onRemove),
		changeHandle: s.anyChangeListeners.Subscribe(onChange),
	}, nil
}

func (s *Shoebox[T]) unfollow(f follower) {
	s.newListeners.Unsubscribe(f.newHandle)
	s.removeListeners.Unsubscribe(f.removeHandle)
	s.anyChangeListeners.Unsubscribe(f.changeHandle)
}

func (s *Shoebox[T]) String() string {
	entries, err := s.store.Entries(context.TODO())
	if err != nil {
		return fmt.Sprintf("shoebox(%s): %v", s.id, err)
	}
	return fmt.Sprintf("%v", entries)
}
