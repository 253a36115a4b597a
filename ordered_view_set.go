// Package shoebox file: ordered_view_set.go
package shoebox

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
)

// ViewSource is the upstream an OrderedViewSet follows: a partitioned
// stream of add and remove events plus per-key change events.
type ViewSource[T any] interface {
	KeyValues(ctx context.Context, partition string) ([]KeyValue[T], error)
	// Follow calls attach with the entries of partition while the source
	// publishes nothing, so listeners registered inside attach observe
	// exactly the events that follow the snapshot.
	Follow(ctx context.Context, partition string, attach func(entries []KeyValue[T]) error) error
	OnAdd(partition string, fn func(kv KeyValue[T])) Handle
	OnRemove(partition string, fn func(r Removal[T])) Handle
	OnChange(key string, fn func(oldValue, newValue T)) Handle
	DeleteAddListener(partition string, h Handle)
	DeleteRemoveListener(partition string, h Handle)
	DeleteChangeListener(key string, h Handle)
}

type (
	// InsertFunc receives the index an entry was inserted at.
	InsertFunc[T any] func(index int, kv KeyValue[T])
	// RemoveFunc receives the index an entry was removed from.
	RemoveFunc[T any] func(index int, kv KeyValue[T])
	// ModifyFunc receives the old and new value of a changed entry.
	ModifyFunc[T any] func(oldValue, newValue T)
)

// OrderedViewSet keeps the entries of one view partition sorted by a
// comparator (ties broken by key) and republishes the view's events as
// index-relative insert, remove and modify events.
//
// Reads never block. Mutations are serialized per instance and listeners
// are notified in mutation order, outside of the mutation lock.
type OrderedViewSet[T any] struct {
	id        uuid.UUID
	view      ViewSource[T]
	partition string
	cmp       Comparator[T]
	log       *slog.Logger
	onFatal   func(err error)

	mu           sync.Mutex
	list         *orderedList[T]
	modSubs      *xsync.MapOf[string, Handle]
	addHandle    Handle
	removeHandle Handle
	closed       bool
	poison       atomic.Pointer[error]

	insertListeners *Registry[InsertFunc[T]]
	removeListeners *Registry[RemoveFunc[T]]
	modifyListeners *Registry[ModifyFunc[T]]
	dispatch        dispatcher
}

// NewOrderedViewSet snapshots partition from view, sorts it and subscribes
// to the view's events in one step. Close must be called to release the
// subscriptions.
func NewOrderedViewSet[T any](
	ctx context.Context,
	view ViewSource[T],
	partition string,
	cmp Comparator[T],
	opts ...Option,
) (*OrderedViewSet[T], error) {
	o := buildOptions(opts)
	id := uuid.New()

	s := &OrderedViewSet[T]{
		id:              id,
		view:            view,
		partition:       partition,
		cmp:             cmp,
		log:             o.logger.With("component", "ordered_view_set", "set_id", id.String(), "partition", partition),
		onFatal:         o.fatalHandler,
		modSubs:         xsync.NewMapOf[string, Handle](),
		insertListeners: newRegistry[InsertFunc[T]]("ordered_set_insert", o),
		removeListeners: newRegistry[RemoveFunc[T]]("ordered_set_remove", o),
		modifyListeners: newRegistry[ModifyFunc[T]]("ordered_set_modify", o),
	}

	// Events published right after the snapshot wait on the lock until
	// every subscription is recorded.
	s.mu.Lock()
	defer s.mu.Unlock()

	attached := false
	err := view.Follow(ctx, partition, func(entries []KeyValue[T]) error {
		attached = true
		s.list = newOrderedList(entryOrder(cmp), entries)
		s.addHandle = view.OnAdd(partition, s.handleAdd)
		s.removeHandle = view.OnRemove(partition, s.handleRemove)
		for _, kv := range s.list.snapshot() {
			if _, dup := s.modSubs.Load(kv.Key); dup {
				return fmt.Errorf("%w: duplicate key %q in snapshot", ErrInconsistent, kv.Key)
			}
			s.watchKeyLocked(kv.Key)
		}
		return nil
	})
	if err != nil {
		if !attached {
			return nil, fmt.Errorf("failed to snapshot partition %q: %w", partition, err)
		}
		s.releaseLocked()
		return nil, err
	}

	orderedSetsOpen.Inc()
	s.log.Debug("ordered view set created", "entries", s.list.len())
	return s, nil
}

func (s *OrderedViewSet[T]) ID() uuid.UUID {
	return s.id
}

func (s *OrderedViewSet[T]) Partition() string {
	return s.partition
}

// --- Reads ---

// Entries returns the values in index order.
func (s *OrderedViewSet[T]) Entries() []T {
	snap := s.list.snapshot()
	values := make([]T, len(snap))
	for i, kv := range snap {
		values[i] = kv.Value
	}
	return values
}

// KeyValueEntries returns the entries in index order. The slice is shared
// and must not be modified.
func (s *OrderedViewSet[T]) KeyValueEntries() []KeyValue[T] {
	return s.list.snapshot()
}

func (s *OrderedViewSet[T]) Len() int {
	return s.list.len()
}

// Subscriptions returns the number of per-key change subscriptions held on
// the view. It equals Len while the set is open and healthy.
func (s *OrderedViewSet[T]) Subscriptions() int {
	return s.modSubs.Size()
}

// Err returns the consistency violation that poisoned the set, if any.
func (s *OrderedViewSet[T]) Err() error {
	if p := s.poison.Load(); p != nil {
		return *p
	}
	return nil
}

// --- Listeners ---

func (s *OrderedViewSet[T]) OnInsert(fn InsertFunc[T]) Handle {
	return s.insertListeners.Subscribe(fn)
}

func (s *OrderedViewSet[T]) OnRemove(fn RemoveFunc[T]) Handle {
	return s.removeListeners.Subscribe(fn)
}

func (s *OrderedViewSet[T]) OnModify(fn ModifyFunc[T]) Handle {
	return s.modifyListeners.Subscribe(fn)
}

func (s *OrderedViewSet[T]) DeleteInsertListener(h Handle) {
	s.insertListeners.Unsubscribe(h)
}

func (s *OrderedViewSet[T]) DeleteRemoveListener(h Handle) {
	s.removeListeners.Unsubscribe(h)
}

func (s *OrderedViewSet[T]) DeleteModifyListener(h Handle) {
	s.modifyListeners.Unsubscribe(h)
}

// --- Upstream events ---

func (s *OrderedViewSet[T]) handleAdd(kv KeyValue[T]) {
	s.apply("add", func() ([]func(), error) {
		if _, present := s.modSubs.Load(kv.Key); present {
			return nil, fmt.Errorf("%w: add for present key %q", ErrInconsistent, kv.Key)
		}
		index := insertionPoint(s.list.locate(kv))
		s.list.insertAt(index, kv)
		s.watchKeyLocked(kv.Key)
		orderedSetEvents.WithLabelValues("insert").Inc()
		return []func(){s.notifyInsert(index, kv)}, nil
	})
}

func (s *OrderedViewSet[T]) handleRemove(r Removal[T]) {
	s.apply("remove", func() ([]func(), error) {
		if !r.HasValue {
			// The entry cannot be located without its value; it stays until
			// a value-bearing removal arrives.
			orderedSetDropped.WithLabelValues("missing_value").Inc()
			s.log.Warn("dropping removal without value", "key", r.Key)
			return nil, nil
		}
		exact, ok := s.list.locate(r.KeyValue).(Exact)
		if !ok {
			return nil, fmt.Errorf("%w: removed entry %v not found", ErrInconsistent, r.KeyValue)
		}
		h, ok := s.modSubs.LoadAndDelete(r.Key)
		if !ok {
			return nil, fmt.Errorf("%w: no change subscription for removed key %q", ErrInconsistent, r.Key)
		}
		s.view.DeleteChangeListener(r.Key, h)
		s.list.removeAt(exact.Index)
		orderedSetEvents.WithLabelValues("remove").Inc()
		return []func(){s.notifyRemove(exact.Index, r.KeyValue)}, nil
	})
}

func (s *OrderedViewSet[T]) handleChange(key string, h *Handle, oldValue, newValue T) {
	s.apply("change", func() ([]func(), error) {
		if cur, ok := s.modSubs.Load(key); !ok || cur != *h {
			orderedSetDropped.WithLabelValues("stale").Inc()
			s.log.Debug("dropping change for stale subscription", "key", key)
			return nil, nil
		}
		oldKV := KeyValue[T]{Key: key, Value: oldValue}
		newKV := KeyValue[T]{Key: key, Value: newValue}
		exact, ok := s.list.locate(oldKV).(Exact)
		if !ok {
			return nil, fmt.Errorf("%w: changed entry %v not found", ErrInconsistent, oldKV)
		}

		if s.cmp(oldValue, newValue) == 0 {
			s.list.replaceAt(exact.Index, newKV)
			orderedSetEvents.WithLabelValues("modify").Inc()
			return []func(){s.notifyModify(oldValue, newValue)}, nil
		}

		to := s.list.move(exact.Index, newKV)
		orderedSetEvents.WithLabelValues("move").Inc()
		return []func(){
			s.notifyRemove(exact.Index, oldKV),
			s.notifyInsert(to, newKV),
			s.notifyModify(oldValue, newValue),
		}, nil
	})
}

// apply runs mutate under the mutation lock unless the set is closed or
// poisoned, then delivers the resulting notifications outside the lock.
func (s *OrderedViewSet[T]) apply(event string, mutate func() ([]func(), error)) {
	s.applyLocked(event, mutate)
	s.dispatch.drain()
}

func (s *OrderedViewSet[T]) applyLocked(event string, mutate func() ([]func(), error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.closed:
		orderedSetDropped.WithLabelValues("closed").Inc()
		s.log.Debug("dropping event after close", "event", event)
	case s.poison.Load() != nil:
		orderedSetDropped.WithLabelValues("poisoned").Inc()
	default:
		notes, err := mutate()
		if err != nil {
			s.poisonLocked(err)
			return
		}
		s.dispatch.enqueue(notes...)
	}
}

func (s *OrderedViewSet[T]) poisonLocked(err error) {
	s.poison.Store(&err)
	orderedSetInconsistencies.Inc()
	s.log.Error("ordered view set poisoned", "err", err, "entries", s.list.len())
	if s.onFatal != nil {
		s.onFatal(err)
	}
}

func (s *OrderedViewSet[T]) watchKeyLocked(key string) {
	h := new(Handle)
	*h = s.view.OnChange(key, func(oldValue, newValue T) {
		s.handleChange(key, h, oldValue, newValue)
	})
	s.modSubs.Store(key, *h)
}

// notify* capture the listeners at mutation time; delivery happens later,
// in order, via the dispatcher.
func (s *OrderedViewSet[T]) notifyInsert(index int, kv KeyValue[T]) func() {
	return s.insertListeners.bind(func(fn InsertFunc[T]) { fn(index, kv) })
}

func (s *OrderedViewSet[T]) notifyRemove(index int, kv KeyValue[T]) func() {
	return s.removeListeners.bind(func(fn RemoveFunc[T]) { fn(index, kv) })
}

func (s *OrderedViewSet[T]) notifyModify(oldValue, newValue T) func() {
	return s.modifyListeners.bind(func(fn ModifyFunc[T]) { fn(oldValue, newValue) })
}

// --- Teardown ---

// Close releases every subscription held on the view. Events that reach
// the set after Close are dropped; notifications already queued are still
// delivered. No change subscription survives Close: subscriptions are only
// added by events applied under the mutation lock, and none is applied
// once the set is closed. Calling Close again is a no-op.
func (s *OrderedViewSet[T]) Close() {
	if !s.close() {
		return
	}
	orderedSetsOpen.Dec()
	s.dispatch.drain()
	s.log.Debug("ordered view set closed")
}

func (s *OrderedViewSet[T]) close() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.releaseLocked()
	return true
}

func (s *OrderedViewSet[T]) releaseLocked() {
	s.closed = true
	s.view.DeleteAddListener(s.partition, s.addHandle)
	s.view.DeleteRemoveListener(s.partition, s.removeHandle)
	s.modSubs.Range(func(key string, h Handle) bool {
		s.view.DeleteChangeListener(key, h)
		s.modSubs.Delete(key)
		return true
	})
}

func (s *OrderedViewSet[T]) String() string {
	return fmt.Sprintf("%v", s.list.snapshot())
}
