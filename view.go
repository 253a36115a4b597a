// Package shoebox file: view.go
package shoebox

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// View partitions a Shoebox by viewBy and publishes add and remove events
// per partition. A value change that moves a key to another partition is
// published as a remove from the old partition and an add to the new one;
// changes within a partition go to the key's change listeners.
//
// Every event is bound to its listeners under the same lock that updates
// the partition index, which is what makes Follow exact.
type View[T any] struct {
	id     uuid.UUID
	box    *Shoebox[T]
	viewBy func(T) string
	log    *slog.Logger

	mu     sync.Mutex
	index  *partitionIndex[T]
	sub    follower
	closed bool

	addListeners    *keyedRegistries[func(kv KeyValue[T])]
	removeListeners *keyedRegistries[func(r Removal[T])]
	changeListeners *keyedRegistries[ChangeFunc[T]]
}

// Compile-time assertion that View implements ViewSource.
var _ ViewSource[int] = (*View[int])(nil)

func NewView[T any](ctx context.Context, box *Shoebox[T], viewBy func(T) string, opts ...Option) (*View[T], error) {
	o := buildOptions(opts)
	id := uuid.New()
	v := &View[T]{
		id:              id,
		box:             box,
		viewBy:          viewBy,
		log:             o.logger.With("component", "view", "view_id", id.String()),
		index:           newPartitionIndex[T](),
		addListeners:    newKeyedRegistries[func(kv KeyValue[T])]("view_add", o),
		removeListeners: newKeyedRegistries[func(r Removal[T])]("view_remove", o),
		changeListeners: newKeyedRegistries[ChangeFunc[T]]("view_change", o),
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	entries, sub, err := box.follow(ctx, v.handleNew, v.handleRemove, v.handleChange)
	if err != nil {
		return nil, fmt.Errorf("failed to build view: %w", err)
	}
	v.sub = sub
	for _, kv := range entries {
		v.index.insert(viewBy(kv.Value), kv)
	}
	v.log.Debug("view created", "entries", len(entries), "partitions", v.index.tree.Len())
	return v, nil
}

// KeyValues returns the entries of partition in key order.
func (v *View[T]) KeyValues(ctx context.Context, partition string) ([]KeyValue[T], error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return nil, ErrClosed
	}
	return v.index.find(partition), nil
}

// Follow calls attach with the entries of partition while no event can be
// published. Listeners registered inside attach see every later event and
// none that is already reflected in entries. attach must not call back into
// the view's read methods.
func (v *View[T]) Follow(ctx context.Context, partition string, attach func(entries []KeyValue[T]) error) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return attach(v.index.find(partition))
}

// Partitions returns the non-empty partitions in ascending order.
func (v *View[T]) Partitions() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.index.partitions()
}

// --- Listeners ---

func (v *View[T]) OnAdd(partition string, fn func(kv KeyValue[T])) Handle {
	return v.addListeners.subscribe(partition, fn)
}

func (v *View[T]) OnRemove(partition string, fn func(r Removal[T])) Handle {
	return v.removeListeners.subscribe(partition, fn)
}

// OnChange subscribes to changes of key that keep it in its partition.
// Changes across partitions arrive as remove and add events instead.
func (v *View[T]) OnChange(key string, fn func(oldValue, newValue T)) Handle {
	return v.changeListeners.subscribe(key, fn)
}

func (v *View[T]) DeleteAddListener(partition string, h Handle) {
	v.addListeners.unsubscribe(partition, h)
}

func (v *View[T]) DeleteRemoveListener(partition string, h Handle) {
	v.removeListeners.unsubscribe(partition, h)
}

func (v *View[T]) DeleteChangeListener(key string, h Handle) {
	v.changeListeners.unsubscribe(key, h)
}

// ChangeListeners returns the number of change listeners on key.
func (v *View[T]) ChangeListeners(key string) int {
	return v.changeListeners.len(key)
}

// Close detaches the view from its shoebox.
func (v *View[T]) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	v.closed = true
	v.box.unfollow(v.sub)
}

// --- Shoebox events ---

// Each handler updates the index and binds its notifications under the
// lock, then delivers them after releasing it.

func (v *View[T]) handleNew(kv KeyValue[T]) {
	deliverAll(v.applyNew(kv))
}

func (v *View[T]) handleRemove(r Removal[T]) {
	deliverAll(v.applyRemove(r))
}

func (v *View[T]) handleChange(key string, oldValue, newValue T) {
	deliverAll(v.applyChange(key, oldValue, newValue))
}

func (v *View[T]) applyNew(kv KeyValue[T]) []func() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return nil
	}
	p := v.viewBy(kv.Value)
	v.index.insert(p, kv)
	return []func(){v.addListeners.bind(p, func(fn func(KeyValue[T])) { fn(kv) })}
}

func (v *View[T]) applyRemove(r Removal[T]) []func() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return nil
	}
	p, value, ok := v.index.delete(r.Key)
	if !ok {
		v.log.Warn("remove for key outside view", "key", r.Key)
		return nil
	}
	if !r.HasValue {
		r = Removal[T]{KeyValue: KeyValue[T]{Key: r.Key, Value: value}, HasValue: true}
	}
	return []func(){v.removeListeners.bind(p, func(fn func(Removal[T])) { fn(r) })}
}

func (v *View[T]) applyChange(key string, oldValue, newValue T) []func() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return nil
	}
	oldP, _, known := v.index.lookup(key)
	newP := v.viewBy(newValue)
	kv := KeyValue[T]{Key: key, Value: newValue}
	v.index.insert(newP, kv)

	if known && oldP == newP {
		return []func(){v.changeListeners.bind(key, func(fn ChangeFunc[T]) { fn(oldValue, newValue) })}
	}
	var notify []func()
	if known {
		r := Removal[T]{KeyValue: KeyValue[T]{Key: key, Value: oldValue}, HasValue: true}
		notify = append(notify, v.removeListeners.bind(oldP, func(fn func(Removal[T])) { fn(r) }))
	}
	return append(notify, v.addListeners.bind(newP, func(fn func(KeyValue[T])) { fn(kv) }))
}

func deliverAll(notify []func()) {
	for _, fn := range notify {
		fn()
	}
}
