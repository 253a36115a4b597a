// Package shoebox file: registry.go
package shoebox

import (
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/google/btree"
	"github.com/puzpuzpuz/xsync/v3"
)

type listener[F any] struct {
	handle Handle
	fn     F
}

// Registry holds the listeners for one kind of event, keyed by handle.
// Publish invokes listeners in ascending handle order, outside of the
// registry lock, so listeners may subscribe and unsubscribe freely.
type Registry[F any] struct {
	name    string
	log     *slog.Logger
	onPanic func(registry string, recovered any)

	mu        sync.RWMutex
	listeners *btree.BTreeG[listener[F]]
}

func NewRegistry[F any](name string, opts ...Option) *Registry[F] {
	o := buildOptions(opts)
	return newRegistry[F](name, o)
}

func newRegistry[F any](name string, o options) *Registry[F] {
	return &Registry[F]{
		name:    name,
		log:     o.logger.With("registry", name),
		onPanic: o.panicHandler,
		listeners: btree.NewG(8, func(a, b listener[F]) bool {
			return a.handle < b.handle
		}),
	}
}

// Subscribe registers fn and returns its handle.
func (r *Registry[F]) Subscribe(fn F) Handle {
	h := nextHandle()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners.ReplaceOrInsert(listener[F]{handle: h, fn: fn})
	return h
}

// Unsubscribe removes the listener. Unknown handles are ignored.
func (r *Registry[F]) Unsubscribe(h Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, found := r.listeners.Delete(listener[F]{handle: h})
	return found
}

func (r *Registry[F]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.listeners.Len()
}

// Publish calls invoke once per listener. A panicking listener is recovered
// and reported; the remaining listeners still run.
func (r *Registry[F]) Publish(invoke func(fn F)) {
	r.bind(invoke)()
}

// bind captures the current listeners and returns a func that delivers to
// them. Listeners subscribed after bind returns do not see the event.
func (r *Registry[F]) bind(invoke func(fn F)) func() {
	r.mu.RLock()
	fns := make([]listener[F], 0, r.listeners.Len())
	r.listeners.Ascend(func(l listener[F]) bool {
		fns = append(fns, l)
		return true
	})
	r.mu.RUnlock()

	return func() {
		for _, l := range fns {
			r.call(l, invoke)
		}
	}
}

func (r *Registry[F]) call(l listener[F], invoke func(fn F)) {
	defer func() {
		if rec := recover(); rec != nil {
			listenerPanics.WithLabelValues(r.name).Inc()
			r.log.Error("listener panicked", "handle", uint64(l.handle), "panic", rec, "stack", string(debug.Stack()))
			if r.onPanic != nil {
				r.onPanic(r.name, rec)
			}
		}
	}()
	invoke(l.fn)
}

// keyedRegistries holds one Registry per key, created on first subscribe
// and discarded once its last listener leaves.
type keyedRegistries[F any] struct {
	name string
	opts options
	regs *xsync.MapOf[string, *Registry[F]]
}

func newKeyedRegistries[F any](name string, o options) *keyedRegistries[F] {
	return &keyedRegistries[F]{
		name: name,
		opts: o,
		regs: xsync.NewMapOf[string, *Registry[F]](),
	}
}

func (k *keyedRegistries[F]) subscribe(key string, fn F) Handle {
	var h Handle
	k.regs.Compute(key, func(reg *Registry[F], loaded bool) (*Registry[F], bool) {
		if !loaded {
			reg = newRegistry[F](k.name, k.opts)
		}
		h = reg.Subscribe(fn)
		return reg, false
	})
	return h
}

func (k *keyedRegistries[F]) unsubscribe(key string, h Handle) bool {
	var found bool
	k.regs.Compute(key, func(reg *Registry[F], loaded bool) (*Registry[F], bool) {
		if !loaded {
			return reg, true
		}
		found = reg.Unsubscribe(h)
		return reg, reg.Len() == 0
	})
	return found
}

func (k *keyedRegistries[F]) bind(key string, invoke func(fn F)) func() {
	reg, ok := k.regs.Load(key)
	if !ok {
		return func() {}
	}
	return reg.bind(invoke)
}

// len returns the number of listeners registered under key.
func (k *keyedRegistries[F]) len(key string) int {
	reg, ok := k.regs.Load(key)
	if !ok {
		return 0
	}
	return reg.Len()
}
