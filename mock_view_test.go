package shoebox

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"
)

// MockView is a hand-driven ViewSource for a single partition.
type MockView[T any] struct {
	Initial []KeyValue[T]
	Err     error

	adds    *Registry[func(KeyValue[T])]
	removes *Registry[func(Removal[T])]
	changes *keyedRegistries[ChangeFunc[T]]
}

var _ ViewSource[int] = (*MockView[int])(nil)

func NewMockView[T any](initial ...KeyValue[T]) *MockView[T] {
	o := defaultOptions()
	return &MockView[T]{
		Initial: initial,
		adds:    newRegistry[func(KeyValue[T])]("mock_add", o),
		removes: newRegistry[func(Removal[T])]("mock_remove", o),
		changes: newKeyedRegistries[ChangeFunc[T]]("mock_change", o),
	}
}

func (m *MockView[T]) KeyValues(ctx context.Context, partition string) ([]KeyValue[T], error) {
	return m.Initial, m.Err
}

func (m *MockView[T]) Follow(ctx context.Context, partition string, attach func(entries []KeyValue[T]) error) error {
	if m.Err != nil {
		return m.Err
	}
	return attach(m.Initial)
}

func (m *MockView[T]) OnAdd(partition string, fn func(kv KeyValue[T])) Handle {
	return m.adds.Subscribe(fn)
}

func (m *MockView[T]) OnRemove(partition string, fn func(r Removal[T])) Handle {
	return m.removes.Subscribe(fn)
}

func (m *MockView[T]) OnChange(key string, fn func(oldValue, newValue T)) Handle {
	return m.changes.subscribe(key, fn)
}

func (m *MockView[T]) DeleteAddListener(partition string, h Handle)    { m.adds.Unsubscribe(h) }
func (m *MockView[T]) DeleteRemoveListener(partition string, h Handle) { m.removes.Unsubscribe(h) }
func (m *MockView[T]) DeleteChangeListener(key string, h Handle)       { m.changes.unsubscribe(key, h) }

// Add, Remove, RemoveKeyOnly and Change emit upstream events.
func (m *MockView[T]) Add(key string, value T) {
	kv := KeyValue[T]{Key: key, Value: value}
	m.adds.Publish(func(fn func(KeyValue[T])) { fn(kv) })
}

func (m *MockView[T]) Remove(key string, value T) {
	r := Removal[T]{KeyValue: KeyValue[T]{Key: key, Value: value}, HasValue: true}
	m.removes.Publish(func(fn func(Removal[T])) { fn(r) })
}

func (m *MockView[T]) RemoveKeyOnly(key string) {
	r := Removal[T]{KeyValue: KeyValue[T]{Key: key}}
	m.removes.Publish(func(fn func(Removal[T])) { fn(r) })
}

func (m *MockView[T]) Change(key string, oldValue, newValue T) {
	m.changes.bind(key, func(fn ChangeFunc[T]) { fn(oldValue, newValue) })()
}

func (m *MockView[T]) Listeners() (adds, removes int) {
	return m.adds.Len(), m.removes.Len()
}

func (m *MockView[T]) ChangeListeners(key string) int {
	return m.changes.len(key)
}

// debugWriter sends log output to t.Log.
type debugWriter struct {
	t *testing.T
}

func (w *debugWriter) Write(p []byte) (n int, err error) {
	w.t.Helper()
	w.t.Log(string(p))
	return len(p), nil
}

func testLogger(t *testing.T) *slog.Logger {
	return slog.New(slog.NewTextHandler(&debugWriter{t: t}, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// syncBuffer is a log sink tests can inspect.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
