// Package shoebox file: memstore.go
package shoebox

import "context"

// MemStore is an in-memory Store ordered by key.
type MemStore[T any] struct {
	tree *SafeBTreeG[KeyValue[T]]
}

// Compile-time assertion that MemStore implements Store.
var _ Store[int] = (*MemStore[int])(nil)

func NewMemStore[T any]() *MemStore[T] {
	return &MemStore[T]{
		tree: NewSafeBTreeG(16, func(a, b KeyValue[T]) bool {
			return a.Key < b.Key
		}),
	}
}

func (m *MemStore[T]) Get(ctx context.Context, key string) (T, error) {
	if key == "" {
		var zero T
		return zero, ErrBlankKey
	}
	kv, found := m.tree.Get(KeyValue[T]{Key: key})
	if !found {
		var zero T
		return zero, ErrNotFound
	}
	return kv.Value, nil
}

func (m *MemStore[T]) Set(ctx context.Context, key string, value T) (T, bool, error) {
	var zero T
	if key == "" {
		return zero, false, ErrBlankKey
	}
	prev, existed := m.tree.ReplaceOrInsert(KeyValue[T]{Key: key, Value: value})
	return prev.Value, existed, nil
}

func (m *MemStore[T]) Remove(ctx context.Context, key string) (T, bool, error) {
	var zero T
	if key == "" {
		return zero, false, ErrBlankKey
	}
	prev, existed := m.tree.Delete(KeyValue[T]{Key: key})
	return prev.Value, existed, nil
}

func (m *MemStore[T]) Entries(ctx context.Context) ([]KeyValue[T], error) {
	return m.tree.Items(), nil
}

func (m *MemStore[T]) Len() int {
	return m.tree.Len()
}
