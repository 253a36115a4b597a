// Package shoebox file: btree.go
package shoebox

import (
	"sync"

	"github.com/google/btree"
)

// SafeBTreeG is a google/btree guarded by a RWMutex.
type SafeBTreeG[T any] struct {
	mu sync.RWMutex
	bt *btree.BTreeG[T]
}

func NewSafeBTreeG[T any](degree int, less btree.LessFunc[T]) *SafeBTreeG[T] {
	return &SafeBTreeG[T]{bt: btree.NewG(degree, less)}
}

// --- CRUD ---
func (s *SafeBTreeG[T]) ReplaceOrInsert(item T) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bt.ReplaceOrInsert(item)
}

func (s *SafeBTreeG[T]) Get(key T) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bt.Get(key)
}

func (s *SafeBTreeG[T]) Delete(item T) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bt.Delete(item)
}

func (s *SafeBTreeG[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bt.Len()
}

// --- Traversal ---

// Ascend visits items in order while holding the read lock; fn must not
// write to the tree.
func (s *SafeBTreeG[T]) Ascend(fn btree.ItemIteratorG[T]) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.bt.Ascend(fn)
}

func (s *SafeBTreeG[T]) Items() []T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]T, 0, s.bt.Len())
	s.bt.Ascend(func(item T) bool {
		items = append(items, item)
		return true
	})
	return items
}
