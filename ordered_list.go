// Package shoebox file: ordered_list.go
package shoebox

import (
	"slices"
	"sync/atomic"
)

// orderedList is a copy-on-write sorted slice of entries.
// Writers must be serialized by the owner; readers never block.
type orderedList[T any] struct {
	compare func(a, b KeyValue[T]) int
	current atomic.Pointer[[]KeyValue[T]]
}

func newOrderedList[T any](compare func(a, b KeyValue[T]) int, initial []KeyValue[T]) *orderedList[T] {
	sorted := slices.Clone(initial)
	slices.SortFunc(sorted, compare)
	l := &orderedList[T]{compare: compare}
	l.current.Store(&sorted)
	return l
}

// snapshot returns the current immutable slice. Callers must not modify it.
func (l *orderedList[T]) snapshot() []KeyValue[T] {
	return *l.current.Load()
}

func (l *orderedList[T]) len() int {
	return len(l.snapshot())
}

func (l *orderedList[T]) locate(kv KeyValue[T]) SearchResult {
	return binarySearch(l.snapshot(), kv, l.compare)
}

// --- Mutations ---

func (l *orderedList[T]) insertAt(index int, kv KeyValue[T]) {
	cur := l.snapshot()
	next := make([]KeyValue[T], 0, len(cur)+1)
	next = append(next, cur[:index]...)
	next = append(next, kv)
	next = append(next, cur[index:]...)
	l.current.Store(&next)
}

func (l *orderedList[T]) removeAt(index int) KeyValue[T] {
	cur := l.snapshot()
	removed := cur[index]
	next := make([]KeyValue[T], 0, len(cur)-1)
	next = append(next, cur[:index]...)
	next = append(next, cur[index+1:]...)
	l.current.Store(&next)
	return removed
}

func (l *orderedList[T]) replaceAt(index int, kv KeyValue[T]) {
	next := slices.Clone(l.snapshot())
	next[index] = kv
	l.current.Store(&next)
}

// move removes the entry at from and inserts kv at its sorted position,
// publishing a single snapshot. It returns the insertion index, relative to
// the list with the old entry already removed.
func (l *orderedList[T]) move(from int, kv KeyValue[T]) int {
	cur := l.snapshot()
	without := make([]KeyValue[T], 0, len(cur))
	without = append(without, cur[:from]...)
	without = append(without, cur[from+1:]...)

	to := insertionPoint(binarySearch(without, kv, l.compare))
	without = slices.Insert(without, to, kv)
	l.current.Store(&without)
	return to
}
