// Package shoebox file: partition_index.go
package shoebox

import (
	"fmt"
	"slices"
	"strings"

	"github.com/google/btree"
)

// partition wraps a partition key and the entries currently in it.
type partition[T any] struct {
	key string
	// member key -> value
	members map[string]T
}

// partitionIndex groups entries by partition key in a btree. It is not
// safe for concurrent use; the owning View serializes access.
type partitionIndex[T any] struct {
	tree *btree.BTreeG[partition[T]]
	// member key -> partition key
	keys map[string]string
}

func newPartitionIndex[T any]() *partitionIndex[T] {
	return &partitionIndex[T]{
		tree: btree.NewG(2, func(a, b partition[T]) bool {
			return a.key < b.key
		}),
		keys: make(map[string]string),
	}
}

// insert places kv in partition p, replacing any previous entry for kv.Key.
func (idx *partitionIndex[T]) insert(p string, kv KeyValue[T]) {
	if old, found := idx.keys[kv.Key]; found && old != p {
		idx.delete(kv.Key)
	}

	it, found := idx.tree.Get(partition[T]{key: p})
	if !found {
		it = partition[T]{key: p, members: make(map[string]T)}
		idx.tree.ReplaceOrInsert(it)
	}
	it.members[kv.Key] = kv.Value
	idx.keys[kv.Key] = p
}

// delete removes key and drops its partition once empty.
func (idx *partitionIndex[T]) delete(key string) (string, T, bool) {
	var zero T
	p, found := idx.keys[key]
	if !found {
		return "", zero, false
	}
	delete(idx.keys, key)

	it, found := idx.tree.Get(partition[T]{key: p})
	if !found {
		return p, zero, false
	}
	value, ok := it.members[key]
	delete(it.members, key)
	if len(it.members) == 0 {
		idx.tree.Delete(it)
	}
	return p, value, ok
}

// lookup returns the partition and value of key.
func (idx *partitionIndex[T]) lookup(key string) (string, T, bool) {
	var zero T
	p, found := idx.keys[key]
	if !found {
		return "", zero, false
	}
	it, found := idx.tree.Get(partition[T]{key: p})
	if !found {
		return p, zero, false
	}
	value, ok := it.members[key]
	return p, value, ok
}

// find returns the entries of partition p in key order.
func (idx *partitionIndex[T]) find(p string) []KeyValue[T] {
	it, found := idx.tree.Get(partition[T]{key: p})
	if !found {
		return nil
	}
	result := make([]KeyValue[T], 0, len(it.members))
	for k, v := range it.members {
		result = append(result, KeyValue[T]{Key: k, Value: v})
	}
	slices.SortFunc(result, func(a, b KeyValue[T]) int {
		return strings.Compare(a.Key, b.Key)
	})
	return result
}

// partitions returns the non-empty partition keys in ascending order.
func (idx *partitionIndex[T]) partitions() []string {
	result := make([]string, 0, idx.tree.Len())
	idx.tree.Ascend(func(it partition[T]) bool {
		result = append(result, it.key)
		return true
	})
	return result
}

func (idx *partitionIndex[T]) String() string {
	var sb strings.Builder
	sb.WriteString("[")
	first := true
	idx.tree.Ascend(func(it partition[T]) bool {
		if !first {
			sb.WriteString(", ")
		}
		sb.WriteString(fmt.Sprintf("%s: %v", it.key, idx.find(it.key)))
		first = false
		return true // Continue iteration
	})
	sb.WriteString("]")
	return sb.String()
}
