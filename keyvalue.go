// Package shoebox file: keyvalue.go
package shoebox

import (
	"fmt"
	"strings"
)

// KeyValue is a single entry of a store, view or ordered view set.
type KeyValue[T any] struct {
	Key   string `json:"key"`
	Value T      `json:"value"`
}

func (kv KeyValue[T]) String() string {
	return fmt.Sprintf("(%s, %v)", kv.Key, kv.Value)
}

// Removal is the payload of a remove event. Value is only meaningful when
// HasValue is set; some sources cannot report the value that was removed.
type Removal[T any] struct {
	KeyValue[T]
	HasValue bool
}

// Comparator orders values: negative if a < b, zero if equal, positive if a > b.
type Comparator[T any] func(a, b T) int

// entryOrder derives a total order over entries: values first, then keys.
func entryOrder[T any](cmp Comparator[T]) func(a, b KeyValue[T]) int {
	return func(a, b KeyValue[T]) int {
		if c := cmp(a.Value, b.Value); c != 0 {
			return c
		}
		return strings.Compare(a.Key, b.Key)
	}
}
