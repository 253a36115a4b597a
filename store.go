// Package shoebox file: store.go
package shoebox

import "context"

// Store is the key/value capability a Shoebox persists through.
type Store[T any] interface {
	// Get returns ErrNotFound when key is absent.
	Get(ctx context.Context, key string) (T, error)
	// Set stores value and returns the previous value, if any.
	Set(ctx context.Context, key string, value T) (prev T, existed bool, err error)
	// Remove deletes key and returns the removed value, if any.
	Remove(ctx context.Context, key string) (prev T, existed bool, err error)
	// Entries returns every entry in ascending key order.
	Entries(ctx context.Context) ([]KeyValue[T], error)
}
