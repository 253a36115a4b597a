// Package pebblestore is a durable shoebox.Store on top of Pebble. Values
// are stored as JSON under their UTF-8 key; point reads go through an LRU
// cache.
package pebblestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	lru "github.com/hashicorp/golang-lru/v2"

	shoebox "github.com/meavi1994/go-shoebox"
)

const DefaultCacheSize = 10_000

type Options struct {
	// Path is the pebble data directory.
	Path string
	// FS overrides the filesystem, e.g. vfs.NewMem() in tests.
	FS vfs.FS
	// CacheSize is the number of decoded values kept for point reads.
	// Zero means DefaultCacheSize; negative disables the cache.
	CacheSize int
	// Sync makes every write durable before it returns.
	Sync   bool
	Logger *slog.Logger
}

// Store holds values of type T in a pebble database.
type Store[T any] struct {
	db        *pebble.DB
	cache     *lru.Cache[string, T]
	writeOpts *pebble.WriteOptions
	log       *slog.Logger

	// serializes read-modify-write in Set and Remove
	mu sync.Mutex
}

// Compile-time assertion that Store implements shoebox.Store.
var _ shoebox.Store[int] = (*Store[int])(nil)

func Open[T any](opts Options) (*Store[T], error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "pebblestore", "path", opts.Path)

	db, err := pebble.Open(opts.Path, &pebble.Options{FS: opts.FS})
	if err != nil {
		return nil, fmt.Errorf("%s: could not open db, %w", opts.Path, err)
	}

	s := &Store[T]{
		db:        db,
		writeOpts: pebble.NoSync,
		log:       log,
	}
	if opts.Sync {
		s.writeOpts = pebble.Sync
	}

	size := opts.CacheSize
	if size == 0 {
		size = DefaultCacheSize
	}
	if size > 0 {
		s.cache, err = lru.New[string, T](size)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("could not create cache, %w", err)
		}
	}
	log.Debug("opened store", "cache_size", size)
	return s, nil
}

func (s *Store[T]) Close() error {
	if err := s.db.Flush(); err != nil {
		s.log.Error("pebble flush", "err", err)
	}
	err := s.db.Close()
	if err != nil {
		s.log.Error("pebble close", "err", err)
	}
	return err
}

func (s *Store[T]) Get(ctx context.Context, key string) (T, error) {
	start := time.Now()
	defer observe("get", start)

	if key == "" {
		var zero T
		return zero, shoebox.ErrBlankKey
	}
	if s.cache == nil {
		return s.read(key)
	}
	if v, ok := s.cache.Get(key); ok {
		cacheHits.Inc()
		return v, nil
	}
	cacheMisses.Inc()

	// A fill must not race a write: Set and Remove trust the cache for the
	// previous value.
	s.mu.Lock()
	defer s.mu.Unlock()
	v, err := s.read(key)
	if err != nil {
		return v, err
	}
	s.cache.Add(key, v)
	return v, nil
}

func (s *Store[T]) Set(ctx context.Context, key string, value T) (T, bool, error) {
	start := time.Now()
	defer observe("set", start)

	var zero T
	if key == "" {
		return zero, false, shoebox.ErrBlankKey
	}
	data, err := json.Marshal(value)
	if err != nil {
		return zero, false, fmt.Errorf("could not encode %q, %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, existed, err := s.previous(key)
	if err != nil {
		return zero, false, err
	}
	if err := s.db.Set([]byte(key), data, s.writeOpts); err != nil {
		return zero, false, fmt.Errorf("could not write %q, %w", key, err)
	}
	if s.cache != nil {
		s.cache.Add(key, value)
	}
	return prev, existed, nil
}

func (s *Store[T]) Remove(ctx context.Context, key string) (T, bool, error) {
	start := time.Now()
	defer observe("remove", start)

	var zero T
	if key == "" {
		return zero, false, shoebox.ErrBlankKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, existed, err := s.previous(key)
	if err != nil || !existed {
		return zero, false, err
	}
	if err := s.db.Delete([]byte(key), s.writeOpts); err != nil {
		return zero, false, fmt.Errorf("could not delete %q, %w", key, err)
	}
	if s.cache != nil {
		s.cache.Remove(key)
	}
	return prev, true, nil
}

// Entries scans the whole database in key order.
func (s *Store[T]) Entries(ctx context.Context) ([]shoebox.KeyValue[T], error) {
	start := time.Now()
	defer observe("entries", start)

	iter, err := s.db.NewIterWithContext(ctx, &pebble.IterOptions{})
	if err != nil {
		return nil, fmt.Errorf("entries iter start, %w", err)
	}
	defer iter.Close()

	var result []shoebox.KeyValue[T]
	for iter.First(); iter.Valid(); iter.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		key := string(iter.Key())
		raw, err := iter.ValueAndErr()
		if err != nil {
			return nil, fmt.Errorf("entries iter, %w", err)
		}
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("could not decode %q, %w", key, err)
		}
		result = append(result, shoebox.KeyValue[T]{Key: key, Value: v})
	}
	s.log.Debug("read entries", "count", len(result))
	return result, nil
}

// previous reads key for a write, preferring the cache.
func (s *Store[T]) previous(key string) (T, bool, error) {
	if s.cache != nil {
		if v, ok := s.cache.Get(key); ok {
			return v, true, nil
		}
	}
	v, err := s.read(key)
	if errors.Is(err, shoebox.ErrNotFound) {
		return v, false, nil
	}
	if err != nil {
		return v, false, err
	}
	return v, true, nil
}

func (s *Store[T]) read(key string) (T, error) {
	var v T
	raw, closer, err := s.db.Get([]byte(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return v, shoebox.ErrNotFound
	}
	if err != nil {
		return v, fmt.Errorf("could not read %q, %w", key, err)
	}
	defer closer.Close()
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("could not decode %q, %w", key, err)
	}
	return v, nil
}
