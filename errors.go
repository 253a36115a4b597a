// Package shoebox file: errors.go
package shoebox

import "errors"

var (
	// ErrNotFound is returned by store lookups for an absent key.
	ErrNotFound = errors.New("not found")

	// ErrBlankKey is returned when a store operation is given an empty key.
	ErrBlankKey = errors.New("key must not be blank")

	// ErrInconsistent reports that an ordered view set diverged from its view.
	// The set is poisoned and must not be reused.
	ErrInconsistent = errors.New("ordered view set inconsistent with view")

	// ErrClosed is returned when operating on a closed shoebox, view or set.
	ErrClosed = errors.New("closed")
)
