// Package shoebox file: handle.go
package shoebox

import "sync/atomic"

// Handle identifies a listener subscription. Handles are unique for the
// lifetime of the process and are only useful for unsubscribing.
type Handle uint64

var handleSource atomic.Uint64

func nextHandle() Handle {
	return Handle(handleSource.Add(1))
}
