// Package shoebox file: dispatcher.go
package shoebox

import "sync"

// dispatcher delivers notifications one at a time in enqueue order. The
// goroutine that finds it idle drains the queue; everyone else, including
// a listener that triggers new notifications, only enqueues.
type dispatcher struct {
	mu       sync.Mutex
	queue    []func()
	draining bool
}

func (d *dispatcher) enqueue(fns ...func()) {
	d.mu.Lock()
	d.queue = append(d.queue, fns...)
	d.mu.Unlock()
}

func (d *dispatcher) drain() {
	d.mu.Lock()
	if d.draining {
		d.mu.Unlock()
		return
	}
	d.draining = true
	for len(d.queue) > 0 {
		fn := d.queue[0]
		d.queue[0] = nil
		d.queue = d.queue[1:]
		d.mu.Unlock()
		fn()
		d.mu.Lock()
	}
	d.queue = nil
	d.draining = false
	d.mu.Unlock()
}
