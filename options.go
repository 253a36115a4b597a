// Package shoebox file: options.go
package shoebox

import (
	"log/slog"
	"reflect"
)

// Option configures a Shoebox, View or OrderedViewSet.
type Option func(*options)

type options struct {
	logger       *slog.Logger
	panicHandler func(registry string, recovered any)
	fatalHandler func(err error)
	equal        func(a, b any) bool
}

func defaultOptions() options {
	return options{
		logger: slog.Default(),
		equal:  reflect.DeepEqual,
	}
}

func buildOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithListenerPanicHandler is called, in addition to logging, whenever a
// listener callback panics during fan-out.
func WithListenerPanicHandler(fn func(registry string, recovered any)) Option {
	return func(o *options) {
		o.panicHandler = fn
	}
}

// WithFatalHandler is called once when an OrderedViewSet is poisoned by an
// internal consistency violation.
func WithFatalHandler(fn func(err error)) Option {
	return func(o *options) {
		o.fatalHandler = fn
	}
}

// WithEqual overrides how a Shoebox decides that a write left a value
// unchanged. Unchanged writes emit no change events. Defaults to
// reflect.DeepEqual.
func WithEqual(fn func(a, b any) bool) Option {
	return func(o *options) {
		o.equal = fn
	}
}
