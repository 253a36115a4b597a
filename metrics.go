// Package shoebox file: metrics.go
package shoebox

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var listenerPanics = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "shoebox_listener_panics_total",
	Help: "Total number of listener callbacks that panicked during fan-out",
}, []string{"registry"})

var orderedSetEvents = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "shoebox_ordered_set_events_total",
	Help: "Total number of upstream events applied to ordered view sets",
}, []string{"kind"})

var orderedSetDropped = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "shoebox_ordered_set_dropped_events_total",
	Help: "Total number of upstream events dropped by ordered view sets",
}, []string{"reason"})

var orderedSetInconsistencies = promauto.NewCounter(prometheus.CounterOpts{
	Name: "shoebox_ordered_set_inconsistencies_total",
	Help: "Total number of ordered view sets poisoned by an internal consistency violation",
})

var orderedSetsOpen = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "shoebox_ordered_sets_open",
	Help: "Number of ordered view sets that have not been closed",
})

var shoeboxWrites = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "shoebox_writes_total",
	Help: "Total number of shoebox writes by resulting event",
}, []string{"event"})
