package pebblestore

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var opDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "shoebox_pebblestore_op_duration_seconds",
	Help:    "Duration of pebble store operations",
	Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
}, []string{"op"})

var cacheHits = promauto.NewCounter(prometheus.CounterOpts{
	Name: "shoebox_pebblestore_cache_hits_total",
	Help: "Total number of point reads served from the value cache",
})

var cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
	Name: "shoebox_pebblestore_cache_misses_total",
	Help: "Total number of point reads that went to pebble",
})

func observe(op string, start time.Time) {
	opDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
