// Package metrics provides Prometheus metrics for the AFM API.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Resolver metrics
	ResolveTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "afm_resolve_total",
			Help: "File resolutions by target kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	ResolveProbes = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "afm_resolve_probes",
			Help:    "Candidate paths probed per resolution",
			Buckets: []float64{1, 2, 3, 4, 5, 6, 8, 10},
		},
		[]string{"kind"},
	)

	WeakPointTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "afm_resolve_weak_point_total",
			Help: "Resolutions whose point number was derived or defaulted",
		},
		[]string{"source"},
	)

	DuplicateMatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "afm_resolve_duplicate_match_total",
			Help: "Resolutions where more than one candidate existed on disk",
		},
		[]string{"kind"},
	)

	// Cache metrics
	CacheRebuildTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "afm_cache_rebuild_total",
			Help: "File list cache rebuilds by outcome",
		},
		[]string{"tool", "outcome"},
	)

	CacheEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "afm_cache_entries",
			Help: "Measurements in the last persisted file list",
		},
		[]string{"tool"},
	)

	ParseFailureTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "afm_parse_failure_total",
			Help: "File list lines skipped because the name could not be parsed",
		},
		[]string{"tool"},
	)

	PayloadCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "afm_payload_cache_total",
			Help: "Decoded payload cache lookups by result",
		},
		[]string{"result"},
	)

	MalformedPayloadTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "afm_malformed_payload_total",
			Help: "Payload sections with no recognised shape",
		},
		[]string{"section"},
	)

	// HTTP metrics
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "afm_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "status"},
	)
)
