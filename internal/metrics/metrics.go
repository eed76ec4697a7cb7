// Package metrics exposes Prometheus counters for the ingestion pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CandidatesTotal counts per-file outcomes. Outcome labels line up with
	// the terminal pipeline states.
	CandidatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cad_ingest",
		Name:      "candidates_total",
		Help:      "Export file candidates by terminal outcome.",
	}, []string{"outcome"})

	ScanCyclesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "cad_ingest",
		Name:      "scan_cycles_total",
		Help:      "Completed directory scan cycles.",
	})

	ScanDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "cad_ingest",
		Name:      "scan_duration_seconds",
		Help:      "Wall time of a full scan cycle.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
	})

	SkippedStale = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "cad_ingest",
		Name:      "stale_versions_skipped_total",
		Help:      "Files passed over because a newer export existed for the same call.",
	})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "cad_ingest",
		Name:      "queue_depth",
		Help:      "Jobs currently waiting in the worker queue.",
	})
)
