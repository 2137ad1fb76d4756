package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	bulkDocs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_store_bulk_docs_total",
			Help: "Documents written in bulk batches, by collection and outcome",
		},
		[]string{"collection", "status"},
	)

	bulkDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ingest_store_bulk_duration_seconds",
			Help:    "Bulk write latency, by collection",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"collection"},
	)
)
