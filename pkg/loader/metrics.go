package loader

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_loader_runs_total",
			Help: "Loader runs, by source and outcome",
		},
		[]string{"source", "status"},
	)

	runDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ingest_loader_run_duration_seconds",
			Help:    "Loader run duration, by source",
			Buckets: []float64{1, 5, 15, 60, 300, 900, 3600},
		},
		[]string{"source"},
	)
)
