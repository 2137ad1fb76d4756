package paginate

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_paginate_pages_total",
			Help: "Pages fetched, by source and outcome",
		},
		[]string{"source", "status"},
	)

	recordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_paginate_records_total",
			Help: "Records handled by page workers, by source",
		},
		[]string{"source"},
	)
)
