package index

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var docsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ingest_index_docs_total",
		Help: "Records handled by the indexer, by collection and outcome",
	},
	[]string{"collection", "outcome"},
)
