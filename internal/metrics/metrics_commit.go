package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CommitCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ccp_commit_count_total",
			Help: "Total number of content commits",
		},
	)

	CommitFailed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ccp_commit_failed_total",
			Help: "Total number of failed content commits",
		},
	)

	CommitBatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ccp_commit_batch_size",
			Help:    "Number of distinct change descriptions folded into a commit",
			Buckets: []float64{1, 2, 3, 5, 10, 20, 50},
		},
	)

	StaleContentCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ccp_stale_content_total",
			Help: "Total number of changes rejected because the content was outdated",
		},
	)
)
