package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SyncFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ccp_sync_failed_total",
			Help: "Total number of failed repository synchronization operations",
		},
		[]string{"operation"},
	)

	SyncCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ccp_sync_count_total",
			Help: "Total number of repository synchronization operations",
		},
		[]string{"operation"},
	)

	SyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ccp_sync_duration_seconds",
			Help:    "Repository synchronization duration in seconds",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1, 1.5, 2, 5, 10, 30, 60},
		},
		[]string{"operation"},
	)

	LastSyncEnd = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ccp_last_sync_end_timestamp",
			Help: "Unix timestamp of when the last synchronization operation ended",
		},
		[]string{"operation"},
	)

	BranchSwitchCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ccp_branch_switch_total",
			Help: "Total number of times the working copy was switched to another branch",
		},
	)

	BackupCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ccp_backup_total",
			Help: "Total number of working copy backups taken before a branch switch",
		},
	)
)

// ObserveSync records the outcome of a synchronization operation started at start.
func ObserveSync(operation string, start time.Time, err error) {
	SyncCount.WithLabelValues(operation).Inc()
	if err != nil {
		SyncFailed.WithLabelValues(operation).Inc()
	}
	SyncDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	LastSyncEnd.WithLabelValues(operation).SetToCurrentTime()
}
