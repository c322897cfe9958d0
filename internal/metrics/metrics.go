// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RecomputeDuration is the wall time of one CPM recompute, by result.
	RecomputeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "planline_recompute_duration_seconds",
			Help:    "Critical path recompute duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"result"}, // ok, cycle, conflict, error, superseded
	)

	// RecomputeQueued counts background recompute requests, by outcome.
	RecomputeQueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "planline_recompute_queued_total",
			Help: "Total number of background recompute requests",
		},
		[]string{"outcome"}, // queued, coalesced, superseded
	)

	// ScheduleSize is the task count of each successful recompute.
	ScheduleSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "planline_schedule_tasks",
			Help:    "Number of tasks in a recomputed schedule",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
	)

	// SweepTransitions counts milestone status changes made by the sweep.
	SweepTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "planline_sweep_transitions_total",
			Help: "Total number of milestone status changes made by the sweep",
		},
		[]string{"to"},
	)

	// LockWait is the time spent waiting for a project lock.
	LockWait = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "planline_lock_wait_seconds",
			Help:    "Time spent acquiring a project lock in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		},
	)

	// HTTPRequestDuration is the latency of API requests.
	// EventsDropped counts bus messages discarded because a subscriber
	// channel was full.
	EventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "planline_events_dropped_total",
			Help: "Total number of event bus messages dropped by slow subscribers",
		},
		[]string{"subject"},
	)

	SnapshotWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "planline_snapshot_writes_total",
			Help: "Backup snapshot writes per destination",
		},
		[]string{"destination", "result"},
	)

	SnapshotBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "planline_snapshot_bytes",
			Help: "Size of the most recent backup snapshot",
		},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "planline_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"method", "path", "status"},
	)
)

// RecordRecompute records one recompute.
func RecordRecompute(result string, tasks int, d time.Duration) {
	RecomputeDuration.WithLabelValues(result).Observe(d.Seconds())
	if result == "ok" {
		ScheduleSize.Observe(float64(tasks))
	}
}

// IncrementQueued counts one background recompute request.
func IncrementQueued(outcome string) {
	RecomputeQueued.WithLabelValues(outcome).Inc()
}

// IncrementSweepTransition counts one sweep status change.
func IncrementSweepTransition(to string) {
	SweepTransitions.WithLabelValues(to).Inc()
}

// IncrementEventsDropped counts one message dropped on subject.
func IncrementEventsDropped(subject string) {
	EventsDropped.WithLabelValues(subject).Inc()
}

// RecordSnapshotWrite counts one snapshot write to destination.
func RecordSnapshotWrite(destination string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	SnapshotWrites.WithLabelValues(destination, result).Inc()
}

// RecordLockWait records time spent acquiring a lock.
func RecordLockWait(d time.Duration) {
	LockWait.Observe(d.Seconds())
}

// RecordHTTPRequest records one API request. path is the route pattern, not
// the raw URL, to keep label cardinality bounded.
func RecordHTTPRequest(method, path string, status int, d time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, strconv.Itoa(status)).Observe(d.Seconds())
}
