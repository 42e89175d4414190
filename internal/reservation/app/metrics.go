package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	holdsAllocatedCounter = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "reservation",
		Name:      "holds_allocated_total",
		Help:      "Total number of temporary holds created by allocation.",
	})
	allocationConflictsCounter = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "reservation",
		Name:      "allocation_conflicts_total",
		Help:      "Compare-and-create races lost during allocation and retried internally.",
	})
	holdsSettledCounter = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "reservation",
		Name:      "holds_settled_total",
		Help:      "Total number of holds promoted to permanent.",
	})
	holdsSweptCounter = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "reservation",
		Name:      "holds_swept_total",
		Help:      "Total number of expired temporary holds released by the sweeper.",
	})
	sweepDurationHist = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "reservation",
		Name:      "sweep_duration_seconds",
		Help:      "Duration of one sweep batch.",
		Buckets:   prometheus.DefBuckets,
	})
)
