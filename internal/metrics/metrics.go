package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PendingCreated counts pending sign-out records opened.
	PendingCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "labtrack_pending_created_total",
		Help: "Pending sign-out records created.",
	})

	// PendingResolved counts resolutions by resolver.
	PendingResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "labtrack_pending_resolved_total",
		Help: "Pending sign-out records resolved.",
	}, []string{"resolved_by"})

	// ResolutionRejected counts refused student submissions by reason.
	ResolutionRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "labtrack_resolution_rejected_total",
		Help: "Student resolution attempts refused.",
	}, []string{"reason"})

	// CleanupRemoved counts records removed by the cleanup sweep.
	CleanupRemoved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "labtrack_cleanup_removed_total",
		Help: "Resolved pending records removed by cleanup.",
	})
)
