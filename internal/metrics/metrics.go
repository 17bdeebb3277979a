// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// UpdatesTotal counts handled chat updates by kind (command, link, text, callback).
	UpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shortgrab_updates_total",
			Help: "Chat updates handled, by kind.",
		},
		[]string{"kind"},
	)

	// AcquisitionsTotal counts pipeline outcomes per platform.
	AcquisitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shortgrab_acquisitions_total",
			Help: "Video acquisitions, by platform and outcome.",
		},
		[]string{"platform", "outcome"},
	)

	// AcquisitionDuration observes how long probe plus download took.
	AcquisitionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shortgrab_acquisition_duration_seconds",
			Help:    "Time spent acquiring a video, in seconds.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"platform"},
	)

	// DeliveriesTotal counts upload outcomes (sent, too_large, timeout, failed).
	DeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shortgrab_deliveries_total",
			Help: "Video deliveries to chats, by outcome.",
		},
		[]string{"outcome"},
	)

	// BroadcastMessagesTotal counts broadcast sends by result (sent, failed).
	BroadcastMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shortgrab_broadcast_messages_total",
			Help: "Administrative broadcast messages, by result.",
		},
		[]string{"result"},
	)

	// ArchiveUploadsTotal counts background archive uploads by result (uploaded, failed, dropped).
	ArchiveUploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shortgrab_archive_uploads_total",
			Help: "Background archive uploads, by result.",
		},
		[]string{"result"},
	)

	// ThrottledTotal counts link requests rejected by the per-user limiter.
	ThrottledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shortgrab_throttled_requests_total",
		Help: "Link requests rejected by the per-user rate limiter.",
	})
)
