// Package metrics exposes the note-pipeline counters. Drop reasons are kept
// coarse on purpose; per-room labels are limited to publish volume to bound
// cardinality.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	DropReasonSelf        = "self"
	DropReasonStale       = "stale"
	DropReasonEcho        = "echo"
	DropReasonRetrigger   = "retrigger"
	DropReasonInvalid     = "invalid"
	DropReasonRateLimited = "rate_limited"
)

var (
	NotesPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tutti_notes_published_total",
		Help: "Note events published to the bus, per room.",
	}, []string{"room"})

	NotesPlayed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tutti_notes_played_total",
		Help: "Note events that reached the synthesis engine.",
	})

	NotesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tutti_notes_dropped_total",
		Help: "Note events dropped before synthesis, by reason.",
	}, []string{"reason"})

	BusPublishErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tutti_bus_publish_errors_total",
		Help: "Failed publishes to the message bus.",
	})

	ActiveSubscriptions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tutti_active_subscriptions",
		Help: "Listener pipelines currently in the Active state.",
	})

	RoomsAutoClosed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tutti_rooms_auto_closed_total",
		Help: "Rooms closed by the lifecycle manager.",
	})
)
