package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// connectionsActive counts authenticated live connections
	connectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "qdamono_realtime_connections",
		Help: "Authenticated real-time connections currently open",
	})

	// eventsTotal counts inbound events by kind and outcome code
	eventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qdamono_realtime_events_total",
		Help: "Inbound real-time events by name and result",
	}, []string{"event", "result"})

	eventDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "qdamono_realtime_event_duration_seconds",
		Help:    "Time spent handling one inbound event",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
	}, []string{"event"})

	framesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qdamono_realtime_frames_dropped_total",
		Help: "Outbound frames dropped because a connection's send buffer was full or closed",
	})

	roomMembers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "qdamono_realtime_room_members",
		Help: "Connections currently joined to a project room",
	})
)

// metricKind keeps label cardinality bounded for unknown event names.
func metricKind(kind Kind, known bool) string {
	if !known {
		return "unknown"
	}
	return string(kind)
}
