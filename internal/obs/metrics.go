// Package obs holds process-wide observability: prometheus metrics for the
// sync engine and the handler that exposes them.
package obs

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	MessagesMerged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "roomsync_messages_merged_total",
		Help: "Messages merged into a room view from any source.",
	})
	DuplicatesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "roomsync_duplicates_dropped_total",
		Help: "Messages discarded because their id was already merged.",
	})
	MemberRefreshes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "roomsync_member_refreshes_total",
		Help: "Wholesale member list replacements after membership events.",
	})
	BridgeOpens = promauto.NewCounter(prometheus.CounterOpts{
		Name: "roomsync_bridge_opens_total",
		Help: "Live event bridges opened.",
	})
	BridgeCloses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "roomsync_bridge_closes_total",
		Help: "Live event bridges closed.",
	})
	SnapshotFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "roomsync_snapshot_failures_total",
		Help: "Room snapshot loads that failed as a whole.",
	})
	AuthEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roomsync_auth_events_total",
		Help: "Auth state change events by kind.",
	}, []string{"kind"})
)

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
