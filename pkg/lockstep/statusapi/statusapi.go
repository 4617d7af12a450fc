// Package statusapi exposes a read-only HTTP view of a lockstep
// session's per-peer queue state, plus a /metrics endpoint. It is a
// host-app convenience, not part of the lockstep protocol itself: a
// Session runs fully correctly with no statusapi listener at all.
//
// Grounded on pkg/hypervisor/hypervisor.go's ServeHTTP (a chi.Router
// built per request, routed under /api) and getVisors (a JSON summary
// handler reading shared session state under a lock).
package statusapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skycoin/lockstep/pkg/lockstep"
)

// PeerStatus is one peer's queue snapshot as rendered by GET /status.
type PeerStatus struct {
	Peer          string     `json:"peer"`
	BufferHead    int64      `json:"buffer_head"`
	LastInOrder   int64      `json:"last_in_order"`
	PendingLen    int        `json:"pending_len"`
	UnackedLen    int        `json:"unacked_len"`
	HighestAckSeen int64     `json:"highest_cumulative_ack_seen"`
	LastSeen      *time.Time `json:"last_seen,omitempty"`
}

// Handler builds the chi.Router serving a single session's status and
// metrics. registry may be nil to omit /metrics (e.g. when metrics
// aren't wired up for this session).
func Handler(session *lockstep.Session, registry *prometheus.Registry) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Timeout(5 * time.Second))
	r.Get("/status", statusHandler(session))
	if registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}
	return r
}

func statusHandler(session *lockstep.Session) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		peers := session.Peers()
		out := make([]PeerStatus, 0, len(peers))
		for _, p := range peers {
			st := PeerStatus{Peer: p.String()}
			if rq, ok := session.ReceiveQueue(p); ok {
				st.BufferHead = rq.BufferHead()
				st.LastInOrder = rq.LastInOrder()
				st.PendingLen = rq.PendingLen()
			}
			if tq, ok := session.TransmitQueue(p); ok {
				st.UnackedLen = tq.UnackedLen()
				st.HighestAckSeen = tq.HighestCumulativeAckSeen()
			}
			if seen, ok := session.LastSeen(p); ok {
				st.LastSeen = &seen
			}
			out = append(out, st)
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(out); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}
