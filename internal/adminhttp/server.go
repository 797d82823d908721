// Package adminhttp exposes the pipeline's operational surface: a liveness
// probe and the pipeline counters, over a chi router. It carries no
// pipeline-affecting routes; this is observability only.
package adminhttp

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/XavierBriggs/fortuna/internal/dispatcher"
	"github.com/XavierBriggs/fortuna/internal/orchestrator"
)

// StatsSource supplies the counters rendered at /stats.
type StatsSource interface {
	Snapshot() orchestrator.Stats
}

// QueueSource supplies the dispatcher's current depth and delivery counters.
type QueueSource interface {
	Len() int
	Stats() dispatcher.Stats
}

// NewRouter builds the admin HTTP router.
func NewRouter(stats StatsSource, queue QueueSource) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(5 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET"},
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		snap := stats.Snapshot()
		respondJSON(w, http.StatusOK, map[string]any{
			"received":          snap.Received,
			"parsed":            snap.Parsed,
			"discarded_parse":   snap.DiscardedParse,
			"validated":         snap.Validated,
			"sent":              snap.Sent,
			"dropped_by_reason": snap.DroppedByReason,
			"queue_depth":       queue.Len(),
			"dispatcher":        queue.Stats(),
		})
	})

	return r
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
