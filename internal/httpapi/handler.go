// Package httpapi serves the template provider's admin surface: a small
// JSON status endpoint and a Prometheus scrape endpoint. It never touches
// session or template state directly; it only reads the small thread-safe
// snapshot internal/tp.Server exposes.
package httpapi

import (
	"net/http"
	"time"

	gojson "github.com/goccy/go-json"
	"github.com/gorilla/mux"
)

// StatusProvider is the thread-safe slice of dispatch-loop state the
// status endpoint reports. internal/tp.Server satisfies this implicitly.
type StatusProvider interface {
	SessionCount() int
	CachedTemplateCount() int
	BestBlockHash() string
}

// Status is the JSON shape served at /status.
type Status struct {
	GeneratedAt     time.Time `json:"generated_at"`
	SessionCount    int       `json:"session_count"`
	CachedTemplates int       `json:"cached_templates"`
	BestBlockHash   string    `json:"best_block_hash"`
}

// Server is the admin HTTP surface: a gorilla/mux router carrying the
// status endpoint plus whatever metrics handler the caller wires in.
type Server struct {
	router *mux.Router
}

// New builds the admin HTTP surface. metricsHandler is typically
// (*metrics.PromRecorder).Handler(); pass nil to omit /metrics (e.g. when
// running with the no-op recorder).
func New(provider StatusProvider, metricsHandler http.Handler) *Server {
	s := &Server{router: mux.NewRouter()}
	s.router.HandleFunc("/status", s.handleStatus(provider)).Methods(http.MethodGet)
	if metricsHandler != nil {
		s.router.Handle("/metrics", metricsHandler).Methods(http.MethodGet)
	}
	return s
}

// Handler returns the http.Handler to pass to http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleStatus(provider StatusProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := Status{
			GeneratedAt:     time.Now().UTC(),
			SessionCount:    provider.SessionCount(),
			CachedTemplates: provider.CachedTemplateCount(),
			BestBlockHash:   provider.BestBlockHash(),
		}
		w.Header().Set("Content-Type", "application/json")
		if err := gojson.NewEncoder(w).Encode(status); err != nil {
			http.Error(w, "encode error", http.StatusInternalServerError)
		}
	}
}
