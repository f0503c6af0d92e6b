// Package server exposes the small HTTP surface of the snapshotter: a
// liveness/readiness probe and a service descriptor.
package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/hitcastor/snapshotter/internal/ledger"
)

// LedgerReader is the slice of the ledger the server needs.
type LedgerReader interface {
	Latest(ctx context.Context, region string) (*ledger.Snapshot, error)
	Count(ctx context.Context) (int, error)
}

type Server struct {
	ledger     LedgerReader
	region     string
	version    string
	httpServer *http.Server
}

func New(l LedgerReader, region, version, port string) *Server {
	if version == "" {
		version = "dev"
	}
	s := &Server{ledger: l, region: region, version: version}

	r := mux.NewRouter()
	r.Use(jsonMiddleware)
	r.HandleFunc("/", s.handleRoot).Methods("GET")
	r.HandleFunc("/health", s.handleHealth).Methods("GET")

	s.httpServer = &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) Start() error {
	log.Printf("http server listening on %s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the configured router. Used by tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "hitcastor-snapshotter",
		"version": s.version,
		"region":  s.region,
	})
}

// handleHealth reports ok only when the ledger is reachable. The latest
// committed snapshot for the configured region is included so operators can
// see staleness at a glance.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	total, err := s.ledger.Count(ctx)
	if err != nil {
		log.Printf("health check: ledger unreachable: %v", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"error":  "ledger unreachable",
		})
		return
	}

	resp := map[string]any{
		"status":    "ok",
		"service":   "hitcastor-snapshotter",
		"version":   s.version,
		"region":    s.region,
		"snapshots": total,
	}
	if latest, err := s.ledger.Latest(ctx, s.region); err != nil {
		log.Printf("health check: latest lookup failed: %v", err)
	} else if latest != nil {
		entry := map[string]any{
			"dateUtc":    latest.DateUTC,
			"csvSha256":  latest.CSVSHA256,
			"jsonSha256": latest.JSONSHA256,
			"createdAt":  latest.CreatedAt.UTC().Format(time.RFC3339),
		}
		if latest.IPFSCID != "" {
			entry["ipfsCid"] = latest.IPFSCID
		}
		resp["latest"] = entry
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("error writing response: %v", err)
	}
}
