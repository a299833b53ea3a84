// Package status exposes process liveness and minimal cycle statistics
// over HTTP.
package status

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

const (
	readHeaderTimeout = 5 * time.Second
)

type Server struct {
	srv     *http.Server
	tracker *Tracker
	log     *slog.Logger
}

func NewServer(addr string, tracker *Tracker, log *slog.Logger) *Server {
	s := &Server{
		tracker: tracker,
		log:     log,
	}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	return s
}

func (s *Server) ListenAndServe() error {
	return s.srv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(s.tracker.snapshot()); err != nil {
		s.log.ErrorContext(r.Context(), "Failed to encode status response",
			"error", err)
	}
}
