// Package healthsrv serves the process liveness/readiness/metrics HTTP
// endpoints alongside the gRPC bridge.
package healthsrv

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/cuemby/durabletask-sidecar/internal/metrics"
	"github.com/cuemby/durabletask-sidecar/internal/signal"
)

// Server serves /health, /ready, and /metrics on a plain net/http mux.
type Server struct {
	traffic *signal.Signal
	mux     *http.ServeMux
	version string
}

// New constructs a Server. traffic reports worker-connectedness for /ready.
func New(traffic *signal.Signal, version string) *Server {
	mux := http.NewServeMux()
	s := &Server{traffic: traffic, mux: mux, version: version}

	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/ready", s.readyHandler)
	mux.Handle("/metrics", metrics.Handler())

	return s
}

// Start runs the HTTP server; it blocks until the server stops or errors.
func (s *Server) Start(addr string) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      s.mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return server.ListenAndServe()
}

// Handler returns the mux for embedding in another server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// HealthResponse is the /health body: a plain liveness signal.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version,omitempty"`
}

// ReadyResponse is the /ready body: readiness plus the checks considered.
type ReadyResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Version:   s.version,
	})
}

// readyHandler reports 200 when a worker is connected, 503 otherwise. This
// is the only readiness dimension the dispatcher core owns; the
// orchestration-service backend's own health is out of scope.
func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	checks := map[string]string{}
	status := "ready"
	code := http.StatusOK

	if s.traffic.IsSet() {
		checks["worker"] = "connected"
	} else {
		checks["worker"] = "not connected"
		status = "not ready"
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(ReadyResponse{
		Status:    status,
		Timestamp: time.Now(),
		Checks:    checks,
	})
}
