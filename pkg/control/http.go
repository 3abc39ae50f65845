package control

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/cuemby/shadowd/pkg/metrics"
)

// Server provides shadowd's HTTP operational endpoints.
type Server struct {
	mux     *http.ServeMux
	version string
	checks  map[string]func() error
}

// NewServer constructs a Server. checks is consulted on every /readyz
// call; a non-nil error from any entry makes the overall response
// "not ready".
func NewServer(version string, checks map[string]func() error) *Server {
	mux := http.NewServeMux()
	s := &Server{mux: mux, version: version, checks: checks}

	mux.HandleFunc("/healthz", s.healthzHandler)
	mux.HandleFunc("/readyz", s.readyzHandler)
	mux.Handle("/metrics", metrics.Handler())

	return s
}

// Handler returns the HTTP handler, for embedding in another server or
// for tests that want to drive requests without a listening socket.
func (s *Server) Handler() http.Handler { return s.mux }

// Start runs the HTTP server on addr until it errors or is shut down.
func (s *Server) Start(addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return srv.ListenAndServe()
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version,omitempty"`
}

type readyResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
}

func (s *Server) healthzHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "healthy", Timestamp: time.Now(), Version: s.version})
}

func (s *Server) readyzHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	checks := make(map[string]string, len(s.checks))
	ready := true
	for name, check := range s.checks {
		if err := check(); err != nil {
			checks[name] = err.Error()
			ready = false
			continue
		}
		checks[name] = "ok"
	}

	status := "ready"
	code := http.StatusOK
	if !ready {
		status = "not ready"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, readyResponse{Status: status, Timestamp: time.Now(), Checks: checks})
}

func writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
