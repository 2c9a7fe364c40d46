package server

import (
	"encoding/json"
	"net/http"
)

// --- HTTP Handlers ---

// healthHandler reports liveness for load balancers and compose checks.
// Returns JSON response: {"status":"ok"}
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]string{"status": "ok"}); err != nil {
		logg.Error("http/health", "Failed to encode response", err)
	}
}
