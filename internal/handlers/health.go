package handlers

import (
	"encoding/json"
	"net/http"
)

// Health reports liveness and whether the database answers
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	if err := h.db.PingContext(r.Context()); err != nil {
		status, code = "unavailable", http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":   status,
		"scanning": h.scan.Running(),
	})
}
