package utils

import (
	"net/http"

	"github.com/goccy/go-json"
)

// WriteJSON writes the payload with the given status. Encode failures
// after the header is out can only be logged by the caller's deferred
// recovery, so a plain 500 is the fallback.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// WriteError writes a uniform error body.
func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, map[string]string{"error": message})
}
