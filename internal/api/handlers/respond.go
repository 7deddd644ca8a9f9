package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/temiloluwa-oss/arkiva/internal/core"
	"github.com/temiloluwa-oss/arkiva/internal/services"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeLookupError maps the common service errors onto HTTP statuses.
// Foreign-owned resources read as 404 so the API does not leak existence.
func writeLookupError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrNotFound), errors.Is(err, services.ErrForbidden):
		writeError(w, http.StatusNotFound, "not found")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
