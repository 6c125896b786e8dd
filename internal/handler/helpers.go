package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/lukasschreiber/wimc/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps an error to its HTTP status. Internal errors are logged and
// masked so database details never reach the client.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status := apperr.Status(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logger.Error("request failed", "error", err)
		msg = "internal error"
	}
	writeJSON(w, status, map[string]string{"error": msg})
}
