package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"saldo/internal/ledger"
	applog "saldo/internal/log"
)

// errorResponse is the uniform error body for the JSON API.
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("Failed to encode response", applog.FieldError, err)
	}
}

// writeError maps the ledger failure taxonomy onto HTTP statuses. Partial
// failure keeps its own code so clients can tell it from a plain store error.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrNotAuthenticated):
		writeJSON(w, http.StatusUnauthorized, errorResponse{
			Error: "not authenticated", Code: "not_authenticated",
		})
	case errors.Is(err, ledger.ErrValidation):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error: err.Error(), Code: "validation_failed",
		})
	case errors.Is(err, ledger.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{
			Error: err.Error(), Code: "not_found",
		})
	case errors.Is(err, ledger.ErrHasDependents):
		writeJSON(w, http.StatusConflict, errorResponse{
			Error: err.Error(), Code: "has_dependents",
		})
	case errors.Is(err, ledger.ErrPartialFailure):
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Error: "transaction recorded but balance update failed", Code: "partial_failure",
		})
	default:
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Error: "internal error", Code: "internal_error",
		})
	}
}

func writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg, Code: "bad_request"})
}
