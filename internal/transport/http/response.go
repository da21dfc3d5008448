package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Scofield321/cipherford/internal/domain"
)

// JSONResponse is the envelope every REST endpoint answers with.
type JSONResponse struct {
	Error   bool   `json:"error"`
	Data    any    `json:"data"`
	Message string `json:"message"`
	Kind    string `json:"kind,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any, msg string) {
	writeEnvelope(w, status, JSONResponse{Data: data, Message: msg})
}

func writeEnvelope(w http.ResponseWriter, status int, body JSONResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps a domain error onto its HTTP status. Persistence failures
// are logged and reported without driver details.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error("request failed", "error", err)
	}
	writeEnvelope(w, status, JSONResponse{
		Error:   true,
		Message: domain.Message(err),
		Kind:    domain.KindOf(err),
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
