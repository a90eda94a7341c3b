package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/starford/auralis/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string `json:"error" validate:"required"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// writeError maps a domain error to its HTTP status.
func writeError(w http.ResponseWriter, op string, err error) {
	var (
		loadErr   *apperr.LoadError
		remoteErr *apperr.RemoteError
	)
	switch {
	case errors.Is(err, apperr.ErrValidation):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, apperr.ErrBusy):
		writeJSON(w, http.StatusConflict, errorBody("summarize already in progress"))
	case errors.Is(err, apperr.ErrConflict):
		writeJSON(w, http.StatusConflict, errorBody("note changed"))
	case errors.As(err, &loadErr):
		slog.Error(op+" failed", slog.String("owner", loadErr.OwnerID), slog.String("error", err.Error()))
		writeJSON(w, http.StatusServiceUnavailable, errorBody("notes unavailable"))
	case errors.As(err, &remoteErr):
		slog.Error(op+" failed", slog.String("service", remoteErr.Service), slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadGateway, errorBody(remoteErr.Service+" unavailable"))
	default:
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}
