package rest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"chairbook/backend/internal/service"
	"chairbook/backend/internal/store"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (h *handler) badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_request", Message: msg})
}

// writeError maps the engine's error taxonomy onto HTTP statuses.
func (h *handler) writeError(ctx context.Context, w http.ResponseWriter, op string, err error) {
	var vErr *service.ValidationError
	switch {
	case errors.As(err, &vErr):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_request", Message: vErr.Error()})
	case errors.Is(err, store.ErrInvalidRequest):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_request", Message: err.Error()})
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not_found", Message: "resource not found"})
	case errors.Is(err, store.ErrIdempotencyConflict):
		writeJSON(w, http.StatusConflict, errorBody{Error: "idempotency_conflict", Message: "This request key was already used for a different appointment."})
	case errors.Is(err, store.ErrConflict):
		writeJSON(w, http.StatusConflict, errorBody{Error: "conflict", Message: "The provider already has an appointment during that time. Pick a different slot."})
	case errors.Is(err, store.ErrOverlap):
		writeJSON(w, http.StatusConflict, errorBody{Error: "overlap", Message: "The window overlaps another active window on that day."})
	case errors.Is(err, store.ErrSlotUnavailable):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: "slot_unavailable", Message: "The provider is not working at that time."})
	case errors.Is(err, store.ErrInvalidTransition):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_transition", Message: "The appointment cannot move to that status."})
	case errors.Is(err, store.ErrTransient), errors.Is(err, context.DeadlineExceeded):
		h.log.WarnContext(ctx, "request failed transiently", slog.String("op", op), slog.Any("err", err))
		w.Header().Set("Retry-After", "1")
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "unavailable", Message: "Temporarily unavailable. Try again."})
	default:
		h.log.ErrorContext(ctx, "request failed", slog.String("op", op), slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal", Message: "internal error"})
	}
}
