package handlers

import (
	"log/slog"
	"net/http"

	"github.com/a-h/respond"
	"github.com/jagroop-dev/wlf/models"
	"github.com/jagroop-dev/wlf/rag"
)

// StatusOf maps a pipeline error to the HTTP status returned to callers.
func StatusOf(err error) int {
	if rag.KindOf(err) == rag.KindIndexUnavailable {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// WithError logs err and writes its stable user message. The underlying
// cause is never sent to the caller.
func WithError(log *slog.Logger, w http.ResponseWriter, msg string, err error) {
	status := StatusOf(err)
	log.Error(msg, slog.Any("error", err), slog.String("kind", rag.KindOf(err).String()), slog.Int("status", status))
	respond.WithJSON(w, models.ErrorResponse{Detail: rag.KindOf(err).UserMessage()}, status)
}

// WithBadRequest writes a 400 with detail.
func WithBadRequest(w http.ResponseWriter, detail string) {
	respond.WithJSON(w, models.ErrorResponse{Detail: detail}, http.StatusBadRequest)
}
