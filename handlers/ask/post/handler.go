package post

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/a-h/respond"
	"github.com/jagroop-dev/wlf/handlers"
	"github.com/jagroop-dev/wlf/models"
	"github.com/jagroop-dev/wlf/rag"
)

type Asker interface {
	Ask(ctx context.Context, question string) (rag.Answer, error)
}

func New(log *slog.Logger, asker Asker) Handler {
	return Handler{
		log:   log,
		asker: asker,
	}
}

type Handler struct {
	log   *slog.Logger
	asker Asker
}

func (h Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req models.AskPostRequest
	err := json.NewDecoder(r.Body).Decode(&req)
	if err != nil {
		h.log.Error("failed to decode body", slog.Any("error", err))
		handlers.WithBadRequest(w, "failed to decode body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		handlers.WithBadRequest(w, "text is required")
		return
	}

	answer, err := h.asker.Ask(r.Context(), req.Text)
	if err != nil {
		handlers.WithError(h.log, w, "failed to answer question", err)
		return
	}
	h.log.Info("answered question", slog.Int("answerLength", len(answer.Text)), slog.Any("images", answer.Images))

	respond.WithJSON(w, models.AskPostResponse{
		Answer: answer.Text,
		Images: answer.Images,
	}, http.StatusOK)
}
