package post

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/a-h/respond"
	"github.com/jagroop-dev/wlf/handlers"
	"github.com/jagroop-dev/wlf/index"
	"github.com/jagroop-dev/wlf/models"
	"github.com/tmc/langchaingo/schema"
)

type Retriever interface {
	Context(ctx context.Context, question string) ([]schema.Document, error)
}

func New(log *slog.Logger, retriever Retriever) Handler {
	return Handler{
		log:       log,
		retriever: retriever,
	}
}

type Handler struct {
	log       *slog.Logger
	retriever Retriever
}

func (h Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req models.ContextPostRequest
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

	docs, err := h.retriever.Context(r.Context(), req.Text)
	if err != nil {
		handlers.WithError(h.log, w, "failed to retrieve context", err)
		return
	}

	cpr := models.ContextPostResponse{
		Results: make([]models.ContextDocument, len(docs)),
	}
	for i, doc := range docs {
		source, _ := doc.Metadata[index.MetadataSource].(string)
		cpr.Results[i] = models.ContextDocument{
			Text:   doc.PageContent,
			Score:  doc.Score,
			Source: source,
		}
	}

	respond.WithJSON(w, cpr, http.StatusOK)
}
