package post

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jagroop-dev/wlf/handlers"
	"github.com/jagroop-dev/wlf/models"
	"github.com/jagroop-dev/wlf/rag"
)

type Streamer interface {
	Stream(ctx context.Context, question string) (rag.Reply, error)
	ImageBaseURL() string
}

func New(log *slog.Logger, streamer Streamer) Handler {
	return Handler{
		log:      log,
		streamer: streamer,
	}
}

type Handler struct {
	log      *slog.Logger
	streamer Streamer
}

func (h Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req models.ChatPostRequest
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

	reply, err := h.streamer.Stream(r.Context(), req.Text)
	if err != nil {
		handlers.WithError(h.log, w, "failed to start answer", err)
		return
	}
	for _, u := range reply.ImageURLs(h.streamer.ImageBaseURL()) {
		w.Header().Add(models.ChatImageHeader, u)
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Trailer", models.ChatAnswerImageTrailer)

	// The status is only committed once the first fragment arrives, so a
	// generation that fails immediately can still be reported as an error.
	var started bool
	var answer strings.Builder
	for fragment, err := range reply.Fragments {
		if err != nil {
			if !started {
				w.Header().Del(models.ChatImageHeader)
				w.Header().Del("Trailer")
				handlers.WithError(h.log, w, "failed to generate answer", err)
				return
			}
			h.log.Error("failed to generate answer", slog.Any("error", err))
			return
		}
		started = true
		answer.WriteString(fragment)
		if _, err := io.WriteString(w, fragment); err != nil {
			h.log.Warn("failed to write fragment", slog.Any("error", err))
			return
		}
		if flusher, canFlush := w.(http.Flusher); canFlush {
			flusher.Flush()
		}
	}
	// The fragments are streamed raw, so markers are resolved once the answer is complete.
	for _, name := range rag.ExtractImages(answer.String()) {
		w.Header().Add(models.ChatAnswerImageTrailer, rag.ImageURL(h.streamer.ImageBaseURL(), name))
	}
}
