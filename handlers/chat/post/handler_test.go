package post

import (
	"context"
	"errors"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/jagroop-dev/wlf/models"
	"github.com/jagroop-dev/wlf/rag"
)

type fakeStreamer struct {
	images    []rag.Image
	fragments []string
	err       error
	streamErr error
}

func (s fakeStreamer) ImageBaseURL() string {
	return "http://localhost:8000/images/"
}

func (s fakeStreamer) Stream(ctx context.Context, question string) (rag.Reply, error) {
	if s.streamErr != nil {
		return rag.Reply{}, s.streamErr
	}
	var seq iter.Seq2[string, error] = func(yield func(string, error) bool) {
		for _, f := range s.fragments {
			if !yield(f, nil) {
				return
			}
		}
		if s.err != nil {
			yield("", s.err)
		}
	}
	return rag.Reply{Images: s.images, Fragments: seq}, nil
}

func TestHandler(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("fragments are streamed with image headers", func(t *testing.T) {
		h := New(log, fakeStreamer{
			images:    []rag.Image{{Name: "safe.png"}, {Name: "map.jpg"}},
			fragments: []string{"The code ", "is 30-23-04."},
		})
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"text": "safe code"}`))
		h.ServeHTTP(w, r)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
		}
		if w.Body.String() != "The code is 30-23-04." {
			t.Errorf("unexpected body %q", w.Body.String())
		}
		expected := []string{"http://localhost:8000/images/safe.png", "http://localhost:8000/images/map.jpg"}
		if diff := cmp.Diff(expected, w.Header().Values(models.ChatImageHeader)); diff != "" {
			t.Error(diff)
		}
		if !w.Flushed {
			t.Error("expected fragments to be flushed")
		}
	})
	t.Run("images referenced in the answer are sent as trailers", func(t *testing.T) {
		h := New(log, fakeStreamer{
			images:    []rag.Image{{Name: "safe.png"}},
			fragments: []string{"The code is on the note. (Image: Data/Im", "ages/note(1).jpg) Image: safe.png"},
		})
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"text": "safe code"}`))
		h.ServeHTTP(w, r)

		res := w.Result()
		if res.StatusCode != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, res.StatusCode)
		}
		expected := []string{"http://localhost:8000/images/note%281%29.jpg", "http://localhost:8000/images/safe.png"}
		if diff := cmp.Diff(expected, res.Trailer.Values(models.ChatAnswerImageTrailer)); diff != "" {
			t.Error(diff)
		}
	})
	t.Run("answers without markers send no trailer values", func(t *testing.T) {
		h := New(log, fakeStreamer{fragments: []string{"No images here."}})
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"text": "q"}`))
		h.ServeHTTP(w, r)
		if values := w.Result().Trailer.Values(models.ChatAnswerImageTrailer); len(values) != 0 {
			t.Errorf("unexpected trailer values %v", values)
		}
	})
	t.Run("failures before the first fragment return an error status", func(t *testing.T) {
		h := New(log, fakeStreamer{err: rag.GenerationError("generate", errors.New("overloaded"))})
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"text": "q"}`))
		h.ServeHTTP(w, r)
		if w.Code != http.StatusInternalServerError {
			t.Errorf("expected status %d, got %d", http.StatusInternalServerError, w.Code)
		}
	})
	t.Run("an unavailable index returns 503", func(t *testing.T) {
		h := New(log, fakeStreamer{streamErr: rag.IndexUnavailableError("load", errors.New("missing"))})
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"text": "q"}`))
		h.ServeHTTP(w, r)
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("expected status %d, got %d", http.StatusServiceUnavailable, w.Code)
		}
		if !strings.Contains(w.Body.String(), rag.UnavailableMessage) {
			t.Errorf("unexpected body %q", w.Body.String())
		}
	})
}
