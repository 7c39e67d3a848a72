package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/jagroop-dev/wlf/rag"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"
)

type streamingLLM struct {
	chunks []string
}

func (l streamingLLM) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	var opts llms.CallOptions
	for _, o := range options {
		o(&opts)
	}
	for _, c := range l.chunks {
		if err := opts.StreamingFunc(ctx, []byte(c)); err != nil {
			return nil, err
		}
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: strings.Join(l.chunks, "")}}}, nil
}

func (l streamingLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, l, prompt, options...)
}

type staticStore []schema.Document

func (s staticStore) AddDocuments(ctx context.Context, docs []schema.Document, options ...vectorstores.Option) ([]string, error) {
	return nil, errors.New("read only")
}

func (s staticStore) SimilaritySearch(ctx context.Context, query string, numDocuments int, options ...vectorstores.Option) ([]schema.Document, error) {
	return s, nil
}

func newPipeline(t *testing.T, log *slog.Logger, chunks ...string) *rag.Pipeline {
	t.Helper()
	text, err := rag.NewRetriever("text", staticStore{{PageContent: "The safe code is 30-23-04."}}, 3)
	if err != nil {
		t.Fatal(err)
	}
	images, err := rag.NewRetriever("images", staticStore{{PageContent: "Data/Images/safe.png"}}, 2)
	if err != nil {
		t.Fatal(err)
	}
	assembler, err := rag.NewAssembler(rag.MultimodalGuidelines)
	if err != nil {
		t.Fatal(err)
	}
	p, err := rag.New(log, rag.Config{
		Text:         text,
		Images:       &images,
		Assembler:    assembler,
		Generator:    rag.NewGenerator(streamingLLM{chunks: chunks}),
		ImageBaseURL: "http://localhost:8000/images/",
		ReadFile: func(name string) ([]byte, error) {
			return []byte("png"), nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	return p
}

type recorder struct {
	m      sync.Mutex
	events []Event
}

func (r *recorder) emit(e Event) {
	r.m.Lock()
	defer r.m.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) types() (types []EventType) {
	for _, e := range r.events {
		types = append(types, e.Type)
	}
	return types
}

func TestSession(t *testing.T) {
	ctx := context.Background()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("questions before start are not answered", func(t *testing.T) {
		s := New(log, func(ctx context.Context) (*rag.Pipeline, error) {
			return newPipeline(t, log, "x"), nil
		})
		var r recorder
		s.Send(ctx, "q", r.emit)
		if diff := cmp.Diff([]Event{{Type: EventNotice, Text: NotReady}}, r.events); diff != "" {
			t.Error(diff)
		}
	})
	t.Run("start greets the user once", func(t *testing.T) {
		var loads int
		s := New(log, func(ctx context.Context) (*rag.Pipeline, error) {
			loads++
			return newPipeline(t, log, "x"), nil
		})
		var r recorder
		if err := s.Start(ctx, r.emit); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := s.Start(ctx, r.emit); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if loads != 1 {
			t.Errorf("expected 1 load, got %d", loads)
		}
		if diff := cmp.Diff([]EventType{EventWelcome, EventDisclaimer}, r.types()); diff != "" {
			t.Error(diff)
		}
		if !s.Ready() {
			t.Error("expected the session to be ready")
		}
	})
	t.Run("answers are streamed then processed", func(t *testing.T) {
		s := New(log, func(ctx context.Context) (*rag.Pipeline, error) {
			return newPipeline(t, log, "The code is 30-23-04. ", "(Image: Data/Images/pharmacy.png)"), nil
		})
		if err := s.Start(ctx, func(Event) {}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var r recorder
		s.Send(ctx, "What is the pharmacy safe code?", r.emit)

		expected := []Event{
			{Type: EventNotice, Text: Processing},
			{Type: EventImages, Images: []string{"http://localhost:8000/images/safe.png"}},
			{Type: EventToken, Text: "The code is 30-23-04. "},
			{Type: EventToken, Text: "(Image: Data/Images/pharmacy.png)"},
			{
				Type: EventAnswer,
				Text: "The code is 30-23-04.",
				Images: []string{
					"http://localhost:8000/images/safe.png",
					"http://localhost:8000/images/pharmacy.png",
				},
			},
		}
		if diff := cmp.Diff(expected, r.events); diff != "" {
			t.Error(diff)
		}
	})
	t.Run("load failures are reported and every question fails", func(t *testing.T) {
		s := New(log, func(ctx context.Context) (*rag.Pipeline, error) {
			return nil, errors.New("index directory not found")
		})
		var r recorder
		if err := s.Start(ctx, r.emit); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		s.Send(ctx, "q", r.emit)
		if diff := cmp.Diff([]EventType{EventError, EventNotice, EventError}, r.types()); diff != "" {
			t.Error(diff)
		}
		if !strings.HasPrefix(r.events[2].Text, "❌") || !strings.Contains(r.events[2].Text, rag.UnavailableMessage) {
			t.Errorf("unexpected error text %q", r.events[2].Text)
		}
	})
	t.Run("configuration errors are returned", func(t *testing.T) {
		s := New(log, func(ctx context.Context) (*rag.Pipeline, error) {
			return nil, rag.ConfigError("load", errors.New("HUGGINGFACEHUB_API_TOKEN is not set"))
		})
		var r recorder
		if err := s.Start(ctx, r.emit); rag.KindOf(err) != rag.KindConfig {
			t.Errorf("expected a config error, got %v", err)
		}
		if s.Ready() {
			t.Error("expected the session not to be ready")
		}
	})
}
