package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	askpost "github.com/jagroop-dev/wlf/handlers/ask/post"
	"github.com/jagroop-dev/wlf/index"
	"github.com/jagroop-dev/wlf/models"
	"github.com/jagroop-dev/wlf/rag"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"
)

type countingLLM struct {
	calls atomic.Int32
}

func (m *countingLLM) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.calls.Add(1)
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: "The safe code is 30-23-04."}},
	}, nil
}

func (m *countingLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

type constEmbedder struct{}

func (constEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{1, 0.5}
	}
	return vectors, nil
}

func (constEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0.5}, nil
}

func testPipelineFlags(textIndex string) PipelineFlags {
	return PipelineFlags{
		ModelFlags: ModelFlags{EmbeddingModel: "test-embedder"},
		TextIndex:  textIndex,
		TextK:      3,
		ImageK:     2,
	}
}

func saveTestIndex(t *testing.T, dir, embeddingModel string) {
	t.Helper()
	m, err := index.NewMemory(constEmbedder{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err = m.AddDocuments(context.Background(), []schema.Document{
		{PageContent: "The safe code in the pharmacy is 30-23-04."},
	}); err != nil {
		t.Fatal(err)
	}
	if err = index.Save(dir, index.Manifest{Name: "text", EmbeddingModel: embeddingModel}, m.Records()); err != nil {
		t.Fatal(err)
	}
}

func ask(t *testing.T, h http.Handler, question string) *http.Response {
	t.Helper()
	body, err := json.Marshal(models.AskPostRequest{Text: question})
	if err != nil {
		t.Fatal(err)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(string(body))))
	return w.Result()
}

func TestMissingIndexAnswersUnavailable(t *testing.T) {
	ctx := context.Background()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	llm := &countingLLM{}

	f := testPipelineFlags(filepath.Join(t.TempDir(), "missing"))
	p, err := f.buildPipelineWith(ctx, log, llm, constEmbedder{}, rag.TextGuidelines, "")
	if kind := rag.KindOf(err); kind != rag.KindIndexUnavailable {
		t.Fatalf("expected KindIndexUnavailable, got %v (%v)", kind, err)
	}
	p, err = orUnavailable(log, p, err)
	if err != nil {
		t.Fatalf("expected the server to start, got %v", err)
	}

	for _, question := range []string{"What is the safe code?", "Where is the pistol?"} {
		res := ask(t, askpost.New(log, p), question)
		if res.StatusCode != http.StatusServiceUnavailable {
			t.Errorf("expected status %d, got %d", http.StatusServiceUnavailable, res.StatusCode)
		}
		var actual models.ErrorResponse
		if err := json.NewDecoder(res.Body).Decode(&actual); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if diff := cmp.Diff(models.ErrorResponse{Detail: rag.UnavailableMessage}, actual); diff != "" {
			t.Error(diff)
		}
	}
	if n := llm.calls.Load(); n != 0 {
		t.Errorf("expected no model calls, got %d", n)
	}
}

func TestIncompatibleIndexAnswersUnavailable(t *testing.T) {
	ctx := context.Background()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	llm := &countingLLM{}

	dir := t.TempDir()
	saveTestIndex(t, dir, "another-embedder")

	_, err := testPipelineFlags(dir).buildPipelineWith(ctx, log, llm, constEmbedder{}, rag.TextGuidelines, "")
	if kind := rag.KindOf(err); kind != rag.KindIndexUnavailable {
		t.Fatalf("expected KindIndexUnavailable, got %v (%v)", kind, err)
	}
	if n := llm.calls.Load(); n != 0 {
		t.Errorf("expected no model calls, got %d", n)
	}
}

func TestLoadedIndexAnswers(t *testing.T) {
	ctx := context.Background()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	llm := &countingLLM{}

	dir := t.TempDir()
	saveTestIndex(t, dir, "test-embedder")

	p, err := testPipelineFlags(dir).buildPipelineWith(ctx, log, llm, constEmbedder{}, rag.TextGuidelines, "")
	if p, err = orUnavailable(log, p, err); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res := ask(t, askpost.New(log, p), "What is the safe code?")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, res.StatusCode)
	}
	var actual models.AskPostResponse
	if err := json.NewDecoder(res.Body).Decode(&actual); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	expected := models.AskPostResponse{Answer: "The safe code is 30-23-04.", Images: []string{}}
	if diff := cmp.Diff(expected, actual); diff != "" {
		t.Error(diff)
	}
	if n := llm.calls.Load(); n != 1 {
		t.Errorf("expected 1 model call, got %d", n)
	}
}

func TestConfigErrorsAreFatal(t *testing.T) {
	ctx := context.Background()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	dir := t.TempDir()
	saveTestIndex(t, dir, "test-embedder")
	badTemplate := filepath.Join(t.TempDir(), "prompt.txt")
	writeFile(t, badTemplate, "Answer {{.question}} without any context.")

	tests := []struct {
		name   string
		modify func(f *PipelineFlags)
	}{
		{
			name:   "templates without a context placeholder",
			modify: func(f *PipelineFlags) { f.PromptFile = badTemplate },
		},
		{
			name:   "missing template files",
			modify: func(f *PipelineFlags) { f.PromptFile = filepath.Join(dir, "missing.txt") },
		},
		{
			name:   "non-positive k",
			modify: func(f *PipelineFlags) { f.TextK = 0 },
		},
		{
			name:   "unknown index schemes",
			modify: func(f *PipelineFlags) { f.TextIndex = "s3://bucket/prefix" },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			llm := &countingLLM{}
			f := testPipelineFlags(dir)
			tt.modify(&f)
			p, err := f.buildPipelineWith(ctx, log, llm, constEmbedder{}, rag.TextGuidelines, "")
			if kind := rag.KindOf(err); kind != rag.KindConfig {
				t.Fatalf("expected KindConfig, got %v (%v)", kind, err)
			}
			if _, err = orUnavailable(log, p, err); err == nil {
				t.Error("expected the configuration error to stop the server")
			}
			if n := llm.calls.Load(); n != 0 {
				t.Errorf("expected no model calls, got %d", n)
			}
		})
	}
}
