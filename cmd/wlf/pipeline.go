package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jagroop-dev/wlf/index"
	"github.com/jagroop-dev/wlf/rag"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
)

// PipelineFlags configure the indexes and the prompt used to answer questions.
type PipelineFlags struct {
	ModelFlags `embed:""`

	TextIndex       string        `help:"The text index: a directory, gs://bucket/prefix or rqlite://host:port/name." env:"TEXT_INDEX" default:"Data/index/text"`
	ImageIndex      string        `help:"The image index, same forms as the text index. Leave empty to disable image retrieval." env:"IMAGE_INDEX" default:""`
	TextK           int           `help:"The number of text passages to retrieve." env:"TEXT_K" default:"3"`
	ImageK          int           `help:"The number of images to retrieve." env:"IMAGE_K" default:"2"`
	PromptFile      string        `help:"A prompt template with {{.context}} and {{.question}} placeholders." env:"PROMPT_FILE" default:""`
	RequestTimeout  time.Duration `help:"The maximum time to spend answering a question." env:"REQUEST_TIMEOUT" default:"60s"`
	GCPProject      string        `help:"The Google Cloud project used for gs:// indexes." env:"GOOGLE_CLOUD_PROJECT" default:""`
	CredentialsFile string        `help:"A Google Cloud service account key file." env:"GOOGLE_APPLICATION_CREDENTIALS" default:""`
}

func readFileOrDefault(filename, defaultContent string) (string, error) {
	if filename == "" {
		return defaultContent, nil
	}
	contents, err := os.ReadFile(filename)
	if err != nil {
		return "", fmt.Errorf("failed to read file %s: %w", filename, err)
	}
	return string(contents), nil
}

// newObjectStore opens Google Cloud Storage only when a source needs it.
// The returned close function is never nil.
func (f PipelineFlags) newObjectStore(ctx context.Context, sources ...index.Source) (index.ObjectStore, func(), error) {
	for _, src := range sources {
		if src.Kind != index.SourceObjectStore {
			continue
		}
		gcs, err := index.NewGCS(ctx, f.GCPProject, f.CredentialsFile)
		if err != nil {
			return nil, func() {}, err
		}
		return gcs, func() { gcs.Close() }, nil
	}
	return nil, func() {}, nil
}

// buildPipeline loads the indexes and wires the pipeline. A configuration
// failure is returned as a rag config error, and any failure to load an
// index as an index unavailable error.
func (f PipelineFlags) buildPipeline(ctx context.Context, log *slog.Logger, defaultTemplate, imageBaseURL string) (*rag.Pipeline, error) {
	llm, emb, err := f.models()
	if err != nil {
		return nil, err
	}
	return f.buildPipelineWith(ctx, log, llm, emb, defaultTemplate, imageBaseURL)
}

func (f PipelineFlags) buildPipelineWith(ctx context.Context, log *slog.Logger, llm llms.Model, emb embeddings.Embedder, defaultTemplate, imageBaseURL string) (*rag.Pipeline, error) {
	const op = "wlf: build pipeline"
	template, err := readFileOrDefault(f.PromptFile, defaultTemplate)
	if err != nil {
		return nil, rag.ConfigError(op, err)
	}
	assembler, err := rag.NewAssembler(template)
	if err != nil {
		return nil, err
	}
	if f.TextK <= 0 || f.ImageK <= 0 {
		return nil, rag.ConfigError(op, fmt.Errorf("text-k and image-k must be positive, got %d and %d", f.TextK, f.ImageK))
	}
	textSource, err := index.ParseSource(f.TextIndex)
	if err != nil {
		return nil, rag.ConfigError(op, fmt.Errorf("invalid text index: %w", err))
	}
	sources := []index.Source{textSource}
	var imageSource index.Source
	if f.ImageIndex != "" {
		if imageSource, err = index.ParseSource(f.ImageIndex); err != nil {
			return nil, rag.ConfigError(op, fmt.Errorf("invalid image index: %w", err))
		}
		sources = append(sources, imageSource)
	}

	objectStore, closeObjectStore, err := f.newObjectStore(ctx, sources...)
	if err != nil {
		return nil, rag.IndexUnavailableError(op, err)
	}
	// Indexes are staged eagerly, so the object store is only needed while loading.
	defer closeObjectStore()
	loader := index.Loader{Log: log, EmbeddingModel: f.EmbeddingModel, ObjectStore: objectStore}

	log.Info("loading text index", slog.String("source", textSource.String()))
	textStore, err := loader.Load(ctx, textSource, emb)
	if err != nil {
		return nil, rag.IndexUnavailableError(op, fmt.Errorf("failed to load text index: %w", err))
	}
	text, err := rag.NewRetriever("text", textStore, f.TextK)
	if err != nil {
		return nil, err
	}

	cfg := rag.Config{
		Text:         text,
		Assembler:    assembler,
		Generator:    rag.NewGenerator(llm, append(f.generatorOptions(), rag.WithTimeout(f.RequestTimeout))...),
		ImageBaseURL: imageBaseURL,
		Timeout:      f.RequestTimeout,
	}
	if f.ImageIndex != "" {
		log.Info("loading image index", slog.String("source", imageSource.String()))
		imageStore, err := loader.Load(ctx, imageSource, emb)
		if err != nil {
			return nil, rag.IndexUnavailableError(op, fmt.Errorf("failed to load image index: %w", err))
		}
		images, err := rag.NewRetriever("images", imageStore, f.ImageK)
		if err != nil {
			return nil, err
		}
		cfg.Images = &images
	}
	return rag.New(log, cfg)
}

// orUnavailable keeps the server up when buildPipeline could not load an
// index. The returned pipeline then answers every request as unavailable.
// Configuration errors are returned.
func orUnavailable(log *slog.Logger, p *rag.Pipeline, err error) (*rag.Pipeline, error) {
	if err == nil {
		return p, nil
	}
	if rag.KindOf(err) == rag.KindConfig {
		return nil, err
	}
	log.Error("guide index unavailable, answering with 503", slog.Any("error", err))
	return rag.Unavailable(log, err), nil
}
