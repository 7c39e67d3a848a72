package rag

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tmc/langchaingo/schema"
)

type Config struct {
	Text      Retriever
	Images    *Retriever
	Assembler Assembler
	Generator Generator
	// ImageBaseURL is prefixed to image file names to build servable URLs.
	ImageBaseURL string
	// Timeout bounds retrieval and blocking generation of a single request.
	Timeout time.Duration
	// ReadFile loads attached images, os.ReadFile if nil.
	ReadFile func(name string) ([]byte, error)
}

// Pipeline is the read-only application context shared by every request.
type Pipeline struct {
	log          *slog.Logger
	text         Retriever
	images       *Retriever
	assembler    Assembler
	generator    Generator
	imageBaseURL string
	timeout      time.Duration
	readFile     func(name string) ([]byte, error)
	unavailable  error
}

func New(log *slog.Logger, cfg Config) (*Pipeline, error) {
	if cfg.Text.k == 0 {
		return nil, ConfigError("rag: new pipeline", fmt.Errorf("text retriever is required"))
	}
	if cfg.Assembler.template.Template == "" {
		return nil, ConfigError("rag: new pipeline", fmt.Errorf("assembler is required"))
	}
	if cfg.Generator.llm == nil {
		return nil, ConfigError("rag: new pipeline", fmt.Errorf("generator is required"))
	}
	p := &Pipeline{
		log:          log,
		text:         cfg.Text,
		images:       cfg.Images,
		assembler:    cfg.Assembler,
		generator:    cfg.Generator,
		imageBaseURL: NormalizeBaseURL(cfg.ImageBaseURL),
		timeout:      cfg.Timeout,
		readFile:     cfg.ReadFile,
	}
	if p.readFile == nil {
		p.readFile = os.ReadFile
	}
	return p, nil
}

// Unavailable returns a pipeline that fails every request with
// KindIndexUnavailable without contacting any model.
func Unavailable(log *slog.Logger, cause error) *Pipeline {
	return &Pipeline{
		log:         log,
		unavailable: IndexUnavailableError("rag: load index", cause),
	}
}

// NormalizeBaseURL makes sure file names appended to u start a new path segment.
func NormalizeBaseURL(u string) string {
	if u == "" || strings.HasSuffix(u, "/") {
		return u
	}
	return u + "/"
}

func (p *Pipeline) Available() error {
	return p.unavailable
}

func (p *Pipeline) ImageBaseURL() string {
	return p.imageBaseURL
}

func (p *Pipeline) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout > 0 {
		return context.WithTimeout(ctx, p.timeout)
	}
	return context.WithCancel(ctx)
}

// Context returns the text passages retrieved for question.
func (p *Pipeline) Context(ctx context.Context, question string) ([]schema.Document, error) {
	if p.unavailable != nil {
		return nil, p.unavailable
	}
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()
	return p.text.Retrieve(ctx, question)
}

// Ask answers question from the text index with a single blocking model call.
func (p *Pipeline) Ask(ctx context.Context, question string) (a Answer, err error) {
	if p.unavailable != nil {
		return a, p.unavailable
	}
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	docs, err := p.text.Retrieve(ctx, question)
	if err != nil {
		return a, err
	}
	p.log.Debug("retrieved context", slog.String("index", p.text.Name()), slog.Int("docs", len(docs)))

	prompt, err := p.assembler.Assemble(question, pageContents(docs))
	if err != nil {
		return a, GenerationError("rag: ask", err)
	}
	raw, err := p.generator.Generate(ctx, prompt, nil)
	if err != nil {
		return a, err
	}
	if strings.TrimSpace(raw) == "" {
		raw = NoInformation
	}
	return Process(raw, p.imageBaseURL), nil
}

// Reply is a streamed answer. Fragments must be consumed at most once.
type Reply struct {
	Images    []Image
	Fragments iter.Seq2[string, error]
}

// ImageURLs returns the servable URLs of the attached images.
func (r Reply) ImageURLs(baseURL string) []string {
	urls := make([]string, len(r.Images))
	for i, img := range r.Images {
		urls[i] = ImageURL(baseURL, img.Name)
	}
	return urls
}

// Stream retrieves text and image context for question and returns the
// answer as a lazy sequence of fragments, with the images that were
// attached to the prompt.
func (p *Pipeline) Stream(ctx context.Context, question string) (r Reply, err error) {
	if p.unavailable != nil {
		return r, p.unavailable
	}
	rctx, cancel := p.withTimeout(ctx)
	defer cancel()

	docs, err := p.text.Retrieve(rctx, question)
	if err != nil {
		return r, err
	}
	if p.images != nil {
		imageDocs, err := p.images.Retrieve(rctx, question)
		if err != nil {
			return r, err
		}
		r.Images = p.attach(imageDocs)
	}

	prompt, err := p.assembler.Assemble(question, pageContents(docs))
	if err != nil {
		return r, GenerationError("rag: stream", err)
	}
	r.Fragments = p.generator.Stream(ctx, prompt, r.Images)
	return r, nil
}

// attach loads the image documents that exist on disk, skipping the rest.
func (p *Pipeline) attach(docs []schema.Document) (images []Image) {
	for _, doc := range docs {
		path := strings.TrimSpace(doc.PageContent)
		data, err := p.readFile(path)
		if err != nil {
			p.log.Warn("skipping image", slog.String("path", path), slog.Any("error", err))
			continue
		}
		images = append(images, Image{
			Name:     filepath.Base(path),
			Path:     path,
			MIMEType: mimeType(path),
			Data:     data,
		})
	}
	return images
}

func mimeType(path string) string {
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); t != "" {
		return t
	}
	return "application/octet-stream"
}
