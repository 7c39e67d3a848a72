package main

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"unicode"

	"github.com/jagroop-dev/wlf/index"
	"github.com/tmc/langchaingo/documentloaders"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/textsplitter"
	"github.com/tmc/langchaingo/vectorstores"
)

type IndexCommand struct {
	ModelFlags `embed:""`

	Kind            string `help:"The kind of index to build." enum:"text,images" default:"text"`
	Input           string `help:"The directory of guide files: markdown, text and PDF for text indexes, pictures for image indexes." required:""`
	Output          string `help:"Where to write the index: a directory, gs://bucket/prefix or rqlite://host:port/name." required:""`
	Name            string `help:"The name recorded in the index manifest." default:""`
	ChunkSize       int    `help:"The maximum size of a text passage." default:"1000"`
	ChunkOverlap    int    `help:"The overlap between consecutive text passages." default:"100"`
	BatchSize       int    `help:"The number of passages embedded per request." default:"32"`
	GCPProject      string `help:"The Google Cloud project used for gs:// outputs." env:"GOOGLE_CLOUD_PROJECT" default:""`
	CredentialsFile string `help:"A Google Cloud service account key file." env:"GOOGLE_APPLICATION_CREDENTIALS" default:""`
	DryRun          bool   `help:"Load and split the documents without embedding them." default:"false"`
	LogLevel        string `help:"The log level to use." env:"LOG_LEVEL" default:"info"`
}

var imageExtensions = []string{".jpeg", ".jpg", ".png", ".gif", ".bmp", ".webp"}

func (c IndexCommand) Run(ctx context.Context) (err error) {
	log := getLogger(c.LogLevel)
	dst, err := index.ParseSource(c.Output)
	if err != nil {
		return fmt.Errorf("invalid output: %w", err)
	}
	name := c.Name
	if name == "" {
		name = c.Kind
	}

	var docs []schema.Document
	switch c.Kind {
	case "text":
		docs, err = loadTextDocuments(ctx, c.Input, textsplitter.NewMarkdownTextSplitter(
			textsplitter.WithChunkSize(c.ChunkSize),
			textsplitter.WithChunkOverlap(c.ChunkOverlap)))
	case "images":
		docs, err = loadImageDocuments(c.Input)
	}
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return fmt.Errorf("no documents found in %s", c.Input)
	}
	log.Info("loaded documents", slog.String("kind", c.Kind), slog.String("input", c.Input), slog.Int("count", len(docs)))
	if c.DryRun {
		for _, doc := range docs {
			log.Info("document", slog.Any("source", doc.Metadata[index.MetadataSource]), slog.Int("length", len(doc.PageContent)))
		}
		return nil
	}

	_, emb, err := c.models()
	if err != nil {
		return err
	}
	switch dst.Kind {
	case index.SourceRqlite:
		dimension, err := index.MeasureDimension(ctx, emb)
		if err != nil {
			return err
		}
		store, err := index.OpenRqlite(ctx, dst.Rqlite, dst.Name, emb, dimension)
		if err != nil {
			return err
		}
		log.Info("opened rqlite index", slog.String("output", dst.String()), slog.Int("dimension", dimension))
		defer store.Close()
		if err = addInBatches(ctx, log, store, docs, c.BatchSize); err != nil {
			return err
		}
		log.Info("index written", slog.String("output", dst.String()))
		return nil
	case index.SourceLocal:
		return c.save(ctx, log, emb, dst.Path, name, docs)
	}

	dir, err := os.MkdirTemp("", "wlf-index-*")
	if err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(dir)
	if err = c.save(ctx, log, emb, dir, name, docs); err != nil {
		return err
	}
	gcs, err := index.NewGCS(ctx, c.GCPProject, c.CredentialsFile)
	if err != nil {
		return err
	}
	defer gcs.Close()
	n, err := index.Publish(ctx, gcs, dir, dst.Bucket, dst.Prefix)
	if err != nil {
		return err
	}
	log.Info("index published", slog.String("output", dst.String()), slog.Int("objects", n))
	return nil
}

func (c IndexCommand) save(ctx context.Context, log *slog.Logger, emb embeddings.Embedder, dir, name string, docs []schema.Document) error {
	mem, err := index.NewMemory(emb, nil)
	if err != nil {
		return err
	}
	if err = addInBatches(ctx, log, mem, docs, c.BatchSize); err != nil {
		return err
	}
	m := index.Manifest{
		Name:           name,
		EmbeddingModel: c.EmbeddingModel,
	}
	if err = index.Save(dir, m, mem.Records()); err != nil {
		return err
	}
	log.Info("index written", slog.String("dir", dir), slog.Int("count", len(mem.Records())), slog.Int("dimension", mem.Dimension()))
	return nil
}

func addInBatches(ctx context.Context, log *slog.Logger, store vectorstores.VectorStore, docs []schema.Document, size int) error {
	size = max(size, 1)
	var added int
	for batch := range slices.Chunk(docs, size) {
		if _, err := store.AddDocuments(ctx, batch); err != nil {
			return fmt.Errorf("failed to add documents: %w", err)
		}
		added += len(batch)
		log.Debug("embedded documents", slog.Int("added", added), slog.Int("total", len(docs)))
	}
	return nil
}

// loadTextDocuments splits every markdown, text and PDF file under dir into
// passages, tagged with the path of their file relative to dir.
func loadTextDocuments(ctx context.Context, dir string, splitter textsplitter.TextSplitter) (docs []schema.Document, err error) {
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".md" && ext != ".txt" && ext != ".pdf" {
			return nil
		}
		fileDocs, err := loadTextFile(ctx, path, ext, splitter)
		if err != nil {
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		var chunk int
		for _, doc := range fileDocs {
			if strings.TrimSpace(doc.PageContent) == "" {
				continue
			}
			if doc.Metadata == nil {
				doc.Metadata = map[string]any{}
			}
			doc.Metadata[index.MetadataSource] = filepath.ToSlash(rel)
			doc.Metadata[index.MetadataChunk] = strconv.Itoa(chunk)
			chunk++
			docs = append(docs, doc)
		}
		return nil
	})
	return docs, err
}

func loadTextFile(ctx context.Context, path, ext string, splitter textsplitter.TextSplitter) ([]schema.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if ext != ".pdf" {
		return documentloaders.NewText(f).LoadAndSplit(ctx, splitter)
	}
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	return documentloaders.NewPDF(f, info.Size()).LoadAndSplit(ctx, splitter)
}

// loadImageDocuments returns one document per picture under dir. The page
// content is the path of the picture, and the caption used to embed it is
// read from a .txt file next to it, or derived from the file name.
func loadImageDocuments(dir string) (docs []schema.Document, err error) {
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		ext := strings.ToLower(filepath.Ext(path))
		if !slices.Contains(imageExtensions, ext) {
			return nil
		}
		caption, err := imageCaption(path)
		if err != nil {
			return err
		}
		docs = append(docs, schema.Document{
			PageContent: filepath.ToSlash(path),
			Metadata: map[string]any{
				index.MetadataSource:  filepath.Base(path),
				index.MetadataCaption: caption,
			},
		})
		return nil
	})
	return docs, err
}

func imageCaption(path string) (string, error) {
	sidecar := strings.TrimSuffix(path, filepath.Ext(path)) + ".txt"
	b, err := os.ReadFile(sidecar)
	if err == nil && strings.TrimSpace(string(b)) != "" {
		return strings.TrimSpace(string(b)), nil
	}
	if err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to read caption %s: %w", sidecar, err)
	}
	return humanize(filepath.Base(path)), nil
}

// humanize turns a file name such as "pharmacy_safe-code.png" into
// "pharmacy safe code".
func humanize(name string) string {
	name = strings.TrimSuffix(name, filepath.Ext(name))
	return strings.Join(strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-' || r == '.' || unicode.IsSpace(r)
	}), " ")
}
