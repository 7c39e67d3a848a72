package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/vectorstores"
)

var ErrNoObjectStore = errors.New("index: no object store configured")

// ErrIncompatible is returned when an index was built by a different
// embedding model than the one used to query it.
var ErrIncompatible = errors.New("index: incompatible embedder")

// dimensionQuery is embedded once at load to measure the embedder.
const dimensionQuery = "dimension check"

// MeasureDimension returns the size of the vectors produced by embedder.
func MeasureDimension(ctx context.Context, embedder embeddings.Embedder) (int, error) {
	v, err := embedder.EmbedQuery(ctx, dimensionQuery)
	if err != nil {
		return 0, fmt.Errorf("index: failed to embed dimension check: %w", err)
	}
	if len(v) == 0 {
		return 0, fmt.Errorf("%w: embedder returned an empty vector", ErrIncompatible)
	}
	return len(v), nil
}

type Loader struct {
	Log *slog.Logger
	// EmbeddingModel is the model queries are embedded with. A local index
	// built by another model is rejected. Empty skips the check.
	EmbeddingModel string
	// ObjectStore is required to load object store sources.
	ObjectStore ObjectStore
	// TempDir is where object store sources are staged, os.TempDir if empty.
	TempDir string
}

// Load opens the index described by src. The returned store embeds queries
// with embedder.
func (l Loader) Load(ctx context.Context, src Source, embedder embeddings.Embedder) (vectorstores.VectorStore, error) {
	if embedder == nil {
		return nil, ErrNoEmbedder
	}
	if l.Log == nil {
		l.Log = slog.Default()
	}
	dimension, err := MeasureDimension(ctx, embedder)
	if err != nil {
		return nil, err
	}
	switch src.Kind {
	case SourceLocal:
		return l.loadDir(src.Path, embedder, dimension)
	case SourceObjectStore:
		return l.loadObjectStore(ctx, src, embedder, dimension)
	case SourceRqlite:
		return l.loadRqlite(ctx, src, embedder, dimension)
	}
	return nil, fmt.Errorf("index: unknown source kind %d", src.Kind)
}

func (l Loader) loadDir(dir string, embedder embeddings.Embedder, dimension int) (vectorstores.VectorStore, error) {
	m, records, err := ReadDir(dir)
	if err != nil {
		return nil, err
	}
	if l.EmbeddingModel != "" && m.EmbeddingModel != "" && m.EmbeddingModel != l.EmbeddingModel {
		return nil, fmt.Errorf("%w: %s was built with %q, queries use %q", ErrIncompatible, dir, m.EmbeddingModel, l.EmbeddingModel)
	}
	store, err := NewMemory(embedder, records)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupted, err)
	}
	if d := store.Dimension(); d != 0 && d != dimension {
		return nil, fmt.Errorf("%w: %s holds %d dimensional embeddings, embedder produces %d", ErrIncompatible, dir, d, dimension)
	}
	l.Log.Info("loaded index",
		slog.String("dir", dir),
		slog.String("name", m.Name),
		slog.String("embeddingModel", m.EmbeddingModel),
		slog.Int("count", m.Count),
		slog.Int("dimension", m.Dimension))
	return store, nil
}

// loadObjectStore stages the index into a temporary directory. Memory reads
// every record eagerly, so the directory is removed once loading finishes.
func (l Loader) loadObjectStore(ctx context.Context, src Source, embedder embeddings.Embedder, dimension int) (vectorstores.VectorStore, error) {
	if l.ObjectStore == nil {
		return nil, ErrNoObjectStore
	}
	dir, err := os.MkdirTemp(l.TempDir, "wlf-index-*")
	if err != nil {
		return nil, fmt.Errorf("index: failed to create staging directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			l.Log.Warn("failed to remove staging directory", slog.String("dir", dir), slog.Any("error", err))
		}
	}()
	n, err := Stage(ctx, l.ObjectStore, src.Bucket, src.Prefix, dir)
	if err != nil {
		return nil, err
	}
	l.Log.Info("staged index", slog.String("source", src.String()), slog.String("dir", dir), slog.Int("objects", n))
	return l.loadDir(dir, embedder, dimension)
}

func (l Loader) loadRqlite(ctx context.Context, src Source, embedder embeddings.Embedder, dimension int) (vectorstores.VectorStore, error) {
	store, err := OpenRqlite(ctx, src.Rqlite, src.Name, embedder, dimension)
	if err != nil {
		return nil, err
	}
	n, err := store.Count(ctx)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("index: failed to count passages in %s: %w", src, err)
	}
	if n == 0 {
		store.Close()
		return nil, fmt.Errorf("index: %s holds no passages", src)
	}
	l.Log.Info("opened index", slog.String("source", src.String()), slog.Int64("count", n))
	return store, nil
}
