package index

import (
	"context"
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/jagroop-dev/wlf/db"
	"github.com/rqlite/gorqlite"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"
)

// Rqlite is a vector store held in one partition of an rqlite database,
// searched with sqlite-vec.
type Rqlite struct {
	conn     *gorqlite.Connection
	queries  *db.Queries
	name      string
	embedder  embeddings.Embedder
	dimension int
}

var _ vectorstores.VectorStore = (*Rqlite)(nil)

// OpenRqlite connects to rqlite and applies the schema migrations. The
// database must store vectors of the given dimension, the size of the
// embeddings produced by embedder.
func OpenRqlite(ctx context.Context, u db.RqliteURL, name string, embedder embeddings.Embedder, dimension int) (*Rqlite, error) {
	conn, err := gorqlite.Open(u.DataSourceName())
	if err != nil {
		return nil, fmt.Errorf("index: failed to open rqlite connection: %w", err)
	}
	if err = db.Migrate(u, dimension); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: failed to migrate rqlite: %w", err)
	}
	queries := db.New(conn)
	stored, err := queries.EmbeddingDimension(ctx)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: failed to read rqlite embedding dimension: %w", err)
	}
	if stored != dimension {
		conn.Close()
		return nil, fmt.Errorf("%w: rqlite stores %d dimensional embeddings, embedder produces %d", ErrIncompatible, stored, dimension)
	}
	return &Rqlite{
		conn:      conn,
		queries:   queries,
		name:      name,
		embedder:  embedder,
		dimension: dimension,
	}, nil
}

func (r *Rqlite) Dimension() int {
	return r.dimension
}

func (r *Rqlite) Count(ctx context.Context) (int64, error) {
	return r.queries.PassageCount(ctx, r.name)
}

func (r *Rqlite) Close() {
	r.conn.Close()
}

func (r *Rqlite) embedderFor(options []vectorstores.Option) (embeddings.Embedder, vectorstores.Options) {
	var opts vectorstores.Options
	for _, o := range options {
		o(&opts)
	}
	if opts.Embedder != nil {
		return opts.Embedder, opts
	}
	return r.embedder, opts
}

func (r *Rqlite) AddDocuments(ctx context.Context, docs []schema.Document, options ...vectorstores.Option) (ids []string, err error) {
	embedder, _ := r.embedderFor(options)
	if embedder == nil {
		return nil, ErrNoEmbedder
	}
	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = embeddingText(doc)
	}
	vectors, err := embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("index: failed to embed documents: %w", err)
	}
	if len(vectors) != len(docs) {
		return nil, fmt.Errorf("index: embedded %d documents, expected %d", len(vectors), len(docs))
	}
	now := time.Now().UTC()
	for i, doc := range docs {
		if len(vectors[i]) != r.dimension {
			return ids, fmt.Errorf("%w: rqlite stores %d dimensional embeddings, got %d", ErrIncompatible, r.dimension, len(vectors[i]))
		}
		source, _ := doc.Metadata[MetadataSource].(string)
		if source == "" {
			// Identical content without a source is stored once.
			source = fmt.Sprintf("passage-%x", sha256.Sum256([]byte(doc.PageContent)))
		}
		if chunk, ok := doc.Metadata[MetadataChunk]; ok {
			source = fmt.Sprintf("%s#%v", source, chunk)
		}
		id := db.PassageID{Index: r.name, Source: source}
		if _, err = r.queries.PassagePut(ctx, db.PassagePutArgs{
			Passage: db.Passage{
				PassageID: id,
				Content:   doc.PageContent,
				Metadata:  stringMetadata(doc.Metadata),
				CreatedAt: now,
			},
			Embedding: vectors[i],
		}); err != nil {
			return ids, fmt.Errorf("index: failed to put passage %s: %w", id, err)
		}
		ids = append(ids, id.String())
	}
	return ids, nil
}

func (r *Rqlite) SimilaritySearch(ctx context.Context, query string, numDocuments int, options ...vectorstores.Option) ([]schema.Document, error) {
	embedder, opts := r.embedderFor(options)
	if embedder == nil {
		return nil, ErrNoEmbedder
	}
	vector, err := embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("index: failed to embed query: %w", err)
	}
	passages, err := r.queries.PassageNearest(ctx, db.PassageNearestArgs{
		Index:     r.name,
		Embedding: vector,
		Limit:     numDocuments,
	})
	if err != nil {
		return nil, fmt.Errorf("index: failed to find nearest passages: %w", err)
	}
	docs := make([]schema.Document, 0, len(passages))
	for _, p := range passages {
		// Cosine distance: 0 is identical.
		score := float32(1 - p.Distance)
		if score < opts.ScoreThreshold {
			continue
		}
		metadata := anyMetadata(p.Metadata)
		if _, ok := metadata[MetadataSource]; !ok {
			metadata[MetadataSource] = p.Source
		}
		docs = append(docs, schema.Document{
			PageContent: p.Content,
			Metadata:    metadata,
			Score:       score,
		})
	}
	return docs, nil
}
