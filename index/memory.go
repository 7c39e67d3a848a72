package index

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"
)

// Record is a persisted index entry.
type Record struct {
	Content   string
	Metadata  map[string]string
	Embedding []float32
}

var ErrNoEmbedder = errors.New("index: no embedder")

// Memory is an in-memory vector store searched by cosine similarity.
//
// AddDocuments is only used while building an index and must not run
// concurrently with SimilaritySearch. A loaded index is read-only.
type Memory struct {
	embedder  embeddings.Embedder
	dimension int
	records   []Record
}

var _ vectorstores.VectorStore = (*Memory)(nil)

func NewMemory(embedder embeddings.Embedder, records []Record) (*Memory, error) {
	m := &Memory{
		embedder: embedder,
		records:  records,
	}
	for i, r := range records {
		if i == 0 {
			m.dimension = len(r.Embedding)
		}
		if len(r.Embedding) == 0 || len(r.Embedding) != m.dimension {
			return nil, fmt.Errorf("index: record %d has dimension %d, expected %d", i, len(r.Embedding), m.dimension)
		}
	}
	return m, nil
}

func (m *Memory) Dimension() int {
	return m.dimension
}

func (m *Memory) Records() []Record {
	return m.records
}

func (m *Memory) embedderFor(options []vectorstores.Option) (embeddings.Embedder, vectorstores.Options) {
	var opts vectorstores.Options
	for _, o := range options {
		o(&opts)
	}
	if opts.Embedder != nil {
		return opts.Embedder, opts
	}
	return m.embedder, opts
}

func (m *Memory) AddDocuments(ctx context.Context, docs []schema.Document, options ...vectorstores.Option) (ids []string, err error) {
	embedder, _ := m.embedderFor(options)
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
	for i, doc := range docs {
		if m.dimension == 0 {
			m.dimension = len(vectors[i])
		}
		if len(vectors[i]) != m.dimension {
			return ids, fmt.Errorf("index: embedding has dimension %d, expected %d", len(vectors[i]), m.dimension)
		}
		m.records = append(m.records, Record{
			Content:   doc.PageContent,
			Metadata:  stringMetadata(doc.Metadata),
			Embedding: vectors[i],
		})
		ids = append(ids, strconv.Itoa(len(m.records)-1))
	}
	return ids, nil
}

func (m *Memory) SimilaritySearch(ctx context.Context, query string, numDocuments int, options ...vectorstores.Option) ([]schema.Document, error) {
	embedder, opts := m.embedderFor(options)
	if embedder == nil {
		return nil, ErrNoEmbedder
	}
	if numDocuments <= 0 || len(m.records) == 0 {
		return nil, nil
	}
	vector, err := embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("index: failed to embed query: %w", err)
	}
	if len(vector) != m.dimension {
		return nil, fmt.Errorf("index: query embedding has dimension %d, index has %d", len(vector), m.dimension)
	}

	type scored struct {
		i     int
		score float32
	}
	results := make([]scored, 0, len(m.records))
	for i, r := range m.records {
		score := cosineSimilarity(vector, r.Embedding)
		if score < opts.ScoreThreshold {
			continue
		}
		results = append(results, scored{i: i, score: score})
	}
	slices.SortStableFunc(results, func(a, b scored) int {
		return cmp.Compare(b.score, a.score)
	})
	if len(results) > numDocuments {
		results = results[:numDocuments]
	}

	docs := make([]schema.Document, len(results))
	for i, r := range results {
		rec := m.records[r.i]
		docs[i] = schema.Document{
			PageContent: rec.Content,
			Metadata:    anyMetadata(rec.Metadata),
			Score:       r.score,
		}
	}
	return docs, nil
}

func cosineSimilarity(a, b []float32) float32 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// embeddingText is the text embedded for a document. Image documents hold a
// file path, so their caption is embedded instead when present.
func embeddingText(doc schema.Document) string {
	if caption, ok := doc.Metadata[MetadataCaption].(string); ok && caption != "" {
		return caption
	}
	return doc.PageContent
}

const (
	MetadataSource  = "source"
	MetadataCaption = "caption"
	// MetadataChunk numbers the passages split from one source.
	MetadataChunk = "chunk"
)

func stringMetadata(m map[string]any) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = fmt.Sprint(v)
	}
	return out
}

func anyMetadata(m map[string]string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
