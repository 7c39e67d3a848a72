package rag

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"
)

// Retriever returns at most k documents from one index.
type Retriever struct {
	name      string
	k         int
	retriever vectorstores.Retriever
}

func NewRetriever(name string, store vectorstores.VectorStore, k int, options ...vectorstores.Option) (r Retriever, err error) {
	if store == nil {
		return r, ConfigError("rag: new retriever", fmt.Errorf("index %q has no store", name))
	}
	if k <= 0 {
		return r, ConfigError("rag: new retriever", fmt.Errorf("index %q: k must be positive, got %d", name, k))
	}
	return Retriever{
		name:      name,
		k:         k,
		retriever: vectorstores.ToRetriever(store, k, options...),
	}, nil
}

func (r Retriever) Name() string {
	return r.name
}

func (r Retriever) K() int {
	return r.k
}

// Retrieve returns the nearest documents to query, most similar first.
func (r Retriever) Retrieve(ctx context.Context, query string) ([]schema.Document, error) {
	docs, err := r.retriever.GetRelevantDocuments(ctx, query)
	if err != nil {
		return nil, RetrievalError("rag: retrieve from "+r.name, err)
	}
	if len(docs) > r.k {
		docs = docs[:r.k]
	}
	return docs, nil
}

func pageContents(docs []schema.Document) []string {
	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = doc.PageContent
	}
	return texts
}
