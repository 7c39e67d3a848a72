package rag

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"
)

// fakeLLM streams chunks, or returns them joined when stream is false.
type fakeLLM struct {
	chunks []string
	stream bool
	err    error

	m        sync.Mutex
	calls    int
	messages []llms.MessageContent
	options  llms.CallOptions
}

func (f *fakeLLM) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.m.Lock()
	f.calls++
	f.messages = messages
	for _, o := range options {
		o(&f.options)
	}
	streamingFunc := f.options.StreamingFunc
	f.m.Unlock()

	if f.stream && streamingFunc != nil {
		for _, c := range f.chunks {
			if err := streamingFunc(ctx, []byte(c)); err != nil {
				return nil, err
			}
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: strings.Join(f.chunks, "")}},
	}, nil
}

func (f *fakeLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func (f *fakeLLM) Calls() int {
	f.m.Lock()
	defer f.m.Unlock()
	return f.calls
}

func (f *fakeLLM) prompt() string {
	f.m.Lock()
	defer f.m.Unlock()
	if len(f.messages) == 0 || len(f.messages[0].Parts) == 0 {
		return ""
	}
	text, _ := f.messages[0].Parts[0].(llms.TextContent)
	return text.Text
}

// fakeStore returns its documents regardless of the query.
type fakeStore struct {
	docs    []schema.Document
	err     error
	queries []string
}

func (s *fakeStore) AddDocuments(ctx context.Context, docs []schema.Document, options ...vectorstores.Option) ([]string, error) {
	return nil, errors.New("read only")
}

func (s *fakeStore) SimilaritySearch(ctx context.Context, query string, numDocuments int, options ...vectorstores.Option) ([]schema.Document, error) {
	s.queries = append(s.queries, query)
	if s.err != nil {
		return nil, s.err
	}
	return s.docs, nil
}
