package rag

import (
	"context"
	"iter"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
)

// Image is a picture attached to a multimodal prompt.
type Image struct {
	Name     string
	Path     string
	MIMEType string
	Data     []byte
}

type GeneratorOption func(*Generator)

func WithTemperature(t float64) GeneratorOption {
	return func(g *Generator) {
		g.callOptions = append(g.callOptions, llms.WithTemperature(t))
	}
}

func WithMaxTokens(n int) GeneratorOption {
	return func(g *Generator) {
		if n > 0 {
			g.callOptions = append(g.callOptions, llms.WithMaxTokens(n))
		}
	}
}

// WithTimeout bounds each generation, including the time spent waiting for fragments.
func WithTimeout(d time.Duration) GeneratorOption {
	return func(g *Generator) {
		g.timeout = d
	}
}

type Generator struct {
	llm         llms.Model
	callOptions []llms.CallOption
	timeout     time.Duration
}

func NewGenerator(llm llms.Model, opts ...GeneratorOption) Generator {
	g := Generator{llm: llm}
	for _, opt := range opts {
		opt(&g)
	}
	return g
}

func (g Generator) messages(prompt string, images []Image) []llms.MessageContent {
	parts := []llms.ContentPart{llms.TextPart(prompt)}
	for _, img := range images {
		parts = append(parts, llms.BinaryPart(img.MIMEType, img.Data))
	}
	return []llms.MessageContent{
		{Role: llms.ChatMessageTypeHuman, Parts: parts},
	}
}

// Stream returns the model output as fragments in generation order. The
// sequence is single-use. Breaking out of the loop cancels the model call.
// An error is yielded at most once, as the final element.
func (g Generator) Stream(ctx context.Context, prompt string, images []Image) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		var cancel context.CancelFunc
		if g.timeout > 0 {
			ctx, cancel = context.WithTimeout(ctx, g.timeout)
		} else {
			ctx, cancel = context.WithCancel(ctx)
		}
		defer cancel()

		fragments := make(chan string)
		result := make(chan error, 1)
		go func() {
			defer close(fragments)
			var streamed bool
			f := func(ctx context.Context, chunk []byte) error {
				if len(chunk) == 0 {
					return nil
				}
				streamed = true
				select {
				case fragments <- string(chunk):
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			opts := append(append([]llms.CallOption{}, g.callOptions...), llms.WithStreamingFunc(f))
			resp, err := g.llm.GenerateContent(ctx, g.messages(prompt, images), opts...)
			if err == nil && !streamed {
				// Providers without streaming support return the whole text at once.
				if text := firstChoice(resp); text != "" {
					select {
					case fragments <- text:
					case <-ctx.Done():
						err = ctx.Err()
					}
				}
			}
			result <- err
		}()

		for fragment := range fragments {
			if !yield(fragment, nil) {
				cancel()
				for range fragments {
				}
				return
			}
		}
		if err := <-result; err != nil {
			yield("", GenerationError("rag: generate", err))
		}
	}
}

// Generate blocks until the model has produced its complete output.
func (g Generator) Generate(ctx context.Context, prompt string, images []Image) (string, error) {
	var sb strings.Builder
	for fragment, err := range g.Stream(ctx, prompt, images) {
		if err != nil {
			return "", err
		}
		sb.WriteString(fragment)
	}
	return sb.String(), nil
}

func firstChoice(resp *llms.ContentResponse) string {
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0] == nil {
		return ""
	}
	return resp.Choices[0].Content
}
