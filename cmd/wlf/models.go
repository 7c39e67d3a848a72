package main

import (
	"fmt"
	"net/http"

	"github.com/jagroop-dev/wlf/rag"
	"github.com/tmc/langchaingo/embeddings"
	hfembeddings "github.com/tmc/langchaingo/embeddings/huggingface"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/huggingface"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// ModelFlags select the hosted chat and embedding models.
type ModelFlags struct {
	Provider         string  `help:"The model provider." enum:"huggingface,ollama,openai" env:"WLF_PROVIDER" default:"huggingface"`
	ChatModel        string  `help:"The model to answer with." env:"CHAT_MODEL" default:"mistralai/Mistral-7B-Instruct-v0.2"`
	EmbeddingModel   string  `help:"The model used to embed questions and guide passages." env:"EMBEDDING_MODEL" default:"sentence-transformers/all-MiniLM-L12-v2"`
	HuggingFaceToken string  `help:"The Hugging Face inference API token." env:"HUGGINGFACEHUB_API_TOKEN,HF_TOKEN" default:""`
	OllamaURL        string  `help:"The URL of the Ollama server." env:"OLLAMA_URL" default:"http://127.0.0.1:11434/"`
	OpenAIURL        string  `help:"The base URL of an OpenAI compatible API." env:"OPENAI_BASE_URL" default:""`
	OpenAIToken      string  `help:"The OpenAI API key." env:"OPENAI_API_KEY" default:""`
	Temperature      float64 `help:"The sampling temperature." env:"TEMPERATURE" default:"0.5"`
	MaxTokens        int     `help:"The maximum number of tokens to generate, 0 for the provider default." env:"MAX_TOKENS" default:"0"`
}

// models creates the chat model and embedder. Every failure is a
// configuration error.
func (f ModelFlags) models() (llm llms.Model, emb embeddings.Embedder, err error) {
	const op = "wlf: create models"
	switch f.Provider {
	case "huggingface":
		if f.HuggingFaceToken == "" {
			return nil, nil, rag.ConfigError(op, fmt.Errorf("HuggingFace token not found, set HUGGINGFACEHUB_API_TOKEN or HF_TOKEN"))
		}
		hf, err := huggingface.New(
			huggingface.WithToken(f.HuggingFaceToken),
			huggingface.WithModel(f.ChatModel))
		if err != nil {
			return nil, nil, rag.ConfigError(op, fmt.Errorf("failed to create LLM: %w", err))
		}
		emb, err = hfembeddings.NewHuggingface(
			hfembeddings.WithClient(*hf),
			hfembeddings.WithModel(f.EmbeddingModel))
		if err != nil {
			return nil, nil, rag.ConfigError(op, fmt.Errorf("failed to create embedder: %w", err))
		}
		return hf, emb, nil
	case "ollama":
		httpClient := &http.Client{}
		ec, err := ollama.New(
			ollama.WithModel(f.EmbeddingModel),
			ollama.WithHTTPClient(httpClient),
			ollama.WithServerURL(f.OllamaURL))
		if err != nil {
			return nil, nil, rag.ConfigError(op, fmt.Errorf("failed to create embedder: %w", err))
		}
		emb, err = embeddings.NewEmbedder(ec)
		if err != nil {
			return nil, nil, rag.ConfigError(op, fmt.Errorf("failed to create embedder: %w", err))
		}
		llmc, err := ollama.New(
			ollama.WithModel(f.ChatModel),
			ollama.WithHTTPClient(httpClient),
			ollama.WithServerURL(f.OllamaURL))
		if err != nil {
			return nil, nil, rag.ConfigError(op, fmt.Errorf("failed to create LLM: %w", err))
		}
		return llmc, emb, nil
	case "openai":
		opts := []openai.Option{
			openai.WithModel(f.ChatModel),
			openai.WithEmbeddingModel(f.EmbeddingModel),
		}
		if f.OpenAIToken != "" {
			opts = append(opts, openai.WithToken(f.OpenAIToken))
		}
		if f.OpenAIURL != "" {
			opts = append(opts, openai.WithBaseURL(f.OpenAIURL))
		}
		llmc, err := openai.New(opts...)
		if err != nil {
			return nil, nil, rag.ConfigError(op, fmt.Errorf("failed to create LLM: %w", err))
		}
		emb, err = embeddings.NewEmbedder(llmc)
		if err != nil {
			return nil, nil, rag.ConfigError(op, fmt.Errorf("failed to create embedder: %w", err))
		}
		return llmc, emb, nil
	}
	return nil, nil, rag.ConfigError(op, fmt.Errorf("unknown provider %q", f.Provider))
}

func (f ModelFlags) generatorOptions() []rag.GeneratorOption {
	return []rag.GeneratorOption{
		rag.WithTemperature(f.Temperature),
		rag.WithMaxTokens(f.MaxTokens),
	}
}
