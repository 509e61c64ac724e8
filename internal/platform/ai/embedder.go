package ai

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/voyplan/memory-backend/internal/logger"
)

// Embedder turns text into a fixed-dimension vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// Options configures the OpenAI-backed embedder and extractor.
type Options struct {
	APIKey       string
	BaseURL      string // optional, e.g. a proxy or Azure-compatible endpoint
	EmbedModel   string
	ExtractModel string
	VectorDim    int
}

type embedder struct {
	log    *logger.Logger
	client *openai.Client
	model  string
	dim    int
}

func NewEmbedder(log *logger.Logger, opts Options) (Embedder, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, fmt.Errorf("missing OPENAI_API_KEY")
	}
	if opts.VectorDim <= 0 {
		return nil, fmt.Errorf("vector dim must be positive, got %d", opts.VectorDim)
	}
	model := strings.TrimSpace(opts.EmbedModel)
	if model == "" {
		model = string(openai.SmallEmbedding3)
	}
	return &embedder{
		log:    log.With("service", "OpenAIEmbedder"),
		client: newOpenAIClient(opts),
		model:  model,
		dim:    opts.VectorDim,
	}, nil
}

func (e *embedder) Dimension() int { return e.dim }

func (e *embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("empty embedding input")
	}
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      []string{text},
		Model:      openai.EmbeddingModel(e.model),
		Dimensions: e.dim,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embeddings response has no data")
	}
	vec := resp.Data[0].Embedding
	if len(vec) != e.dim {
		return nil, fmt.Errorf("embedding dimension mismatch: expected=%d got=%d", e.dim, len(vec))
	}
	return vec, nil
}

func newOpenAIClient(opts Options) *openai.Client {
	cfg := openai.DefaultConfig(opts.APIKey)
	if base := strings.TrimSpace(opts.BaseURL); base != "" {
		cfg.BaseURL = strings.TrimRight(base, "/")
	}
	return openai.NewClientWithConfig(cfg)
}
