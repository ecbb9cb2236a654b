// Package embed provides text embedding providers used by the duplicate
// detector for semantic similarity scoring.
package embed

import (
	"context"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mikey/llm-email-classifier/internal/core"
	"github.com/mikey/llm-email-classifier/internal/keypool"
)

// OpenAIProvider generates embeddings through the OpenAI embeddings API.
// Keys are drawn from the shared pool per request so embedding traffic
// shares the same rate budget as classification calls.
type OpenAIProvider struct {
	pool    *keypool.Pool
	model   openai.EmbeddingModel
	timeout time.Duration
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewOpenAIProvider creates an embedding provider backed by the OpenAI API.
// requestsPerSecond bounds local request pacing independently of the key
// pool's per-window call limits.
func NewOpenAIProvider(pool *keypool.Pool, model string, timeout time.Duration, requestsPerSecond float64, logger *zap.Logger) *OpenAIProvider {
	if model == "" {
		model = string(openai.SmallEmbedding3)
	}
	return &OpenAIProvider{
		pool:    pool,
		model:   openai.EmbeddingModel(model),
		timeout: timeout,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
		logger:  logger,
	}
}

// Embed returns the embedding vector for text, or nil for empty text.
func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, nil
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrEmbeddingUnavailable, err)
	}

	entry, err := p.pool.Acquire("openai")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrEmbeddingUnavailable, err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	client := openai.NewClient(entry.Key)
	resp, err := client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: p.model,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			p.logger.Warn("Embedding request timed out", zap.Duration("timeout", p.timeout))
		}
		return nil, fmt.Errorf("%w: %v", core.ErrEmbeddingUnavailable, err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("%w: empty embedding response", core.ErrEmbeddingUnavailable)
	}

	return resp.Data[0].Embedding, nil
}
