package factory

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/mikey/llm-email-classifier/internal/config"
	"github.com/mikey/llm-email-classifier/internal/core"
	"github.com/mikey/llm-email-classifier/internal/embed"
	"github.com/mikey/llm-email-classifier/internal/keypool"
)

// EmbeddingFactory creates embedding providers based on configuration
type EmbeddingFactory struct {
	cfg    *config.Config
	pool   *keypool.Pool
	logger *zap.Logger
}

// NewEmbeddingFactory creates a new embedding factory
func NewEmbeddingFactory(cfg *config.Config, pool *keypool.Pool, logger *zap.Logger) *EmbeddingFactory {
	return &EmbeddingFactory{
		cfg:    cfg,
		pool:   pool,
		logger: logger,
	}
}

// CreateEmbeddingProvider creates an embedding provider based on the configuration
func (f *EmbeddingFactory) CreateEmbeddingProvider() (core.EmbeddingProvider, error) {
	embCfg, err := f.cfg.GetEmbedding()
	if err != nil {
		return nil, err
	}

	switch embCfg.Provider {
	case "openai":
		return embed.NewOpenAIProvider(
			f.pool,
			embCfg.ModelName,
			embCfg.Timeout,
			embCfg.RequestsPerSecond,
			f.logger,
		), nil
	case "lexical":
		return embed.NewLexicalProvider(), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", embCfg.Provider)
	}
}
