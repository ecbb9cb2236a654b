package factory

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"go.uber.org/zap"

	"github.com/mikey/llm-email-classifier/internal/adapters/bedrock"
	"github.com/mikey/llm-email-classifier/internal/adapters/gemini"
	"github.com/mikey/llm-email-classifier/internal/adapters/openai"
	"github.com/mikey/llm-email-classifier/internal/config"
	"github.com/mikey/llm-email-classifier/internal/core"
	"github.com/mikey/llm-email-classifier/internal/keypool"
)

// LLMFactory creates LLM clients. Each task (classification, extraction)
// gets its own client so they can run on different providers.
type LLMFactory struct {
	cfg    *config.Config
	pool   *keypool.Pool
	logger *zap.Logger
}

// NewLLMFactory creates a new LLM factory
func NewLLMFactory(cfg *config.Config, pool *keypool.Pool, logger *zap.Logger) *LLMFactory {
	return &LLMFactory{
		cfg:    cfg,
		pool:   pool,
		logger: logger,
	}
}

// CreateClassificationClient creates the LLM client used for request-type
// classification.
func (f *LLMFactory) CreateClassificationClient() (core.LLMClient, error) {
	return f.createClient(f.cfg.GetLLM().ClassificationProvider)
}

// CreateExtractionClient creates the LLM client used for field extraction.
func (f *LLMFactory) CreateExtractionClient() (core.LLMClient, error) {
	return f.createClient(f.cfg.GetLLM().ExtractionProvider)
}

func (f *LLMFactory) createClient(provider string) (core.LLMClient, error) {
	switch provider {
	case "openai":
		cfg, err := f.cfg.GetOpenAI()
		if err != nil {
			return nil, err
		}
		return openai.NewOpenAIClient(
			f.pool,
			cfg.ModelName,
			cfg.MaxTokens,
			cfg.Temperature,
			cfg.TopP,
			cfg.Timeout,
			f.logger,
		), nil
	case "gemini":
		cfg, err := f.cfg.GetGemini()
		if err != nil {
			return nil, err
		}
		return gemini.NewGeminiClient(
			f.pool,
			cfg.ModelName,
			cfg.MaxTokens,
			cfg.Temperature,
			cfg.TopP,
			cfg.Timeout,
			f.logger,
		), nil
	case "bedrock":
		cfg, err := f.cfg.GetBedrock()
		if err != nil {
			return nil, err
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(cfg.Region),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
		}
		return bedrock.NewBedrockClient(
			bedrockruntime.NewFromConfig(awsCfg),
			cfg.ModelID,
			cfg.MaxTokens,
			cfg.Temperature,
			cfg.TopP,
			cfg.Timeout,
			f.logger,
		), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", provider)
	}
}
