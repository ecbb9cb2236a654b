package config

import (
	"fmt"
	"time"
)

// LLMConfig selects the provider used for each LLM task.
type LLMConfig struct {
	ClassificationProvider string
	ExtractionProvider     string
}

// OpenAIConfig represents the configuration for OpenAI
type OpenAIConfig struct {
	ModelName   string
	MaxTokens   int
	Temperature float32
	TopP        float32
	Timeout     time.Duration
}

// GeminiConfig represents the configuration for Google Gemini
type GeminiConfig struct {
	ModelName   string
	MaxTokens   int
	Temperature float32
	TopP        float32
	Timeout     time.Duration
}

// BedrockConfig represents the configuration for Amazon Bedrock
type BedrockConfig struct {
	Region      string
	ModelID     string
	MaxTokens   int
	Temperature float32
	TopP        float32
	Timeout     time.Duration
}

// EmbeddingConfig represents the embedding provider configuration.
type EmbeddingConfig struct {
	Provider          string
	ModelName         string
	Timeout           time.Duration
	RequestsPerSecond float64
}

// DedupeConfig represents the duplicate detection configuration.
type DedupeConfig struct {
	CacheDays         int
	CacheSize         int
	SemanticThreshold float64
	MetadataWeight    float64
	SubjectWeight     float64
	ContentWeight     float64
	TimeWindowHours   float64
}

// ServiceKeyConfig is a single API key entry for one upstream service.
type ServiceKeyConfig struct {
	Key           string `mapstructure:"key"`
	CallLimit     int    `mapstructure:"call_limit"`
	PeriodMinutes int    `mapstructure:"period_minutes"`
}

// GetLLM returns the LLM task configuration
func (c *Config) GetLLM() LLMConfig {
	return LLMConfig{
		ClassificationProvider: c.GetString("llm.classification_provider"),
		ExtractionProvider:     c.GetString("llm.extraction_provider"),
	}
}

// GetOpenAI returns the OpenAI configuration
func (c *Config) GetOpenAI() (OpenAIConfig, error) {
	timeout, err := c.GetDuration("openai.timeout")
	if err != nil {
		return OpenAIConfig{}, fmt.Errorf("invalid openai.timeout: %w", err)
	}
	return OpenAIConfig{
		ModelName:   c.GetString("openai.model_name"),
		MaxTokens:   c.GetInt("openai.max_tokens"),
		Temperature: float32(c.GetFloat64("openai.temperature")),
		TopP:        float32(c.GetFloat64("openai.top_p")),
		Timeout:     timeout,
	}, nil
}

// GetGemini returns the Gemini configuration
func (c *Config) GetGemini() (GeminiConfig, error) {
	timeout, err := c.GetDuration("gemini.timeout")
	if err != nil {
		return GeminiConfig{}, fmt.Errorf("invalid gemini.timeout: %w", err)
	}
	return GeminiConfig{
		ModelName:   c.GetString("gemini.model_name"),
		MaxTokens:   c.GetInt("gemini.max_tokens"),
		Temperature: float32(c.GetFloat64("gemini.temperature")),
		TopP:        float32(c.GetFloat64("gemini.top_p")),
		Timeout:     timeout,
	}, nil
}

// GetBedrock returns the Bedrock configuration
func (c *Config) GetBedrock() (BedrockConfig, error) {
	timeout, err := c.GetDuration("bedrock.timeout")
	if err != nil {
		return BedrockConfig{}, fmt.Errorf("invalid bedrock.timeout: %w", err)
	}
	return BedrockConfig{
		Region:      c.GetString("bedrock.region"),
		ModelID:     c.GetString("bedrock.model_id"),
		MaxTokens:   c.GetInt("bedrock.max_tokens"),
		Temperature: float32(c.GetFloat64("bedrock.temperature")),
		TopP:        float32(c.GetFloat64("bedrock.top_p")),
		Timeout:     timeout,
	}, nil
}

// GetEmbedding returns the embedding provider configuration
func (c *Config) GetEmbedding() (EmbeddingConfig, error) {
	timeout, err := c.GetDuration("embedding.timeout")
	if err != nil {
		return EmbeddingConfig{}, fmt.Errorf("invalid embedding.timeout: %w", err)
	}
	return EmbeddingConfig{
		Provider:          c.GetString("embedding.provider"),
		ModelName:         c.GetString("embedding.model_name"),
		Timeout:           timeout,
		RequestsPerSecond: c.GetFloat64("embedding.requests_per_second"),
	}, nil
}

// GetDedupe returns the duplicate detection configuration
func (c *Config) GetDedupe() DedupeConfig {
	return DedupeConfig{
		CacheDays:         c.GetInt("dedupe.cache_days"),
		CacheSize:         c.GetInt("dedupe.cache_size"),
		SemanticThreshold: c.GetFloat64("dedupe.semantic_threshold"),
		MetadataWeight:    c.GetFloat64("dedupe.metadata_weight"),
		SubjectWeight:     c.GetFloat64("dedupe.subject_weight"),
		ContentWeight:     c.GetFloat64("dedupe.content_weight"),
		TimeWindowHours:   c.GetFloat64("dedupe.time_window_hours"),
	}
}

// GetServiceKeys returns the configured API keys grouped by service name.
func (c *Config) GetServiceKeys() (map[string][]ServiceKeyConfig, error) {
	keys := make(map[string][]ServiceKeyConfig)
	if err := c.v.UnmarshalKey("keys", &keys); err != nil {
		return nil, fmt.Errorf("failed to parse keys configuration: %w", err)
	}
	return keys, nil
}
