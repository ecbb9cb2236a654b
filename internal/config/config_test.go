package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConfig() *Config {
	return NewFromViper(NewEmptyViper())
}

func TestDefaults(t *testing.T) {
	cfg := newTestConfig()

	llm := cfg.GetLLM()
	assert.Equal(t, "openai", llm.ClassificationProvider)
	assert.Equal(t, "openai", llm.ExtractionProvider)

	assert.True(t, cfg.GetBool("server.http.enabled"))
	assert.Equal(t, "0.0.0.0:8080", cfg.GetString("server.http.listen_address"))
	assert.False(t, cfg.GetBool("server.smtp.enabled"))

	dedupe := cfg.GetDedupe()
	assert.Equal(t, 14, dedupe.CacheDays)
	assert.Equal(t, 10000, dedupe.CacheSize)
	assert.Equal(t, 0.8, dedupe.SemanticThreshold)
	assert.Equal(t, 0.6, dedupe.MetadataWeight)
	assert.Equal(t, 0.3, dedupe.SubjectWeight)
	assert.Equal(t, 0.7, dedupe.ContentWeight)
	assert.Equal(t, 72.0, dedupe.TimeWindowHours)

	assert.Equal(t, "lexical", cfg.GetString("embedding.provider"))
	assert.Equal(t, "none", cfg.GetString("analytics.type"))
}

func TestGetOpenAI(t *testing.T) {
	cfg := newTestConfig()

	openai, err := cfg.GetOpenAI()
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", openai.ModelName)
	assert.Equal(t, 2000, openai.MaxTokens)
	assert.InDelta(t, 0.1, openai.Temperature, 1e-6)
	assert.Equal(t, 60*time.Second, openai.Timeout)
}

func TestGetOpenAIInvalidTimeout(t *testing.T) {
	v := NewEmptyViper()
	v.Set("openai.timeout", "never")

	_, err := NewFromViper(v).GetOpenAI()
	assert.Error(t, err)
}

func TestGetBedrock(t *testing.T) {
	cfg := newTestConfig()

	bedrock, err := cfg.GetBedrock()
	require.NoError(t, err)
	assert.Equal(t, "us-east-1", bedrock.Region)
	assert.Equal(t, "anthropic.claude-3-sonnet-20240229-v1:0", bedrock.ModelID)
}

func TestGetServiceKeys(t *testing.T) {
	v := NewEmptyViper()
	v.Set("keys", map[string][]map[string]interface{}{
		"openai": {
			{"key": "sk-proj-first", "call_limit": 500, "period_minutes": 60},
			{"key": "sk-proj-second", "call_limit": 1000, "period_minutes": 30},
		},
		"gemini": {
			{"key": "AIza-test", "call_limit": 100, "period_minutes": 60},
		},
	})

	keys, err := NewFromViper(v).GetServiceKeys()
	require.NoError(t, err)
	require.Len(t, keys["openai"], 2)
	assert.Equal(t, "sk-proj-first", keys["openai"][0].Key)
	assert.Equal(t, 500, keys["openai"][0].CallLimit)
	assert.Equal(t, 60, keys["openai"][0].PeriodMinutes)
	require.Len(t, keys["gemini"], 1)
	assert.Equal(t, 100, keys["gemini"][0].CallLimit)
}

func TestGetServiceKeysEmpty(t *testing.T) {
	keys, err := newTestConfig().GetServiceKeys()
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestOverride(t *testing.T) {
	v := NewEmptyViper()
	v.Set("dedupe.semantic_threshold", 0.9)
	v.Set("llm.classification_provider", "bedrock")

	cfg := NewFromViper(v)
	assert.Equal(t, 0.9, cfg.GetDedupe().SemanticThreshold)
	assert.Equal(t, "bedrock", cfg.GetLLM().ClassificationProvider)
}
