// Package openai implements the LLM client interface using the OpenAI
// chat completions API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/mikey/llm-email-classifier/internal/core"
	"github.com/mikey/llm-email-classifier/internal/keypool"
)

// OpenAIClient is an implementation of the LLMClient interface using OpenAI.
// A key is drawn from the pool per request so usage rotates across all
// configured credentials.
type OpenAIClient struct {
	pool        *keypool.Pool
	modelName   string
	maxTokens   int
	temperature float32
	topP        float32
	timeout     time.Duration
	logger      *zap.Logger
}

// NewOpenAIClient creates a new OpenAI client
func NewOpenAIClient(
	pool *keypool.Pool,
	modelName string,
	maxTokens int,
	temperature float32,
	topP float32,
	timeout time.Duration,
	logger *zap.Logger,
) *OpenAIClient {
	return &OpenAIClient{
		pool:        pool,
		modelName:   modelName,
		maxTokens:   maxTokens,
		temperature: temperature,
		topP:        topP,
		timeout:     timeout,
		logger:      logger,
	}
}

// Complete sends a system and user prompt and returns the raw model output.
func (c *OpenAIClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	entry, err := c.pool.Acquire("openai")
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model: c.modelName,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: systemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: userPrompt,
			},
		},
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		TopP:        c.topP,
	}

	client := openai.NewClient(entry.Key)
	resp, err := client.CreateChatCompletion(ctx, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			c.logger.Warn("OpenAI request timed out",
				zap.String("model", c.modelName),
				zap.Duration("timeout", c.timeout))
			return "", fmt.Errorf("%w: openai request exceeded %s", core.ErrUpstreamTimeout, c.timeout)
		}
		return "", fmt.Errorf("failed to create chat completion with OpenAI: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty response from OpenAI", core.ErrMalformedModelResponse)
	}

	return resp.Choices[0].Message.Content, nil
}
