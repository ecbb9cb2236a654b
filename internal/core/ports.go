package core

import (
	"context"
)

// LLMClient defines the interface for chat-style LLM completions. The
// adapter is responsible for credential rotation and for carrying a timeout
// on every call.
type LLMClient interface {
	// Complete sends a system and user prompt and returns the raw model text
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// EmbeddingProvider converts text into a fixed-length vector. Implementations
// may be remote (degradable) or local (always available).
type EmbeddingProvider interface {
	// Embed returns the embedding vector for the given text
	Embed(ctx context.Context, text string) ([]float32, error)
}

// DuplicateCache answers whether an email is a near-duplicate of one already
// processed, and records processed emails for later lookups.
type DuplicateCache interface {
	// Lookup compares the candidate against all live cached records
	Lookup(email *InboundEmail, subjectEmbedding, bodyEmbedding []float32) DuplicateMatch

	// Insert stores a processed email record; it always succeeds
	Insert(record *ProcessedEmailRecord)

	// Stats returns the current cache state
	Stats() CacheStats
}

// FieldExtractor pulls structured fields from an email for a classified
// request type.
type FieldExtractor interface {
	// ExtractFields extracts the required attributes for the primary request type
	ExtractFields(ctx context.Context, email *InboundEmail, primary RequestTypeResult, requiredAttributes []string) ([]ExtractedField, error)
}

// TaxonomyProvider supplies the request-type taxonomy. The core never
// mutates it.
type TaxonomyProvider interface {
	// GetRequestTypes returns all request type definitions
	GetRequestTypes() ([]RequestType, error)
}

// AnalyticsSink receives finished classification results for persistence.
// Recording is best-effort; failures must not fail the pipeline.
type AnalyticsSink interface {
	// Record persists one classification outcome
	Record(ctx context.Context, email *InboundEmail, result *ClassificationResult) error

	// Stop releases any resources held by the sink
	Stop()
}
