package core

import (
	"errors"
)

var (
	// ErrUpstreamTimeout is returned when an LLM or embedding call exceeds its deadline
	ErrUpstreamTimeout = errors.New("upstream call timed out")

	// ErrUpstreamExhausted is returned when every key for a service is rate-limited
	ErrUpstreamExhausted = errors.New("all api keys exhausted")

	// ErrMalformedModelResponse is returned when the model output cannot be parsed even after repair
	ErrMalformedModelResponse = errors.New("malformed model response")

	// ErrEmbeddingUnavailable signals that embeddings could not be produced; callers degrade to lexical similarity
	ErrEmbeddingUnavailable = errors.New("embedding provider unavailable")

	// ErrInvalidInput is returned for requests missing required email fields
	ErrInvalidInput = errors.New("invalid input")
)

// IsRetryable reports whether a classification call failure is worth one
// retry with the next rotated key.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUpstreamTimeout) || errors.Is(err, ErrUpstreamExhausted)
}
