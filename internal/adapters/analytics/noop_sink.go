package analytics

import (
	"context"

	"github.com/mikey/llm-email-classifier/internal/core"
)

// NoopSink discards all records, used when analytics is disabled.
type NoopSink struct{}

// NewNoopSink creates a sink that drops everything.
func NewNoopSink() *NoopSink {
	return &NoopSink{}
}

func (s *NoopSink) Record(_ context.Context, _ *core.InboundEmail, _ *core.ClassificationResult) error {
	return nil
}

func (s *NoopSink) Stop() {}
