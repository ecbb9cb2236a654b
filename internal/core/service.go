package core

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mikey/llm-email-classifier/internal/textnorm"
)

// ClassifierService orchestrates the classification pipeline: duplicate
// check, request-type classification, field extraction and result assembly.
type ClassifierService struct {
	llmClient LLMClient
	embedder  EmbeddingProvider
	dupCache  DuplicateCache
	extractor FieldExtractor
	taxonomy  TaxonomyProvider
	analytics AnalyticsSink
	logger    *zap.Logger
}

// NewClassifierService creates a new classifier service
func NewClassifierService(
	llmClient LLMClient,
	embedder EmbeddingProvider,
	dupCache DuplicateCache,
	extractor FieldExtractor,
	taxonomy TaxonomyProvider,
	analytics AnalyticsSink,
	logger *zap.Logger,
) *ClassifierService {
	return &ClassifierService{
		llmClient: llmClient,
		embedder:  embedder,
		dupCache:  dupCache,
		extractor: extractor,
		taxonomy:  taxonomy,
		analytics: analytics,
		logger:    logger,
	}
}

// ProcessEmail runs one email through the full pipeline. The returned
// result is always well-formed; stage failures populate its Error field.
// Only invalid input is rejected with an error, before any stage runs.
func (s *ClassifierService) ProcessEmail(ctx context.Context, email *InboundEmail) (*ClassificationResult, error) {
	start := time.Now()

	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if email.ReceivedAt.IsZero() {
		email.ReceivedAt = time.Now()
	}

	result := &ClassificationResult{
		RequestTypes:    []RequestTypeResult{},
		ExtractedFields: []ExtractedField{},
	}

	// Embeddings are computed once over normalized text and shared between
	// the duplicate lookup and the inserted record.
	normalizedSubject := textnorm.Subject(email.Subject)
	normalizedBody := textnorm.Body(email.Body)
	subjectEmb := s.embed(ctx, normalizedSubject)
	bodyEmb := s.embed(ctx, normalizedBody)

	match := s.dupCache.Lookup(email, subjectEmb, bodyEmb)
	result.DuplicateConfidence = match.Confidence
	if match.IsDuplicate {
		// Classification still runs for duplicates so the caller sees both
		// the duplicate signal and what the email was classified as.
		result.IsDuplicate = true
		result.DuplicateReason = strPtr(match.Reason)
		result.DuplicateID = strPtr(match.MatchedID)
		s.logger.Info("Duplicate email detected",
			zap.String("sender", email.Sender),
			zap.String("matched_id", match.MatchedID),
			zap.Float64("confidence", match.Confidence))
	}

	requestTypes, classifyErr := s.classify(ctx, email)
	if classifyErr != nil {
		s.logger.Error("Classification failed", zap.Error(classifyErr), zap.String("sender", email.Sender))
		result.Error = strPtr(errorLabel(classifyErr))
	} else {
		result.RequestTypes = requestTypes
		primary := result.Primary()
		result.SupportGroup = s.supportGroupFor(primary.RequestType)

		fields, extractErr := s.extractor.ExtractFields(ctx, email, *primary, s.requiredAttributesFor(primary))
		if extractErr != nil {
			s.logger.Error("Field extraction failed", zap.Error(extractErr), zap.String("sender", email.Sender))
			result.Error = strPtr(errorLabel(extractErr))
		} else {
			result.ExtractedFields = fields
		}
	}

	// Insert even when the email is itself a duplicate, so later arrivals
	// can still be compared against it.
	s.dupCache.Insert(s.buildRecord(email, normalizedSubject, normalizedBody, subjectEmb, bodyEmb, result))

	result.ProcessingTimeMs = float64(time.Since(start).Microseconds()) / 1000.0

	if s.analytics != nil {
		if err := s.analytics.Record(ctx, email, result); err != nil {
			s.logger.Error("Failed to record classification result", zap.Error(err))
		}
	}

	return result, nil
}

// classify invokes the classification model with the taxonomy and parses its
// output, retrying once with the next rotated key on retryable failures.
func (s *ClassifierService) classify(ctx context.Context, email *InboundEmail) ([]RequestTypeResult, error) {
	types, err := s.taxonomy.GetRequestTypes()
	if err != nil {
		return nil, fmt.Errorf("failed to load request type taxonomy: %w", err)
	}

	systemPrompt, userPrompt, err := buildClassificationPrompts(email, types)
	if err != nil {
		return nil, err
	}

	raw, err := s.llmClient.Complete(ctx, systemPrompt, userPrompt)
	if err != nil && IsRetryable(err) {
		s.logger.Warn("Retrying classification with next key", zap.Error(err))
		raw, err = s.llmClient.Complete(ctx, systemPrompt, userPrompt)
	}
	if err != nil {
		return nil, err
	}

	results, err := ParseRequestTypes(raw)
	if err != nil {
		return nil, err
	}
	return normalizePrimary(results), nil
}

// normalizePrimary enforces exactly one is_primary entry. When the model
// marks zero or several, the highest-confidence entry wins, first listed on
// a tie, and the rest are demoted.
func normalizePrimary(results []RequestTypeResult) []RequestTypeResult {
	primaries := 0
	for i := range results {
		if results[i].IsPrimary {
			primaries++
		}
	}
	if primaries == 1 {
		return results
	}

	best := 0
	for i := 1; i < len(results); i++ {
		if results[i].Confidence > results[best].Confidence {
			best = i
		}
	}
	for i := range results {
		results[i].IsPrimary = i == best
	}
	return results
}

func (s *ClassifierService) embed(ctx context.Context, text string) []float32 {
	if text == "" {
		return nil
	}
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		// Degraded mode: the scorer falls back to lexical similarity when
		// embeddings are missing, so this is recovered locally.
		s.logger.Warn("Embedding unavailable, degrading to lexical similarity", zap.Error(err))
		return nil
	}
	return vec
}

func (s *ClassifierService) supportGroupFor(requestType string) string {
	types, err := s.taxonomy.GetRequestTypes()
	if err != nil {
		return ""
	}
	for _, t := range types {
		if t.Name == requestType {
			return t.SupportGroup
		}
	}
	return ""
}

func (s *ClassifierService) requiredAttributesFor(primary *RequestTypeResult) []string {
	types, err := s.taxonomy.GetRequestTypes()
	if err != nil {
		return nil
	}
	for _, t := range types {
		if t.Name != primary.RequestType {
			continue
		}
		for _, sub := range t.SubRequestTypes {
			if sub.Name == primary.SubRequestType {
				return sub.RequiredAttributes
			}
		}
	}
	return nil
}

func (s *ClassifierService) buildRecord(
	email *InboundEmail,
	normalizedSubject, normalizedBody string,
	subjectEmb, bodyEmb []float32,
	result *ClassificationResult,
) *ProcessedEmailRecord {
	return &ProcessedEmailRecord{
		ID:               recordID(email.MessageID),
		Sender:           email.Sender,
		Recipient:        email.Recipient,
		ThreadID:         DeriveThreadID(email),
		MessageID:        email.MessageID,
		InReplyTo:        email.InReplyTo,
		References:       email.References,
		SourceIP:         email.SourceIP,
		SubjectText:      normalizedSubject,
		BodyText:         normalizedBody,
		SubjectEmbedding: subjectEmb,
		BodyEmbedding:    bodyEmb,
		ReceivedAt:       email.ReceivedAt,
		Snapshot:         result,
	}
}

// DeriveThreadID returns the explicit thread id when present, otherwise the
// first reference, otherwise the in-reply-to header.
func DeriveThreadID(email *InboundEmail) string {
	if email.ThreadID != "" {
		return email.ThreadID
	}
	if len(email.References) > 0 {
		return email.References[0]
	}
	return email.InReplyTo
}

// recordID derives a stable id from the message id when one exists, so the
// same message always maps to the same record.
func recordID(messageID string) string {
	if messageID == "" {
		return uuid.NewString()
	}
	sum := md5.Sum([]byte(messageID))
	return hex.EncodeToString(sum[:])
}

func validateEmail(email *InboundEmail) error {
	if email == nil {
		return fmt.Errorf("%w: missing email", ErrInvalidInput)
	}
	if strings.TrimSpace(email.Sender) == "" {
		return fmt.Errorf("%w: sender is required", ErrInvalidInput)
	}
	if strings.TrimSpace(email.Body) == "" {
		return fmt.Errorf("%w: email content cannot be empty", ErrInvalidInput)
	}
	return nil
}

// errorLabel maps pipeline failures to the stable error names surfaced on
// the classification result.
func errorLabel(err error) string {
	switch {
	case errors.Is(err, ErrUpstreamExhausted):
		return "UpstreamExhausted"
	case errors.Is(err, ErrUpstreamTimeout):
		return "UpstreamTimeout"
	case errors.Is(err, ErrMalformedModelResponse):
		return "MalformedModelResponse"
	default:
		return err.Error()
	}
}

func buildClassificationPrompts(email *InboundEmail, types []RequestType) (string, string, error) {
	taxonomyJSON, err := json.MarshalIndent(types, "", "  ")
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal taxonomy: %w", err)
	}

	systemPrompt := fmt.Sprintf(`You are an AI assistant specializing in classifying commercial lending service emails.

TASK:
Analyze the provided email and attachments to identify all request types and sub-request types based on the sender's intent.
Determine which request is the primary intent if multiple are present.

AVAILABLE REQUEST TYPES:
%s

YOUR RESPONSE MUST BE A VALID JSON ARRAY of objects with this structure:
[
  {
    "request_type": "Main request type",
    "sub_request_type": "Sub-request type",
    "confidence": 0.95,
    "reasoning": "Detailed explanation for why this classification was chosen",
    "is_primary": true
  }
]

RULES:
- Prioritize the email content over attachments for determining request type
- The primary request should represent the sender's main intent
- Provide confidence scores between 0 and 1 (higher = more confident)
- Include detailed reasoning for each classification
- Only one request type should be marked as primary (is_primary: true)
- If multiple request types are present, rank them by relevance
- Match request types exactly as provided in the available types

Respond only with the JSON array and nothing else.`, string(taxonomyJSON))

	userPrompt := fmt.Sprintf(`EMAIL METADATA:
- Sender: %s
- Subject: %s
- Received Date: %s

EMAIL CONTENT:
%s%s

Based on the above email content and attachments, identify all request types and sub-request types.`,
		email.Sender, email.Subject, email.ReceivedAt.Format(time.RFC3339),
		email.Body, FormatAttachments(email.Attachments))

	return systemPrompt, userPrompt, nil
}

// FormatAttachments renders pre-extracted attachment text for inclusion in
// a prompt, ordered by attachment index.
func FormatAttachments(attachments []Attachment) string {
	if len(attachments) == 0 {
		return ""
	}
	sorted := make([]Attachment, len(attachments))
	copy(sorted, attachments)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })

	var b strings.Builder
	for _, a := range sorted {
		fmt.Fprintf(&b, "\n\nATTACHMENT %d: %s\n%s", a.Index, a.Filename, a.Text)
	}
	return b.String()
}

func strPtr(s string) *string {
	return &s
}
