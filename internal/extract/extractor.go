// Package extract pulls structured fields out of email content with an LLM,
// guided by per-request-type extraction rules.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/mikey/llm-email-classifier/internal/core"
	"github.com/mikey/llm-email-classifier/internal/utils"
)

// Rule configures extraction for one request type. PrioritySources orders
// where values should be taken from when a field appears in several places.
type Rule struct {
	PrioritySources []string `json:"priority_sources" mapstructure:"priority_sources"`
	Fields          []string `json:"fields" mapstructure:"fields"`
}

// minFieldConfidence drops extractions the model itself is unsure about.
const minFieldConfidence = 0.5

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	nonWordChars  = regexp.MustCompile(`[^\w_]`)
)

// fieldAliases maps model-chosen field names onto the canonical vocabulary
// so downstream consumers see stable keys.
var fieldAliases = map[string]string{
	"dollar_amount":      "amount",
	"payment_amount":     "amount",
	"transfer_amount":    "amount",
	"funding_amount":     "amount",
	"acct_number":        "account_number",
	"acc_number":         "account_number",
	"account_num":        "account_number",
	"acct_num":           "account_number",
	"value_dt":           "value_date",
	"payment_date":       "value_date",
	"transfer_date":      "value_date",
	"client":             "client_name",
	"customer":           "client_name",
	"customer_name":      "client_name",
	"deal":               "deal_name",
	"transaction_number": "transaction_id",
	"tx_id":              "transaction_id",
	"trans_id":           "transaction_id",
	"currency_type":      "currency",
	"beneficiary":        "beneficiary_name",
}

// Extractor asks an LLM for typed fields and validates its JSON output.
type Extractor struct {
	client        core.LLMClient
	rules         map[string]Rule
	textProcessor *utils.TextProcessor
	maxBodySize   int
	logger        *zap.Logger
}

// NewExtractor creates a field extractor. The rules map is keyed by request
// type name with a "default" entry used for unlisted types.
func NewExtractor(client core.LLMClient, rules map[string]Rule, textProcessor *utils.TextProcessor, maxBodySize int, logger *zap.Logger) *Extractor {
	if rules == nil {
		rules = map[string]Rule{}
	}
	return &Extractor{
		client:        client,
		rules:         rules,
		textProcessor: textProcessor,
		maxBodySize:   maxBodySize,
		logger:        logger,
	}
}

type rawField struct {
	FieldName  *string     `json:"field_name"`
	Value      interface{} `json:"value"`
	Confidence *float64    `json:"confidence"`
	Source     *string     `json:"source"`
}

// ExtractFields returns the structured fields found in the email for the
// identified request type. Fields the model reports with confidence below
// 0.5 are dropped, and field names are normalized to the canonical set.
func (e *Extractor) ExtractFields(ctx context.Context, email *core.InboundEmail, primary core.RequestTypeResult, requiredAttributes []string) ([]core.ExtractedField, error) {
	rule := e.ruleFor(primary.RequestType)
	fields := mergeFields(rule.Fields, requiredAttributes)

	systemPrompt, userPrompt := e.buildPrompts(email, primary, rule, fields)

	raw, err := e.client.Complete(ctx, systemPrompt, userPrompt)
	if err != nil {
		return nil, fmt.Errorf("field extraction request failed: %w", err)
	}

	payload, ok := core.ExtractJSONArray(raw)
	if !ok {
		e.logger.Error("Could not locate JSON array in extraction response",
			zap.String("response", truncateForLog(raw)))
		return nil, fmt.Errorf("%w: no JSON array in extraction response", core.ErrMalformedModelResponse)
	}

	var items []rawField
	if err := json.Unmarshal([]byte(payload), &items); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrMalformedModelResponse, err)
	}

	var out []core.ExtractedField
	for _, item := range items {
		if item.FieldName == nil || item.Value == nil || item.Confidence == nil || item.Source == nil {
			continue
		}
		if *item.Confidence < minFieldConfidence {
			continue
		}
		out = append(out, core.ExtractedField{
			FieldName:  NormalizeFieldName(*item.FieldName),
			Value:      item.Value,
			Confidence: core.ClampConfidence(*item.Confidence),
			Source:     *item.Source,
		})
	}

	e.logger.Info("Extracted fields from email",
		zap.String("request_type", primary.RequestType),
		zap.Int("field_count", len(out)))
	return out, nil
}

func (e *Extractor) ruleFor(requestType string) Rule {
	if rule, ok := e.rules[requestType]; ok {
		return rule
	}
	if rule, ok := e.rules["default"]; ok {
		return rule
	}
	return Rule{PrioritySources: []string{"email_body", "attachment"}}
}

func (e *Extractor) buildPrompts(email *core.InboundEmail, primary core.RequestTypeResult, rule Rule, fields []string) (string, string) {
	fieldsJSON, _ := json.MarshalIndent(fields, "", "  ")
	sourcesJSON, _ := json.MarshalIndent(rule.PrioritySources, "", "  ")

	systemPrompt := fmt.Sprintf(`You are an AI assistant specializing in extracting data from banking service emails.

TASK:
Extract relevant fields based on the identified request type: %s - %s

YOUR RESPONSE MUST BE A VALID JSON ARRAY of objects with this structure:
[
  {
    "field_name": "amount",
    "value": 50000,
    "confidence": 0.98,
    "source": "email_body"
  },
  ...
]

FIELDS TO EXTRACT:
%s

PRIORITY SOURCES (in order of preference):
%s

RULES:
- Source should be "email_body" or "attachment_1", "attachment_2", etc.
- Only extract fields you are confident about (provide confidence score 0-1)
- For numerical values, provide them as numbers not strings when appropriate
- Format dates in ISO format (YYYY-MM-DD) when possible
- Look for specific evidence within the text to support your extraction
- Prefer sources in the priority order provided above
- Don't include fields where you couldn't find any relevant information (confidence < 0.5)
- If the same field is found in multiple sources, choose the highest priority source`,
		primary.RequestType, primary.SubRequestType, fieldsJSON, sourcesJSON)

	body := e.textProcessor.ProcessText(email.Body, e.maxBodySize)
	userPrompt := fmt.Sprintf(`REQUEST TYPE: %s - %s

EMAIL CONTENT:
%s%s

Based on the above email content and attachments, extract all relevant fields.`,
		primary.RequestType, primary.SubRequestType, body, core.FormatAttachments(email.Attachments))

	return systemPrompt, userPrompt
}

// NormalizeFieldName lowercases, underscores, and canonicalizes a field name.
func NormalizeFieldName(name string) string {
	field := strings.ToLower(name)
	field = whitespaceRun.ReplaceAllString(field, "_")
	field = nonWordChars.ReplaceAllString(field, "")
	if canonical, ok := fieldAliases[field]; ok {
		return canonical
	}
	return field
}

func mergeFields(ruleFields, requiredAttributes []string) []string {
	seen := make(map[string]bool, len(ruleFields)+len(requiredAttributes))
	var out []string
	for _, f := range ruleFields {
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	for _, f := range requiredAttributes {
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	return out
}

func truncateForLog(s string) string {
	if len(s) > 500 {
		return s[:500] + "..."
	}
	return s
}
