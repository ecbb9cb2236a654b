package factory

import (
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/mikey/llm-email-classifier/internal/config"
	"github.com/mikey/llm-email-classifier/internal/core"
	"github.com/mikey/llm-email-classifier/internal/extract"
	"github.com/mikey/llm-email-classifier/internal/utils"
)

// defaultExtractionRules applies when no rules file is configured.
var defaultExtractionRules = map[string]extract.Rule{
	"default": {
		PrioritySources: []string{"email_body", "attachment"},
		Fields:          []string{"deal_name", "amount", "transaction_date"},
	},
	"Money Movement - Inbound": {
		PrioritySources: []string{"attachment", "email_body"},
		Fields:          []string{"deal_name", "amount", "account_number", "value_date", "currency"},
	},
	"Money Movement - Outbound": {
		PrioritySources: []string{"attachment", "email_body"},
		Fields:          []string{"deal_name", "amount", "beneficiary_name", "account_number", "value_date", "currency"},
	},
	"Fee Payment": {
		PrioritySources: []string{"email_body", "attachment"},
		Fields:          []string{"deal_name", "amount", "fee_type", "account_number"},
	},
}

// ExtractorFactory creates field extractors
type ExtractorFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewExtractorFactory creates a new extractor factory
func NewExtractorFactory(cfg *config.Config, logger *zap.Logger) *ExtractorFactory {
	return &ExtractorFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateExtractor builds a field extractor around the given LLM client.
func (f *ExtractorFactory) CreateExtractor(client core.LLMClient) (core.FieldExtractor, error) {
	rules, err := f.loadRules()
	if err != nil {
		return nil, err
	}

	textProcessor := utils.NewTextProcessor(f.logger)
	maxBodySize := f.cfg.GetInt("extraction.max_body_size")

	return extract.NewExtractor(client, rules, textProcessor, maxBodySize, f.logger), nil
}

func (f *ExtractorFactory) loadRules() (map[string]extract.Rule, error) {
	path := f.cfg.GetString("extraction.rules_path")
	if path == "" {
		return defaultExtractionRules, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read extraction rules file %s: %w", path, err)
	}

	var rules map[string]extract.Rule
	if err := json.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("failed to parse extraction rules file %s: %w", path, err)
	}

	f.logger.Info("Loaded extraction rules",
		zap.String("path", path),
		zap.Int("rule_count", len(rules)))
	return rules, nil
}
