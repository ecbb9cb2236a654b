package factory

import (
	"time"

	"go.uber.org/zap"

	"github.com/mikey/llm-email-classifier/internal/config"
	"github.com/mikey/llm-email-classifier/internal/core"
	"github.com/mikey/llm-email-classifier/internal/dedupe"
)

// CacheFactory creates the duplicate detection cache
type CacheFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewCacheFactory creates a new cache factory
func NewCacheFactory(cfg *config.Config, logger *zap.Logger) *CacheFactory {
	return &CacheFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateDuplicateCache builds the scorer and cache from configuration.
func (f *CacheFactory) CreateDuplicateCache() core.DuplicateCache {
	dedupeCfg := f.cfg.GetDedupe()

	scorer := dedupe.NewScorer(dedupe.ScorerConfig{
		SemanticThreshold: dedupeCfg.SemanticThreshold,
		MetadataWeight:    dedupeCfg.MetadataWeight,
		SubjectWeight:     dedupeCfg.SubjectWeight,
		ContentWeight:     dedupeCfg.ContentWeight,
		TimeWindow:        time.Duration(dedupeCfg.TimeWindowHours * float64(time.Hour)),
	})

	retention := time.Duration(dedupeCfg.CacheDays) * 24 * time.Hour
	return dedupe.NewCache(dedupeCfg.CacheSize, retention, scorer, f.logger)
}
