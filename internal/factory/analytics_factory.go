package factory

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/mikey/llm-email-classifier/internal/adapters/analytics"
	"github.com/mikey/llm-email-classifier/internal/config"
	"github.com/mikey/llm-email-classifier/internal/core"
)

// AnalyticsFactory creates analytics sinks based on configuration
type AnalyticsFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewAnalyticsFactory creates a new analytics factory
func NewAnalyticsFactory(cfg *config.Config, logger *zap.Logger) *AnalyticsFactory {
	return &AnalyticsFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateAnalyticsSink creates an analytics sink based on the configuration
func (f *AnalyticsFactory) CreateAnalyticsSink() (core.AnalyticsSink, error) {
	sinkType := f.cfg.GetString("analytics.type")

	switch sinkType {
	case "none", "":
		return analytics.NewNoopSink(), nil
	case "sqlite":
		sqlitePath := f.cfg.GetString("analytics.sqlite_path")
		if err := os.MkdirAll(filepath.Dir(sqlitePath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create SQLite directory: %w", err)
		}
		return analytics.NewSQLiteSink(sqlitePath, f.logger)
	case "mysql":
		mysqlDSN := f.cfg.GetString("analytics.mysql_dsn")
		return analytics.NewMySQLSink(mysqlDSN, f.logger)
	default:
		return nil, fmt.Errorf("unsupported analytics sink type: %s", sinkType)
	}
}
