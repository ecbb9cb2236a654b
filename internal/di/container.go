package di

import (
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/llm-email-classifier/internal/adapters/httpapi"
	"github.com/mikey/llm-email-classifier/internal/adapters/smtpingest"
	"github.com/mikey/llm-email-classifier/internal/config"
	"github.com/mikey/llm-email-classifier/internal/core"
	"github.com/mikey/llm-email-classifier/internal/factory"
	"github.com/mikey/llm-email-classifier/internal/keypool"
	"github.com/mikey/llm-email-classifier/internal/logging"
	"github.com/mikey/llm-email-classifier/internal/taxonomy"
)

// BuildContainer creates and configures a dependency injection container
func BuildContainer() (*dig.Container, error) {
	container := dig.New()

	// Register configuration
	if err := container.Provide(config.New); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(logging.InitLogger); err != nil {
		return nil, err
	}

	// Register factories
	if err := container.Provide(factory.NewKeyPoolFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewLLMFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewEmbeddingFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewCacheFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewAnalyticsFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewExtractorFactory); err != nil {
		return nil, err
	}

	// Register API key pool
	if err := container.Provide(func(f *factory.KeyPoolFactory) (*keypool.Pool, error) {
		return f.CreateKeyPool()
	}); err != nil {
		return nil, err
	}

	// Register embedding provider
	if err := container.Provide(func(f *factory.EmbeddingFactory) (core.EmbeddingProvider, error) {
		return f.CreateEmbeddingProvider()
	}); err != nil {
		return nil, err
	}

	// Register duplicate cache
	if err := container.Provide(func(f *factory.CacheFactory) core.DuplicateCache {
		return f.CreateDuplicateCache()
	}); err != nil {
		return nil, err
	}

	// Register taxonomy provider
	if err := container.Provide(func(cfg *config.Config, logger *zap.Logger) core.TaxonomyProvider {
		return taxonomy.NewFileProvider(cfg.GetString("taxonomy.path"), logger)
	}); err != nil {
		return nil, err
	}

	// Register analytics sink
	if err := container.Provide(func(f *factory.AnalyticsFactory) (core.AnalyticsSink, error) {
		return f.CreateAnalyticsSink()
	}); err != nil {
		return nil, err
	}

	// Register classifier service. Classification and extraction clients are
	// built here so each task can run on its configured provider.
	if err := container.Provide(func(
		llmFactory *factory.LLMFactory,
		extractorFactory *factory.ExtractorFactory,
		embedder core.EmbeddingProvider,
		dupCache core.DuplicateCache,
		taxonomyProvider core.TaxonomyProvider,
		analytics core.AnalyticsSink,
		logger *zap.Logger,
	) (*core.ClassifierService, error) {
		classifierClient, err := llmFactory.CreateClassificationClient()
		if err != nil {
			return nil, err
		}
		extractionClient, err := llmFactory.CreateExtractionClient()
		if err != nil {
			return nil, err
		}
		extractor, err := extractorFactory.CreateExtractor(extractionClient)
		if err != nil {
			return nil, err
		}
		return core.NewClassifierService(
			classifierClient,
			embedder,
			dupCache,
			extractor,
			taxonomyProvider,
			analytics,
			logger,
		), nil
	}); err != nil {
		return nil, err
	}

	// Register HTTP server
	if err := container.Provide(func(
		cfg *config.Config,
		service *core.ClassifierService,
		dupCache core.DuplicateCache,
		pool *keypool.Pool,
		logger *zap.Logger,
	) (*httpapi.Server, error) {
		readTimeout, err := cfg.GetDuration("server.http.read_timeout")
		if err != nil {
			return nil, err
		}
		writeTimeout, err := cfg.GetDuration("server.http.write_timeout")
		if err != nil {
			return nil, err
		}
		return httpapi.NewServer(
			service,
			dupCache,
			pool,
			cfg.GetString("server.http.listen_address"),
			readTimeout,
			writeTimeout,
			logger,
		), nil
	}); err != nil {
		return nil, err
	}

	// Register SMTP ingestion, nil when disabled
	if err := container.Provide(func(
		cfg *config.Config,
		service *core.ClassifierService,
		logger *zap.Logger,
	) *smtpingest.Ingest {
		if !cfg.GetBool("server.smtp.enabled") {
			return nil
		}
		return smtpingest.NewIngest(
			service,
			cfg.GetString("server.smtp.listen_address"),
			cfg.GetString("server.smtp.relay_address"),
			cfg.GetString("server.smtp.domain"),
			smtpingest.Headers{
				RequestType:     cfg.GetString("server.smtp.headers.request_type"),
				SubRequestType:  cfg.GetString("server.smtp.headers.sub_request_type"),
				Confidence:      cfg.GetString("server.smtp.headers.confidence"),
				SupportGroup:    cfg.GetString("server.smtp.headers.support_group"),
				Duplicate:       cfg.GetString("server.smtp.headers.duplicate"),
				DuplicateReason: cfg.GetString("server.smtp.headers.duplicate_reason"),
			},
			logger,
		)
	}); err != nil {
		return nil, err
	}

	return container, nil
}
