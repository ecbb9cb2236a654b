package factory

import (
	"go.uber.org/zap"

	"github.com/mikey/llm-email-classifier/internal/config"
	"github.com/mikey/llm-email-classifier/internal/keypool"
)

// KeyPoolFactory creates the shared API key pool
type KeyPoolFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewKeyPoolFactory creates a new key pool factory
func NewKeyPoolFactory(cfg *config.Config, logger *zap.Logger) *KeyPoolFactory {
	return &KeyPoolFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateKeyPool builds the pool from the keys section of the configuration.
func (f *KeyPoolFactory) CreateKeyPool() (*keypool.Pool, error) {
	keys, err := f.cfg.GetServiceKeys()
	if err != nil {
		return nil, err
	}

	pool := keypool.NewPool(f.logger)
	for service, entries := range keys {
		for _, entry := range entries {
			pool.Register(service, entry.Key, entry.CallLimit, entry.PeriodMinutes)
		}
	}
	return pool, nil
}
