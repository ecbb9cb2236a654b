// Package taxonomy supplies the request-type definitions that drive
// classification. The taxonomy is authored outside this service; providers
// here only load and serve it.
package taxonomy

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/mikey/llm-email-classifier/internal/core"
)

// FileProvider serves request types from a JSON file. The file is read once
// on first use and cached for the life of the process.
type FileProvider struct {
	path   string
	logger *zap.Logger

	once  sync.Once
	types []core.RequestType
	err   error
}

// NewFileProvider creates a provider reading from the given JSON file.
func NewFileProvider(path string, logger *zap.Logger) *FileProvider {
	return &FileProvider{path: path, logger: logger}
}

// GetRequestTypes returns the taxonomy, loading it on first call.
func (p *FileProvider) GetRequestTypes() ([]core.RequestType, error) {
	p.once.Do(func() {
		data, err := os.ReadFile(p.path)
		if err != nil {
			p.err = fmt.Errorf("failed to read taxonomy file %s: %w", p.path, err)
			return
		}

		var types []core.RequestType
		if err := json.Unmarshal(data, &types); err != nil {
			p.err = fmt.Errorf("failed to parse taxonomy file %s: %w", p.path, err)
			return
		}
		if len(types) == 0 {
			p.err = fmt.Errorf("taxonomy file %s defines no request types", p.path)
			return
		}

		p.types = types
		p.logger.Info("Loaded request type taxonomy",
			zap.String("path", p.path),
			zap.Int("request_types", len(types)))
	})
	return p.types, p.err
}

// StaticProvider serves a fixed in-memory taxonomy.
type StaticProvider struct {
	types []core.RequestType
}

// NewStaticProvider wraps an in-memory taxonomy, useful for tests and
// embedded defaults.
func NewStaticProvider(types []core.RequestType) *StaticProvider {
	return &StaticProvider{types: types}
}

func (p *StaticProvider) GetRequestTypes() ([]core.RequestType, error) {
	if len(p.types) == 0 {
		return nil, fmt.Errorf("no request types configured")
	}
	return p.types, nil
}
