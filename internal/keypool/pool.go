// Package keypool manages rate-limited API credentials with round-robin
// rotation across multiple keys for the same upstream service.
package keypool

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/llm-email-classifier/internal/core"
)

// Entry is one registered credential with its usage window. Counters are
// only touched while holding the pool lock.
type Entry struct {
	Service       string
	Key           string
	CallLimit     int
	PeriodMinutes int

	usedCalls       int
	windowStartedAt time.Time
}

// Usage describes the current state of one key, with the secret masked.
type Usage struct {
	Service          string `json:"service"`
	KeyMasked        string `json:"key_masked"`
	Used             int    `json:"used"`
	Limit            int    `json:"limit"`
	PeriodMinutes    int    `json:"period_minutes"`
	ExpiresInSeconds *int   `json:"expires_in_seconds"`
}

// Pool holds rate-limited credentials per upstream service. Acquire and the
// usage accounting for the selected key happen inside a single critical
// section, so concurrent callers can never jointly exceed a key's limit.
type Pool struct {
	mu     sync.Mutex
	keys   map[string][]*Entry
	cursor map[string]int
	logger *zap.Logger
	now    func() time.Time
}

// NewPool creates a new empty key pool
func NewPool(logger *zap.Logger) *Pool {
	return &Pool{
		keys:   make(map[string][]*Entry),
		cursor: make(map[string]int),
		logger: logger,
		now:    time.Now,
	}
}

// Register adds a credential for a service.
func (p *Pool) Register(service, key string, callLimit, periodMinutes int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.keys[service] = append(p.keys[service], &Entry{
		Service:       service,
		Key:           key,
		CallLimit:     callLimit,
		PeriodMinutes: periodMinutes,
	})
	p.logger.Info("Registered API key",
		zap.String("service", service),
		zap.Int("call_limit", callLimit),
		zap.Int("period_minutes", periodMinutes))
}

// Acquire selects the next eligible key for a service in round-robin order
// and reserves one call against its budget. It never blocks waiting for
// quota; when every key is over its limit it fails with ErrUpstreamExhausted.
// The reserved call counts even if the upstream request later times out.
func (p *Pool) Acquire(service string) (*Entry, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	entries := p.keys[service]
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: no api keys registered for service %q", core.ErrUpstreamExhausted, service)
	}

	start := p.cursor[service]
	for i := 0; i < len(entries); i++ {
		entry := entries[(start+i)%len(entries)]
		p.resetIfExpiredLocked(entry)
		if entry.usedCalls < entry.CallLimit {
			p.cursor[service] = (start + i + 1) % len(entries)
			p.recordLocked(entry)
			return entry, nil
		}
	}

	p.logger.Warn("All API keys exhausted for service", zap.String("service", service))
	return nil, fmt.Errorf("%w: rate limit exceeded for all %s api keys", core.ErrUpstreamExhausted, service)
}

// RecordUsage reserves an additional call against an already-acquired key,
// for callers that reuse a key for more than one upstream request.
func (p *Pool) RecordUsage(entry *Entry) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.resetIfExpiredLocked(entry)
	p.recordLocked(entry)
}

// Reset zeroes the usage counters for one service, or for all services when
// service is empty.
func (p *Pool) Reset(service string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for svc, entries := range p.keys {
		if service != "" && svc != service {
			continue
		}
		for _, entry := range entries {
			entry.usedCalls = 0
			entry.windowStartedAt = time.Time{}
		}
	}
	p.logger.Info("Reset API key usage counters", zap.String("service", service))
}

// UsageInfo returns the state of every registered key with secrets masked.
func (p *Pool) UsageInfo() []Usage {
	p.mu.Lock()
	defer p.mu.Unlock()

	var usages []Usage
	for _, entries := range p.keys {
		for _, entry := range entries {
			p.resetIfExpiredLocked(entry)
			u := Usage{
				Service:       entry.Service,
				KeyMasked:     maskKey(entry.Key),
				Used:          entry.usedCalls,
				Limit:         entry.CallLimit,
				PeriodMinutes: entry.PeriodMinutes,
			}
			if !entry.windowStartedAt.IsZero() {
				remaining := int(entry.windowStartedAt.Add(entry.period()).Sub(p.now()).Seconds())
				if remaining < 0 {
					remaining = 0
				}
				u.ExpiresInSeconds = &remaining
			}
			usages = append(usages, u)
		}
	}
	return usages
}

func (p *Pool) recordLocked(entry *Entry) {
	if entry.windowStartedAt.IsZero() {
		entry.windowStartedAt = p.now()
	}
	entry.usedCalls++
	p.logger.Debug("API key call reserved",
		zap.String("service", entry.Service),
		zap.String("key", maskKey(entry.Key)),
		zap.Int("used", entry.usedCalls),
		zap.Int("limit", entry.CallLimit))
}

func (p *Pool) resetIfExpiredLocked(entry *Entry) {
	if entry.windowStartedAt.IsZero() {
		return
	}
	if p.now().Sub(entry.windowStartedAt) >= entry.period() {
		entry.usedCalls = 0
		entry.windowStartedAt = time.Time{}
	}
}

func (e *Entry) period() time.Duration {
	return time.Duration(e.PeriodMinutes) * time.Minute
}

func maskKey(key string) string {
	if len(key) <= 10 {
		return key
	}
	return key[:5] + "..." + key[len(key)-3:]
}
