package dedupe

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/llm-email-classifier/internal/core"
)

// Cache is a bounded, time-windowed in-memory store of processed email
// fingerprints. Expired entries are pruned lazily at the two entry points
// (Lookup and Insert) instead of by a background sweeper.
type Cache struct {
	mu        sync.Mutex
	records   map[string]*core.ProcessedEmailRecord
	order     []string
	capacity  int
	retention time.Duration
	scorer    *Scorer
	logger    *zap.Logger
	now       func() time.Time
}

// NewCache creates a new duplicate cache
func NewCache(capacity int, retention time.Duration, scorer *Scorer, logger *zap.Logger) *Cache {
	return &Cache{
		records:   make(map[string]*core.ProcessedEmailRecord),
		capacity:  capacity,
		retention: retention,
		scorer:    scorer,
		logger:    logger,
		now:       time.Now,
	}
}

// Lookup compares the candidate against all live cached records and returns
// the best match. Comparison cost is bounded by the live-window cache size.
func (c *Cache) Lookup(email *core.InboundEmail, subjectEmbedding, bodyEmbedding []float32) core.DuplicateMatch {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pruneLocked()

	candidate := NewCandidate(email, subjectEmbedding, bodyEmbedding)

	// An identical Message-ID is the same email, full stop.
	if candidate.MessageID != "" {
		for _, id := range c.order {
			rec := c.records[id]
			if rec.MessageID == candidate.MessageID {
				return core.DuplicateMatch{
					IsDuplicate: true,
					Confidence:  1.0,
					MatchedID:   rec.ID,
					Reason: fmt.Sprintf("Duplicate message ID from %s (received: %s)",
						rec.Sender, rec.ReceivedAt.Format("2006-01-02 15:04")),
				}
			}
		}
	}

	var (
		best      *core.ProcessedEmailRecord
		bestScore Breakdown
		found     bool
	)
	for _, id := range c.order {
		rec := c.records[id]
		bd, ok := c.scorer.Score(candidate, rec)
		if !ok {
			continue
		}
		if !found || bd.Final > bestScore.Final ||
			(bd.Final == bestScore.Final && rec.ReceivedAt.After(best.ReceivedAt)) {
			best, bestScore, found = rec, bd, true
		}
	}

	if !found {
		return core.DuplicateMatch{}
	}

	match := core.DuplicateMatch{
		Confidence: bestScore.Final,
		MatchedID:  best.ID,
	}
	if bestScore.Final >= c.scorer.Config().SemanticThreshold {
		match.IsDuplicate = true
		match.Reason = duplicateReason(best, bestScore)
		c.logger.Debug("Duplicate match",
			zap.String("matched_id", best.ID),
			zap.Float64("score", bestScore.Final),
			zap.Float64("metadata", bestScore.Metadata),
			zap.Float64("content", bestScore.Content))
	}
	return match
}

// Insert stores a record, evicting the globally oldest live record when the
// cache is at capacity. It always succeeds.
func (c *Cache) Insert(record *core.ProcessedEmailRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pruneLocked()

	if _, exists := c.records[record.ID]; exists {
		c.removeFromOrderLocked(record.ID)
	}
	for len(c.order) >= c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.records, oldest)
		c.logger.Debug("Cache at capacity, evicted oldest record", zap.String("id", oldest))
	}

	c.records[record.ID] = record
	c.order = append(c.order, record.ID)
}

// Stats returns the current cache state.
func (c *Cache) Stats() core.CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	cfg := c.scorer.Config()
	return core.CacheStats{
		Size:              len(c.order),
		Capacity:          c.capacity,
		RetentionDays:     int(c.retention.Hours() / 24),
		SemanticThreshold: cfg.SemanticThreshold,
		MetadataWeight:    cfg.MetadataWeight,
		SubjectWeight:     cfg.SubjectWeight,
		ContentWeight:     cfg.ContentWeight,
		TimeWindowHours:   cfg.TimeWindow.Hours(),
	}
}

// pruneLocked removes every record older than the retention window. It
// scans on time value rather than insertion order so out-of-order arrivals
// cannot strand expired entries.
func (c *Cache) pruneLocked() {
	cutoff := c.now().Add(-c.retention)
	kept := c.order[:0]
	pruned := 0
	for _, id := range c.order {
		if c.records[id].ReceivedAt.Before(cutoff) {
			delete(c.records, id)
			pruned++
			continue
		}
		kept = append(kept, id)
	}
	c.order = kept
	if pruned > 0 {
		c.logger.Debug("Pruned expired cache entries", zap.Int("pruned", pruned))
	}
}

func (c *Cache) removeFromOrderLocked(id string) {
	for i, existing := range c.order {
		if existing == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}

// duplicateReason builds a human-readable explanation for a duplicate match.
func duplicateReason(rec *core.ProcessedEmailRecord, bd Breakdown) string {
	reason := fmt.Sprintf("Duplicate email from %s (received: %s)",
		rec.Sender, rec.ReceivedAt.Format("2006-01-02 15:04"))
	if rec.SubjectText != "" {
		reason += fmt.Sprintf(" with subject '%s'", rec.SubjectText)
	}

	var details []string
	if bd.Metadata > 0.8 {
		details = append(details, "matching metadata")
	}
	if bd.Body > 0.8 {
		details = append(details, "similar content")
	}
	if bd.Subject > 0.8 {
		details = append(details, "similar subject")
	}
	if len(details) > 0 {
		reason += fmt.Sprintf(" (%s)", strings.Join(details, ", "))
	}
	return reason
}
