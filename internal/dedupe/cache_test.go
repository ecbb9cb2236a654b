package dedupe

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mikey/llm-email-classifier/internal/core"
)

var cacheBase = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func newTestCache(capacity int, retention time.Duration, now *time.Time) *Cache {
	c := NewCache(capacity, retention, NewScorer(DefaultScorerConfig()), zap.NewNop())
	c.now = func() time.Time { return *now }
	return c
}

func cachedRecord(id string, receivedAt time.Time) *core.ProcessedEmailRecord {
	return &core.ProcessedEmailRecord{
		ID:          id,
		Sender:      "ops@client.example.com",
		Recipient:   "servicing@bank.example.com",
		ThreadID:    "<thread-1@client.example.com>",
		MessageID:   "<" + id + "@client.example.com>",
		SubjectText: "Funding request for deal ABC",
		BodyText:    "Please remit USD 50,000 to the facility account by Friday.",
		ReceivedAt:  receivedAt,
	}
}

func inboundLike(rec *core.ProcessedEmailRecord, receivedAt time.Time) *core.InboundEmail {
	return &core.InboundEmail{
		Sender:     rec.Sender,
		Recipient:  rec.Recipient,
		Subject:    rec.SubjectText,
		Body:       rec.BodyText,
		ThreadID:   rec.ThreadID,
		ReceivedAt: receivedAt,
	}
}

func TestLookupMessageIDMatchIsCertain(t *testing.T) {
	now := cacheBase
	c := newTestCache(10, 14*24*time.Hour, &now)

	rec := cachedRecord("r1", cacheBase.Add(-time.Hour))
	c.Insert(rec)

	email := inboundLike(rec, cacheBase)
	email.MessageID = rec.MessageID

	match := c.Lookup(email, nil, nil)
	assert.True(t, match.IsDuplicate)
	assert.Equal(t, 1.0, match.Confidence)
	assert.Equal(t, "r1", match.MatchedID)
	assert.Contains(t, match.Reason, "Duplicate message ID")
}

func TestLookupSimilarityAboveThreshold(t *testing.T) {
	now := cacheBase
	c := newTestCache(10, 14*24*time.Hour, &now)

	rec := cachedRecord("r1", cacheBase)
	c.Insert(rec)

	// Same thread, same text, no time gap: a clear duplicate.
	match := c.Lookup(inboundLike(rec, cacheBase), nil, nil)
	assert.True(t, match.IsDuplicate)
	assert.InDelta(t, 1.0, match.Confidence, 1e-9)
	assert.Equal(t, "r1", match.MatchedID)
	assert.Contains(t, match.Reason, "Duplicate email from ops@client.example.com")
	assert.Contains(t, match.Reason, "matching metadata")
	assert.Contains(t, match.Reason, "similar content")
}

func TestLookupBelowThresholdReportsScoreOnly(t *testing.T) {
	now := cacheBase
	c := newTestCache(10, 14*24*time.Hour, &now)

	rec := cachedRecord("r1", cacheBase)
	c.Insert(rec)

	// Different sender and no thread linkage: metadata is zero, so only
	// content contributes. 0.4 * 1.0 is well below the 0.8 threshold.
	email := inboundLike(rec, cacheBase)
	email.Sender = "someone@other.example.org"
	email.Recipient = ""
	email.ThreadID = ""

	match := c.Lookup(email, nil, nil)
	assert.False(t, match.IsDuplicate)
	assert.InDelta(t, 0.4, match.Confidence, 1e-9)
	assert.Equal(t, "r1", match.MatchedID)
	assert.Empty(t, match.Reason)
}

func TestLookupPrefersMostRecentOnTie(t *testing.T) {
	now := cacheBase
	c := newTestCache(10, 14*24*time.Hour, &now)

	older := cachedRecord("older", cacheBase.Add(-time.Hour))
	newer := cachedRecord("newer", cacheBase.Add(time.Hour))
	c.Insert(older)
	c.Insert(newer)

	// The candidate sits exactly between the two records, so both score
	// identically and recency breaks the tie.
	match := c.Lookup(inboundLike(older, cacheBase), nil, nil)
	assert.True(t, match.IsDuplicate)
	assert.Equal(t, "newer", match.MatchedID)
}

func TestLookupIgnoresRecordsOutsideTimeWindow(t *testing.T) {
	now := cacheBase
	c := newTestCache(10, 14*24*time.Hour, &now)

	rec := cachedRecord("r1", cacheBase.Add(-80*time.Hour))
	c.Insert(rec)

	match := c.Lookup(inboundLike(rec, cacheBase), nil, nil)
	assert.False(t, match.IsDuplicate)
	assert.Zero(t, match.Confidence)
	assert.Empty(t, match.MatchedID)
}

func TestInsertEvictsOldestAtCapacity(t *testing.T) {
	now := cacheBase
	c := newTestCache(2, 14*24*time.Hour, &now)

	c.Insert(cachedRecord("r1", cacheBase.Add(-3*time.Hour)))
	c.Insert(cachedRecord("r2", cacheBase.Add(-2*time.Hour)))
	c.Insert(cachedRecord("r3", cacheBase.Add(-time.Hour)))

	require.Equal(t, 2, c.Stats().Size)

	email := &core.InboundEmail{
		Sender:     "ops@client.example.com",
		Body:       "ping",
		MessageID:  "<r1@client.example.com>",
		ReceivedAt: cacheBase,
	}
	match := c.Lookup(email, nil, nil)
	assert.NotEqual(t, "r1", match.MatchedID)

	email.MessageID = "<r3@client.example.com>"
	match = c.Lookup(email, nil, nil)
	assert.Equal(t, "r3", match.MatchedID)
	assert.Equal(t, 1.0, match.Confidence)
}

func TestInsertSameIDIsIdempotent(t *testing.T) {
	now := cacheBase
	c := newTestCache(10, 14*24*time.Hour, &now)

	c.Insert(cachedRecord("r1", cacheBase.Add(-2*time.Hour)))
	c.Insert(cachedRecord("r1", cacheBase.Add(-time.Hour)))

	assert.Equal(t, 1, c.Stats().Size)
}

func TestExpiredRecordsPrunedLazily(t *testing.T) {
	now := cacheBase
	c := newTestCache(10, 14*24*time.Hour, &now)

	c.Insert(cachedRecord("r1", cacheBase))
	require.Equal(t, 1, c.Stats().Size)

	now = cacheBase.Add(15 * 24 * time.Hour)
	match := c.Lookup(&core.InboundEmail{
		Sender:     "other@example.org",
		Body:       "unrelated",
		ReceivedAt: now,
	}, nil, nil)
	assert.Empty(t, match.MatchedID)
	assert.Equal(t, 0, c.Stats().Size)
}

func TestStatsEchoesConfiguration(t *testing.T) {
	now := cacheBase
	c := newTestCache(100, 14*24*time.Hour, &now)

	stats := c.Stats()
	assert.Equal(t, 100, stats.Capacity)
	assert.Equal(t, 14, stats.RetentionDays)
	assert.Equal(t, 0.8, stats.SemanticThreshold)
	assert.Equal(t, 0.6, stats.MetadataWeight)
	assert.Equal(t, 72.0, stats.TimeWindowHours)
}
