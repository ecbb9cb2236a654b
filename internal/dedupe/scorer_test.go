package dedupe

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikey/llm-email-classifier/internal/core"
)

var baseTime = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func candidateAt(t time.Time) *Candidate {
	return NewCandidate(&core.InboundEmail{
		Sender:     "ops@client.example.com",
		Recipient:  "loanservicing@bank.example.com",
		Subject:    "Re: Funding request for deal ABC",
		Body:       "Please fund USD 50,000 to account 998877 with value date June 3rd.",
		ReceivedAt: t,
		ThreadID:   "thread-1",
		SourceIP:   "10.1.2.3",
	}, nil, nil)
}

func recordAt(t time.Time) *core.ProcessedEmailRecord {
	return &core.ProcessedEmailRecord{
		ID:          "rec-1",
		Sender:      "ops@client.example.com",
		Recipient:   "loanservicing@bank.example.com",
		ThreadID:    "thread-1",
		SourceIP:    "10.1.2.3",
		SubjectText: "funding request for deal abc",
		BodyText:    "please fund usd 50,000 to account 998877 with value date june 3rd.",
		ReceivedAt:  t,
	}
}

func TestScoreOutsideTimeWindow(t *testing.T) {
	s := NewScorer(DefaultScorerConfig())

	_, ok := s.Score(candidateAt(baseTime), recordAt(baseTime.Add(-73*time.Hour)))
	assert.False(t, ok)

	_, ok = s.Score(candidateAt(baseTime), recordAt(baseTime.Add(-71*time.Hour)))
	assert.True(t, ok)
}

func TestScoreIdenticalThreadFloorsAtMetadataWeight(t *testing.T) {
	cfg := DefaultScorerConfig()
	s := NewScorer(cfg)

	c := candidateAt(baseTime)
	rec := recordAt(baseTime)
	rec.SubjectText = "something else entirely"
	rec.BodyText = "unrelated content about a different deal"

	bd, ok := s.Score(c, rec)
	require.True(t, ok)
	assert.Equal(t, 1.0, bd.Metadata)
	assert.GreaterOrEqual(t, bd.Final, cfg.MetadataWeight)
}

func TestScoreReplyChainShortCircuit(t *testing.T) {
	s := NewScorer(DefaultScorerConfig())

	c := NewCandidate(&core.InboundEmail{
		Sender:     "other@elsewhere.example.com",
		Body:       "following up",
		ReceivedAt: baseTime,
		InReplyTo:  "msg-42@bank.example.com",
	}, nil, nil)
	rec := recordAt(baseTime)
	rec.ThreadID = ""
	rec.MessageID = "msg-42@bank.example.com"

	bd, ok := s.Score(c, rec)
	require.True(t, ok)
	assert.Equal(t, 1.0, bd.Metadata)
}

func TestScoreEmptyContentScoresZeroSimilarity(t *testing.T) {
	s := NewScorer(DefaultScorerConfig())

	c := NewCandidate(&core.InboundEmail{
		Sender:     "ops@client.example.com",
		ReceivedAt: baseTime,
	}, nil, nil)
	rec := recordAt(baseTime)

	bd, ok := s.Score(c, rec)
	require.True(t, ok)
	assert.Equal(t, 0.0, bd.Subject)
	assert.Equal(t, 0.0, bd.Body)
	assert.Equal(t, 0.0, bd.Content)
}

func TestScoreTimeDecay(t *testing.T) {
	s := NewScorer(DefaultScorerConfig())

	fresh, ok := s.Score(candidateAt(baseTime), recordAt(baseTime))
	require.True(t, ok)
	assert.InDelta(t, 1.0, fresh.TimeFactor, 1e-9)

	aged, ok := s.Score(candidateAt(baseTime), recordAt(baseTime.Add(-36*time.Hour)))
	require.True(t, ok)
	assert.InDelta(t, 0.75, aged.TimeFactor, 1e-9)
	assert.Less(t, aged.Final, fresh.Final)

	edge, ok := s.Score(candidateAt(baseTime), recordAt(baseTime.Add(-72*time.Hour)))
	require.True(t, ok)
	assert.InDelta(t, 0.5, edge.TimeFactor, 1e-9)
}

func TestMetadataDomainHalfCredit(t *testing.T) {
	s := NewScorer(DefaultScorerConfig())

	c := NewCandidate(&core.InboundEmail{
		Sender:     "alice@client.example.com",
		Body:       "x",
		ReceivedAt: baseTime,
	}, nil, nil)
	rec := &core.ProcessedEmailRecord{
		Sender:     "bob@client.example.com",
		BodyText:   "y",
		ReceivedAt: baseTime,
	}

	bd, ok := s.Score(c, rec)
	require.True(t, ok)
	// Only the sender channel applies; same domain earns half credit.
	assert.InDelta(t, 0.5, bd.Metadata, 1e-9)
}

func TestMetadataNormalizedByApplicableWeights(t *testing.T) {
	s := NewScorer(DefaultScorerConfig())

	c := NewCandidate(&core.InboundEmail{
		Sender:     "ops@client.example.com",
		SourceIP:   "10.1.2.3",
		Body:       "x",
		ReceivedAt: baseTime,
	}, nil, nil)
	rec := &core.ProcessedEmailRecord{
		Sender:     "ops@client.example.com",
		SourceIP:   "10.9.9.9",
		BodyText:   "y",
		ReceivedAt: baseTime,
	}

	bd, ok := s.Score(c, rec)
	require.True(t, ok)
	// Sender matched (0.4), IP applicable but mismatched (0.1): 0.4 / 0.5.
	assert.InDelta(t, 0.8, bd.Metadata, 1e-9)
}

func TestChannelSimilarityCosinePreferredOverLexical(t *testing.T) {
	a := []float32{1, 0, 0}
	b := []float32{1, 0, 0}

	sim := channelSimilarity("totally different words", "nothing in common here", a, b)
	assert.InDelta(t, 1.0, sim, 1e-9)

	lexical := channelSimilarity("wire transfer request", "wire transfer request", nil, nil)
	assert.InDelta(t, 1.0, lexical, 1e-9)
}

func TestTokenOverlapPartial(t *testing.T) {
	sim := tokenOverlap("please fund account 998877", "please fund account 111111")
	assert.Greater(t, sim, 0.0)
	assert.Less(t, sim, 1.0)
}

func TestCosineNegativeClampedToZero(t *testing.T) {
	sim := cosineSimilarity([]float32{1, 0}, []float32{-1, 0})
	assert.Equal(t, 0.0, sim)
}
