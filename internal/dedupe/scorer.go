package dedupe

import (
	"math"
	"time"

	"github.com/mikey/llm-email-classifier/internal/core"
	"github.com/mikey/llm-email-classifier/internal/textnorm"
)

// Metadata sub-weights. Sender is the strongest soft signal; a same-domain
// match earns half credit.
const (
	senderWeight    = 0.4
	recipientWeight = 0.2
	threadWeight    = 0.3
	ipWeight        = 0.1
)

// ScorerConfig holds the tunable weights of the similarity scorer.
type ScorerConfig struct {
	SemanticThreshold float64
	MetadataWeight    float64
	SubjectWeight     float64
	ContentWeight     float64
	TimeWindow        time.Duration
}

// DefaultScorerConfig returns the default scoring configuration.
func DefaultScorerConfig() ScorerConfig {
	return ScorerConfig{
		SemanticThreshold: 0.8,
		MetadataWeight:    0.6,
		SubjectWeight:     0.3,
		ContentWeight:     0.7,
		TimeWindow:        72 * time.Hour,
	}
}

// Scorer fuses metadata correlation, semantic content similarity and time
// proximity into a single duplicate-confidence score.
type Scorer struct {
	cfg ScorerConfig
}

// NewScorer creates a new similarity scorer
func NewScorer(cfg ScorerConfig) *Scorer {
	return &Scorer{cfg: cfg}
}

// Config returns the scorer configuration.
func (s *Scorer) Config() ScorerConfig {
	return s.cfg
}

// Candidate is an inbound email prepared for comparison: normalized text,
// precomputed embeddings and the derived thread identifier.
type Candidate struct {
	Sender            string
	Recipient         string
	ThreadID          string
	MessageID         string
	InReplyTo         string
	References        []string
	SourceIP          string
	NormalizedSubject string
	NormalizedBody    string
	SubjectEmbedding  []float32
	BodyEmbedding     []float32
	ReceivedAt        time.Time
}

// NewCandidate prepares an inbound email for scoring.
func NewCandidate(email *core.InboundEmail, subjectEmbedding, bodyEmbedding []float32) *Candidate {
	return &Candidate{
		Sender:            email.Sender,
		Recipient:         email.Recipient,
		ThreadID:          core.DeriveThreadID(email),
		MessageID:         email.MessageID,
		InReplyTo:         email.InReplyTo,
		References:        email.References,
		SourceIP:          email.SourceIP,
		NormalizedSubject: textnorm.Subject(email.Subject),
		NormalizedBody:    textnorm.Body(email.Body),
		SubjectEmbedding:  subjectEmbedding,
		BodyEmbedding:     bodyEmbedding,
		ReceivedAt:        email.ReceivedAt,
	}
}

// Breakdown exposes the component scores behind a final score, used to
// explain why a record was considered a duplicate.
type Breakdown struct {
	Metadata   float64
	Subject    float64
	Body       float64
	Content    float64
	TimeFactor float64
	Final      float64
}

// Score computes the duplicate-confidence score for a candidate against a
// cached record. ok is false when the pair is outside the hard time window
// and must be excluded from consideration entirely.
func (s *Scorer) Score(c *Candidate, rec *core.ProcessedEmailRecord) (Breakdown, bool) {
	delta := c.ReceivedAt.Sub(rec.ReceivedAt)
	if delta < 0 {
		delta = -delta
	}
	if delta > s.cfg.TimeWindow {
		return Breakdown{}, false
	}

	bd := Breakdown{
		Metadata: s.metadataScore(c, rec),
		Subject:  channelSimilarity(c.NormalizedSubject, rec.SubjectText, c.SubjectEmbedding, rec.SubjectEmbedding),
		Body:     channelSimilarity(c.NormalizedBody, rec.BodyText, c.BodyEmbedding, rec.BodyEmbedding),
	}
	bd.Content = (s.cfg.ContentWeight*bd.Body + s.cfg.SubjectWeight*bd.Subject) /
		(s.cfg.ContentWeight + s.cfg.SubjectWeight)

	tau := 1.0 - delta.Hours()/s.cfg.TimeWindow.Hours()
	if tau < 0 {
		tau = 0
	}
	bd.TimeFactor = 0.5 + 0.5*tau

	score := s.cfg.MetadataWeight*bd.Metadata + (1-s.cfg.MetadataWeight)*bd.Content
	bd.Final = score * bd.TimeFactor
	return bd, true
}

// metadataScore computes the weighted metadata match in [0,1]. An identical
// thread id, or the cached record's message id appearing in the candidate's
// reply chain, short-circuits to 1.0.
func (s *Scorer) metadataScore(c *Candidate, rec *core.ProcessedEmailRecord) float64 {
	if c.ThreadID != "" && c.ThreadID == rec.ThreadID {
		return 1.0
	}
	if rec.MessageID != "" {
		if c.InReplyTo == rec.MessageID {
			return 1.0
		}
		for _, ref := range c.References {
			if ref == rec.MessageID {
				return 1.0
			}
		}
	}

	score := 0.0
	totalWeight := 0.0

	if c.Sender != "" && rec.Sender != "" {
		if textnorm.Address(c.Sender) == textnorm.Address(rec.Sender) {
			score += senderWeight
		} else if d := textnorm.Domain(c.Sender); d != "" && d == textnorm.Domain(rec.Sender) {
			score += senderWeight * 0.5
		}
		totalWeight += senderWeight
	}

	if c.Recipient != "" && rec.Recipient != "" {
		a := textnorm.AddressSet(c.Recipient)
		b := textnorm.AddressSet(rec.Recipient)
		if len(a) > 0 && len(b) > 0 {
			overlap := 0
			for addr := range a {
				if _, ok := b[addr]; ok {
					overlap++
				}
			}
			union := len(a) + len(b) - overlap
			score += recipientWeight * float64(overlap) / float64(union)
			totalWeight += recipientWeight
		}
	}

	if c.SourceIP != "" && rec.SourceIP != "" {
		if c.SourceIP == rec.SourceIP {
			score += ipWeight
		}
		totalWeight += ipWeight
	}

	if c.ThreadID != "" && rec.ThreadID != "" {
		totalWeight += threadWeight
	}

	if totalWeight == 0 {
		return 0
	}
	return score / totalWeight
}

// channelSimilarity compares one text channel (subject or body). Empty text
// contributes zero rather than the undefined similarity of zero vectors.
// When either side lacks an embedding, a lexical token-overlap measure is
// used as the degraded fallback.
func channelSimilarity(aText, bText string, aVec, bVec []float32) float64 {
	if aText == "" || bText == "" {
		return 0
	}
	if len(aVec) > 0 && len(aVec) == len(bVec) {
		return cosineSimilarity(aVec, bVec)
	}
	return tokenOverlap(aText, bText)
}

func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if sim < 0 {
		return 0
	}
	if sim > 1 {
		return 1
	}
	return sim
}

// tokenOverlap is the Jaccard similarity of the two token sets.
func tokenOverlap(a, b string) float64 {
	setA := make(map[string]struct{})
	for _, tok := range textnorm.Tokens(a) {
		setA[tok] = struct{}{}
	}
	setB := make(map[string]struct{})
	for _, tok := range textnorm.Tokens(b) {
		setB[tok] = struct{}{}
	}
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	overlap := 0
	for tok := range setA {
		if _, ok := setB[tok]; ok {
			overlap++
		}
	}
	return float64(overlap) / float64(len(setA)+len(setB)-overlap)
}
