package embed

import (
	"context"
	"hash/fnv"
	"math"

	"github.com/mikey/llm-email-classifier/internal/textnorm"
)

// lexicalDimensions matches the vector width of common sentence-embedding
// models so records stay interchangeable if the provider is switched later.
const lexicalDimensions = 384

// LexicalProvider produces deterministic embeddings from token hash buckets.
// It needs no network or credentials and serves as the offline fallback when
// no embedding API is configured. Vectors are L2-normalized so cosine
// similarity reduces to a dot product.
type LexicalProvider struct{}

// NewLexicalProvider creates a hash-bucket embedding provider.
func NewLexicalProvider() *LexicalProvider {
	return &LexicalProvider{}
}

// Embed returns a normalized token-frequency vector, or nil for text with no
// tokens.
func (p *LexicalProvider) Embed(_ context.Context, text string) ([]float32, error) {
	tokens := textnorm.Tokens(text)
	if len(tokens) == 0 {
		return nil, nil
	}

	vec := make([]float32, lexicalDimensions)
	for _, tok := range tokens {
		h := fnv.New32a()
		h.Write([]byte(tok))
		vec[h.Sum32()%lexicalDimensions]++
	}

	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
	return vec, nil
}
