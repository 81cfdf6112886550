// Package local provides a deterministic, dependency-free embedding
// provider. It hashes tokens (and adjacent token pairs) into a fixed-length
// signed accumulator and L2-normalizes the result, so identical text always
// produces an identical vector with no model call. It is the default
// provider: similarity quality is far below a learned model, but it keeps
// the memory subsystem functional with zero external capability.
package local

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// DefaultDimensions is the vector length used when none is configured.
const DefaultDimensions = 256

// Provider implements embedding.Provider with hashed-token vectors.
type Provider struct {
	dimensions int
}

// NewProvider creates a local provider producing vectors of the given length.
func NewProvider(dimensions int) *Provider {
	if dimensions <= 0 {
		dimensions = DefaultDimensions
	}
	return &Provider{dimensions: dimensions}
}

// Embed returns the hashed-token vector for text. It never fails.
func (p *Provider) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, p.dimensions)

	tokens := tokenize(text)
	for i, tok := range tokens {
		p.accumulate(vec, tok)
		if i+1 < len(tokens) {
			// Adjacent pairs give the vector some sensitivity to word order.
			p.accumulate(vec, tok+" "+tokens[i+1])
		}
	}

	normalize(vec)
	return vec, nil
}

// Dimensions returns the fixed vector length.
func (p *Provider) Dimensions() int {
	return p.dimensions
}

func (p *Provider) accumulate(vec []float32, token string) {
	h := fnv.New64a()
	h.Write([]byte(token))
	sum := h.Sum64()

	idx := int(sum % uint64(p.dimensions))
	if sum&(1<<63) != 0 {
		vec[idx] -= 1
	} else {
		vec[idx] += 1
	}
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func normalize(vec []float32) {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
}
