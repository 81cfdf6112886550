package embedding

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
)

// Provider generates fixed-length vector representations of text.
// Implementations must be deterministic for identical input so stored
// vectors remain comparable across process restarts.
type Provider interface {
	// Embed returns the vector representation of text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the fixed vector length this provider produces.
	Dimensions() int
}

// ToBytes serializes a vector into an opaque byte blob for storage.
// The encoding is lossless: FromBytes(ToBytes(v)) returns v.
func ToBytes(vec []float32) []byte {
	if len(vec) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

// FromBytes deserializes a vector stored with ToBytes.
func FromBytes(blob []byte) ([]float32, error) {
	if len(blob) == 0 {
		return nil, nil
	}
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("malformed embedding blob: %d bytes", len(blob))
	}
	vec := make([]float32, len(blob)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[4*i:]))
	}
	return vec, nil
}

// Cosine returns the cosine similarity of two vectors, in [-1, 1].
// Mismatched lengths or zero-magnitude vectors yield 0 rather than an error.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
