// Package local provides a deterministic, dependency-free embedding
// provider. It is the default for tests and for deployments that have no
// external embedding service configured — mirroring the teacher's pattern of
// a trivial, always-available default implementation behind an injectable
// interface (pkg/agent's LLM client abstraction).
package local

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"strings"
)

// Provider is a hashing embedder: it maps text deterministically into a
// fixed-dimension vector using repeated SHA-256 hashing of the token stream.
// It carries no semantic meaning beyond exact/near-duplicate text producing
// similar vectors; it exists so the platform's vector-search code paths are
// exercised without a network dependency.
type Provider struct {
	dim int
}

// New returns a Provider producing vectors of the given dimension; a
// non-positive dim falls back to 256. Callers pass the configured
// EMBEDDING_MODEL_DIM.
func New(dim int) *Provider {
	if dim <= 0 {
		dim = 256
	}
	return &Provider{dim: dim}
}

// Dim implements embedding.Provider.
func (p *Provider) Dim() int {
	return p.dim
}

// Embed implements embedding.Provider. It is pure and context-independent;
// ctx is accepted only to satisfy the interface.
func (p *Provider) Embed(_ context.Context, text string) ([]float32, error) {
	tokens := strings.Fields(strings.ToLower(text))
	if len(tokens) == 0 {
		tokens = []string{""}
	}

	vec := make([]float32, p.dim)
	for _, tok := range tokens {
		sum := sha256.Sum256([]byte(tok))
		for i := range vec {
			// Fold the 32-byte digest over the vector: dimension i reads the
			// 4-byte window at offset (i*4) mod 28, so the seven windows at
			// offsets 0..24 repeat every seven dimensions.
			off := (i * 4) % (len(sum) - 4)
			bits := binary.BigEndian.Uint32(sum[off : off+4])
			vec[i] += float32(bits%2000) - 1000
		}
	}

	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm > 0 {
		inv := float32(1) / float32(math.Sqrt(float64(norm)))
		for i := range vec {
			vec[i] *= inv
		}
	}
	return vec, nil
}
