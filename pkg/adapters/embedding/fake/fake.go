// Package fake provides a deterministic bag-of-words embedder for tests.
package fake

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/wilhg/cloudask/pkg/adapters/embedding"
)

// Embedder hashes lowercase alphanumeric tokens and adjacent token pairs into
// dim buckets and L2-normalizes the counts, so texts sharing words and
// phrases land close together.
type Embedder struct {
	dim int
}

// New returns a new fake embedder with the given dimension (>= 4).
func New(dim int) *Embedder {
	if dim < 4 {
		dim = 4
	}
	return &Embedder{dim: dim}
}

func (e *Embedder) Name() string { return "fake" }

func (e *Embedder) Embed(ctx context.Context, inputs []string, opts map[string]any) ([]embedding.Vector, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]embedding.Vector, len(inputs))
	for i, s := range inputs {
		out[i] = e.vector(s)
	}
	return out, nil
}

func (e *Embedder) vector(s string) embedding.Vector {
	vec := make(embedding.Vector, e.dim)
	toks := Tokens(s)
	for i, tok := range toks {
		vec[e.bucket(tok)]++
		if i > 0 {
			vec[e.bucket(toks[i-1]+" "+tok)]++
		}
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	n := float32(math.Sqrt(norm))
	for j := range vec {
		vec[j] /= n
	}
	return vec
}

func (e *Embedder) bucket(feature string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(feature))
	return int(h.Sum32() % uint32(e.dim))
}

// Tokens splits s into lowercase runs of letters and digits.
func Tokens(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Factory builds a fake embedder; cfg key dim (int) sets the dimension, default 256.
func Factory(ctx context.Context, cfg map[string]any) (embedding.Embedder, error) {
	dim := 256
	if v, ok := cfg["dim"].(int); ok && v > 0 {
		dim = v
	}
	return New(dim), nil
}

func init() {
	_ = embedding.Register("fake", Factory)
}
