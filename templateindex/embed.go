package templateindex

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"
)

// HashingEmbedder is a deterministic bag-of-words embedder hashing tokens
// into a fixed number of dimensions. It needs no network or model and
// gives exact-vocabulary overlap a high score, which is enough for tests
// and local demos; production deployments should wire a real embedding
// provider (see the openai and langchain subpackages).
type HashingEmbedder struct {
	dims int
}

// NewHashingEmbedder creates an embedder with the given dimensionality.
func NewHashingEmbedder(dims int) *HashingEmbedder {
	if dims <= 0 {
		dims = 256
	}
	return &HashingEmbedder{dims: dims}
}

// Embed hashes each text's lowercase tokens into term-frequency buckets.
func (e *HashingEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, e.dims)
		for _, tok := range tokenize(text) {
			h := fnv.New32a()
			_, _ = h.Write([]byte(tok))
			vec[h.Sum32()%uint32(e.dims)]++
		}
		out[i] = vec
	}
	return out, nil
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
