// Package langchain bridges any langchaingo embeddings.Embedder (OpenAI,
// Ollama, Hugging Face, ...) to the core.Embedder interface, so template
// matching can reuse whichever provider the surrounding application
// already configures through langchaingo.
package langchain

import (
	"context"

	"github.com/tmc/langchaingo/embeddings"

	"github.com/hupe1980/nurturemesh/core"
)

// Embedder wraps a langchaingo embedder.
type Embedder struct {
	inner embeddings.Embedder
}

// NewEmbedder wraps the given langchaingo embedder.
func NewEmbedder(inner embeddings.Embedder) *Embedder {
	return &Embedder{inner: inner}
}

// Embed delegates to the wrapped embedder's document embedding.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return e.inner.EmbedDocuments(ctx, texts)
}

// Interface compliance (compile-time assertion)
var _ core.Embedder = (*Embedder)(nil)
