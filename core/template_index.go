package core

import "context"

// TemplateIndex stores published templates and retrieves the closest
// semantic match for a lead/stage query.
type TemplateIndex interface {
	// Publish adds an immutable template to the index.
	Publish(ctx context.Context, tmpl Template) error

	// BestMatch embeds the query, restricts candidates to those tagged for
	// stage (or stage-agnostic), ranks by cosine similarity and returns
	// the top candidate. ErrNoMatch when the candidate set is empty or all
	// similarities fall below the configured floor.
	BestMatch(ctx context.Context, query string, stage Stage) (Template, error)
}

// Embedder turns text into vectors for similarity lookup. Implementations
// wrap an embedding API or a local model.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}
