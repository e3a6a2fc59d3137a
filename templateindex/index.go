package templateindex

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/hupe1980/nurturemesh/core"
)

// ErrAlreadyPublished is returned when a template ID is published twice.
// Templates are immutable; publish revisions under a new ID.
var ErrAlreadyPublished = errors.New("template already published")

// Options configures the in-memory index.
type Options struct {
	// SimilarityFloor is the minimum cosine similarity for a match.
	// Candidates below the floor yield core.ErrNoMatch.
	SimilarityFloor float64

	// Embedder computes vectors for templates published without one and
	// for queries. Defaults to the hashing embedder.
	Embedder core.Embedder
}

// InMemoryIndex is a process-local core.TemplateIndex. Lookups are
// read-mostly and run fully in parallel under a read lock.
type InMemoryIndex struct {
	mu        sync.RWMutex
	templates map[string]core.Template
	opts      Options
}

// NewInMemoryIndex constructs an empty index. Default similarity floor 0.15.
func NewInMemoryIndex(optFns ...func(o *Options)) *InMemoryIndex {
	opts := Options{SimilarityFloor: 0.15}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Embedder == nil {
		opts.Embedder = NewHashingEmbedder(256)
	}
	return &InMemoryIndex{templates: make(map[string]core.Template), opts: opts}
}

// Publish adds the template, embedding Subject+Body when no vector was
// supplied. ErrAlreadyPublished on a duplicate ID.
func (i *InMemoryIndex) Publish(ctx context.Context, tmpl core.Template) error {
	if tmpl.ID == "" {
		tmpl.ID = core.NewID()
	}
	if len(tmpl.Embedding) == 0 {
		vecs, err := i.opts.Embedder.Embed(ctx, []string{tmpl.Subject + "\n" + tmpl.Body})
		if err != nil {
			return core.Transient("templateindex.publish", err)
		}
		tmpl.Embedding = vecs[0]
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	if _, exists := i.templates[tmpl.ID]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyPublished, tmpl.ID)
	}
	i.templates[tmpl.ID] = tmpl
	return nil
}

// BestMatch embeds the query, restricts candidates to those applicable to
// stage, ranks by cosine similarity and returns the top candidate.
// core.ErrNoMatch when the candidate set is empty or every similarity
// falls below the floor.
func (i *InMemoryIndex) BestMatch(ctx context.Context, query string, stage core.Stage) (core.Template, error) {
	vecs, err := i.opts.Embedder.Embed(ctx, []string{query})
	if err != nil {
		return core.Template{}, core.Transient("templateindex.best_match", err)
	}
	qv := vecs[0]

	i.mu.RLock()
	defer i.mu.RUnlock()

	var best core.Template
	bestScore := math.Inf(-1)
	found := false
	for _, tmpl := range i.templates {
		if !tmpl.AppliesTo(stage) {
			continue
		}
		score := Cosine(qv, tmpl.Embedding)
		if score > bestScore {
			best, bestScore, found = tmpl, score, true
		}
	}
	if !found || bestScore < i.opts.SimilarityFloor {
		return core.Template{}, core.ErrNoMatch
	}
	return best, nil
}

// Len returns the number of published templates.
func (i *InMemoryIndex) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.templates)
}

// Cosine returns the cosine similarity of two vectors, 0 when either is
// empty or lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
