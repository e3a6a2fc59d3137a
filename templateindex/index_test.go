package templateindex

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/nurturemesh/core"
)

// Interface compliance (compile-time assertion)
var _ core.TemplateIndex = (*InMemoryIndex)(nil)

func TestInMemoryIndex_EmptyIndex_NoMatch(t *testing.T) {
	idx := NewInMemoryIndex()

	_, err := idx.BestMatch(context.Background(), "follow up fintech", core.StageContacted)

	assert.ErrorIs(t, err, core.ErrNoMatch)
}

func TestInMemoryIndex_Publish_EmbedsWhenNoVectorSupplied(t *testing.T) {
	idx := NewInMemoryIndex()
	ctx := context.Background()

	err := idx.Publish(ctx, core.Template{
		ID:      "tpl-1",
		Name:    "fintech follow-up",
		Subject: "Quick question about reconciliation",
		Body:    "Following up on manual reconciliation pain in fintech.",
	})

	require.NoError(t, err)
	assert.Equal(t, 1, idx.Len())
}

func TestInMemoryIndex_Publish_DuplicateID(t *testing.T) {
	idx := NewInMemoryIndex()
	ctx := context.Background()

	tmpl := core.Template{ID: "tpl-1", Subject: "hello", Body: "world"}
	require.NoError(t, idx.Publish(ctx, tmpl))

	err := idx.Publish(ctx, tmpl)
	assert.ErrorIs(t, err, ErrAlreadyPublished)
}

func TestInMemoryIndex_BestMatch_PrefersOverlappingVocabulary(t *testing.T) {
	idx := NewInMemoryIndex()
	ctx := context.Background()

	require.NoError(t, idx.Publish(ctx, core.Template{
		ID:      "tpl-fintech",
		Subject: "fintech reconciliation follow up",
		Body:    "fintech reconciliation automation follow up",
	}))
	require.NoError(t, idx.Publish(ctx, core.Template{
		ID:      "tpl-health",
		Subject: "healthcare compliance outreach",
		Body:    "healthcare compliance audit outreach",
	}))

	match, err := idx.BestMatch(ctx, "follow up fintech reconciliation", core.StageContacted)

	require.NoError(t, err)
	assert.Equal(t, "tpl-fintech", match.ID)
}

func TestInMemoryIndex_BestMatch_RespectsStageRestriction(t *testing.T) {
	idx := NewInMemoryIndex()
	ctx := context.Background()

	require.NoError(t, idx.Publish(ctx, core.Template{
		ID:      "tpl-qualified-only",
		Subject: "escalation handoff sales meeting",
		Body:    "escalation handoff sales meeting",
		Stages:  []core.Stage{core.StageQualified},
	}))

	_, err := idx.BestMatch(ctx, "escalation handoff sales meeting", core.StageContacted)
	assert.ErrorIs(t, err, core.ErrNoMatch)

	match, err := idx.BestMatch(ctx, "escalation handoff sales meeting", core.StageQualified)
	require.NoError(t, err)
	assert.Equal(t, "tpl-qualified-only", match.ID)
}

func TestInMemoryIndex_BestMatch_StageAgnosticTemplateAlwaysApplies(t *testing.T) {
	idx := NewInMemoryIndex()
	ctx := context.Background()

	require.NoError(t, idx.Publish(ctx, core.Template{
		ID:      "tpl-any",
		Subject: "generic nurture touch",
		Body:    "generic nurture touch",
	}))

	for _, stage := range []core.Stage{core.StageNew, core.StageContacted, core.StageEngaged, core.StageQualified} {
		match, err := idx.BestMatch(ctx, "generic nurture touch", stage)
		require.NoError(t, err, "stage %s", stage)
		assert.Equal(t, "tpl-any", match.ID)
	}
}

func TestInMemoryIndex_BestMatch_BelowFloor_NoMatch(t *testing.T) {
	idx := NewInMemoryIndex(func(o *Options) {
		o.SimilarityFloor = 0.99
	})
	ctx := context.Background()

	require.NoError(t, idx.Publish(ctx, core.Template{
		ID:      "tpl-1",
		Subject: "fintech reconciliation",
		Body:    "automation",
	}))

	_, err := idx.BestMatch(ctx, "completely unrelated gardening topics", core.StageContacted)

	assert.ErrorIs(t, err, core.ErrNoMatch)
}

type failingEmbedder struct{}

func (failingEmbedder) Embed(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("embedding provider down")
}

func TestInMemoryIndex_BestMatch_EmbedderFailure_Transient(t *testing.T) {
	idx := NewInMemoryIndex(func(o *Options) {
		o.Embedder = failingEmbedder{}
	})

	_, err := idx.BestMatch(context.Background(), "anything", core.StageContacted)

	require.Error(t, err)
	assert.True(t, core.IsTransient(err))
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine([]float32{1, 2, 3}, []float32{1, 2, 3}), 1e-9)
	assert.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, Cosine([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.Equal(t, 0.0, Cosine(nil, []float32{1}))
	assert.Equal(t, 0.0, Cosine([]float32{1, 2}, []float32{1}))
	assert.Equal(t, 0.0, Cosine([]float32{0, 0}, []float32{0, 0}))
}

func TestHashingEmbedder_Deterministic(t *testing.T) {
	e := NewHashingEmbedder(64)
	ctx := context.Background()

	a, err := e.Embed(ctx, []string{"Fintech reconciliation, follow-up!"})
	require.NoError(t, err)
	b, err := e.Embed(ctx, []string{"fintech reconciliation follow up"})
	require.NoError(t, err)

	// Tokenization is case-insensitive and punctuation-blind.
	assert.Equal(t, a[0], b[0])
}
