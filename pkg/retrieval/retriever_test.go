package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/componentforge/forge/pkg/llm"
	"github.com/componentforge/forge/pkg/models"
	"github.com/componentforge/forge/pkg/patterns"
)

// errorStore simulates an unreachable vector index.
type errorStore struct{}

func (errorStore) Search(context.Context, []float32, string, int) ([]Scored, error) {
	return nil, errors.New("connection refused")
}

func buttonRequirements() *models.RequirementSet {
	return &models.RequirementSet{
		Classification: models.ComponentClassification{ComponentType: "Button", Confidence: 0.95},
		Proposals:      []models.RequirementProposal{
			{Category: models.CategoryProps, Name: "variant", Value: "default|destructive", Status: models.ProposalApproved},
			{Category: models.CategoryProps, Name: "size", Value: "sm|md|lg", Status: models.ProposalApproved},
			{Category: models.CategoryEvents, Name: "onClick", Status: models.ProposalApproved},
			{Category: models.CategoryStates, Name: "hover", Status: models.ProposalApproved},
			{Category: models.CategoryStates, Name: "focus", Status: models.ProposalApproved},
			{Category: models.CategoryStates, Name: "disabled", Status: models.ProposalApproved},
			{Category: models.CategoryAccessibility, Name: "aria-label", Status: models.ProposalApproved},
		},
	}
}

func newTestRetriever(t *testing.T, store VectorStore) (*Retriever, *patterns.Registry) {
	t.Helper()
	reg, err := patterns.LoadBuiltin()
	require.NoError(t, err)

	index, err := NewBM25Index(reg.All())
	require.NoError(t, err)
	t.Cleanup(func() { _ = index.Close() })

	embedder := llm.NewScriptedClient()
	if store == nil {
		store, err = BuildVectorStore(context.Background(), embedder, reg.All())
		require.NoError(t, err)
	}
	return NewRetriever(reg, index, store, embedder, Options{}), reg
}

func TestSearch_ButtonHappyPath(t *testing.T) {
	r, _ := newTestRetriever(t, nil)

	result, warnings, err := r.Search(context.Background(), buttonRequirements())
	require.NoError(t, err)
	assert.Empty(t, warnings)

	require.NotEmpty(t, result.Patterns)
	top := result.Patterns[0]
	assert.Equal(t, "shadcn-button", top.Pattern.ID)
	assert.GreaterOrEqual(t, top.Scores.Weighted, 0.85)

	assert.ElementsMatch(t, []string{"bm25", "semantic"}, result.Metadata.MethodsUsed)
	assert.LessOrEqual(t, len(result.Patterns), DefaultTopK)

	// Sorted by weighted score descending.
	for i := 1; i < len(result.Patterns); i++ {
		assert.GreaterOrEqual(t, result.Patterns[i-1].Scores.Weighted, result.Patterns[i].Scores.Weighted)
	}
}

func TestSearch_ExplanationSubsets(t *testing.T) {
	r, _ := newTestRetriever(t, nil)
	set := buttonRequirements()

	result, _, err := r.Search(context.Background(), set)
	require.NoError(t, err)

	props := set.Names(models.CategoryProps)
	a11y := set.Names(models.CategoryAccessibility)
	for _, rp := range result.Patterns {
		assert.Subset(t, props, rp.Explanation.MatchedProps)
		assert.Subset(t, a11y, rp.Explanation.MatchedA11y)
		assert.NotEmpty(t, rp.Explanation.MatchReason)
		assert.Contains(t, rp.Explanation.WeightBreakdown, "bm25")
		assert.Contains(t, rp.Explanation.WeightBreakdown, "semantic")
	}

	top := result.Patterns[0]
	assert.Contains(t, top.Explanation.MatchedProps, "variant")
	assert.Contains(t, top.Explanation.MatchedA11y, "aria-label")
}

func TestSearch_RanksComputedBeforeTruncation(t *testing.T) {
	r, reg := newTestRetriever(t, nil)

	result, _, err := r.Search(context.Background(), buttonRequirements())
	require.NoError(t, err)

	assert.Greater(t, result.Metadata.CandidateCount, len(result.Patterns),
		"candidate set must exceed top-k for this assertion to bite; library has %d patterns", reg.Len())

	// Semantic rank may exceed top-k because it was computed pre-truncation.
	maxRank := 0
	for _, rp := range result.Patterns {
		if rp.Ranks.SemanticRank > maxRank {
			maxRank = rp.Ranks.SemanticRank
		}
		assert.Positive(t, rp.Ranks.BM25Rank+rp.Ranks.SemanticRank)
	}
}

func TestSearch_DegradedMode(t *testing.T) {
	r, _ := newTestRetriever(t, errorStore{})

	result, warnings, err := r.Search(context.Background(), buttonRequirements())
	require.NoError(t, err, "vector failure is a warning, not an error")

	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "BM25-only")

	assert.Equal(t, []string{"bm25"}, result.Metadata.MethodsUsed)
	assert.Equal(t, map[string]float64{"bm25": 1.0, "semantic": 0.0}, result.Metadata.Weights)
	assert.True(t, result.Metadata.Degraded)
	require.NotEmpty(t, result.Patterns)
	assert.Equal(t, "shadcn-button", result.Patterns[0].Pattern.ID)
}

func TestSearch_UnknownTypeFallsBackToWholeLibrary(t *testing.T) {
	r, _ := newTestRetriever(t, nil)
	set := buttonRequirements()
	set.Classification.ComponentType = "Carousel"

	result, _, err := r.Search(context.Background(), set)
	require.NoError(t, err)
	assert.NotEmpty(t, result.Patterns, "unmatched type filter widens to the full library")
}

func TestBuildQuery_Deterministic(t *testing.T) {
	set := buttonRequirements()
	q1 := BuildQuery(set)
	q2 := BuildQuery(set)
	assert.Equal(t, q1, q2)

	assert.Equal(t, "Button", q1.ComponentType)
	assert.Contains(t, q1.Keywords, "variant")
	assert.Contains(t, q1.Keywords, "onclick")
	assert.Contains(t, q1.Summary, "Button component")

	// Removed proposals contribute nothing.
	set.Proposals[0].Status = models.ProposalRemoved
	q3 := BuildQuery(set)
	assert.NotContains(t, q3.Summary, "variant")
	assert.NotContains(t, q3.Keywords, "variant")
}
