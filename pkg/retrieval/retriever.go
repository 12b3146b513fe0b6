package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/componentforge/forge/pkg/llm"
	"github.com/componentforge/forge/pkg/models"
	"github.com/componentforge/forge/pkg/patterns"
)

// Default fusion weights. Stated as product goals, kept configurable.
const (
	DefaultWeightBM25     = 0.3
	DefaultWeightSemantic = 0.7
	DefaultTopK           = 3
)

// Retriever is the hybrid retrieval stage.
type Retriever struct {
	registry *patterns.Registry
	bm25     *BM25Index
	vector   VectorStore
	embedder llm.Client

	topK      int
	wBM25     float64
	wSemantic float64
}

// Options tune the retriever. Zero values take the defaults.
type Options struct {
	TopK           int
	WeightBM25     float64
	WeightSemantic float64
}

// NewRetriever wires the stage over its two indexes. vector may be nil
// (permanent BM25-only operation, e.g. no embedder configured).
func NewRetriever(registry *patterns.Registry, bm25 *BM25Index, vector VectorStore, embedder llm.Client, opts Options) *Retriever {
	if opts.TopK == 0 {
		opts.TopK = DefaultTopK
	}
	if opts.WeightBM25 == 0 && opts.WeightSemantic == 0 {
		opts.WeightBM25 = DefaultWeightBM25
		opts.WeightSemantic = DefaultWeightSemantic
	}
	return &Retriever{
		registry:  registry,
		bm25:      bm25,
		vector:    vector,
		embedder:  embedder,
		topK:      opts.TopK,
		wBM25:     opts.WeightBM25,
		wSemantic: opts.WeightSemantic,
	}
}

// Search ranks the library for the requirement set and returns the top-k
// patterns with full explanations. Vector-store failures degrade to
// BM25-only and are reported as warnings, never errors.
func (r *Retriever) Search(ctx context.Context, set *models.RequirementSet) (*models.RetrievalResult, []string, error) {
	start := time.Now()
	query := BuildQuery(set)

	// Lexical scores over the full candidate set: ranks are computed before
	// truncation, so the limit is the library size. The component-type
	// filter widens to the whole library when it returns fewer candidates
	// than top-k, so near-miss patterns still surface and normalization has
	// a real candidate set to work over.
	typeFilter := query.ComponentType
	bm25Scores, err := r.bm25.Search(typeFilter, query.Keywords, r.registry.Len())
	if err != nil {
		return nil, nil, fmt.Errorf("lexical retrieval: %w", err)
	}
	if len(bm25Scores) < r.topK && typeFilter != "" {
		typeFilter = ""
		bm25Scores, err = r.bm25.Search("", query.Keywords, r.registry.Len())
		if err != nil {
			return nil, nil, fmt.Errorf("lexical retrieval: %w", err)
		}
	}

	var warnings []string
	semanticScores, degraded := r.semanticSearch(ctx, query, typeFilter)
	if degraded {
		warnings = append(warnings, "vector index unreachable; retrieval degraded to BM25-only")
	}

	wBM25, wSemantic := r.wBM25, r.wSemantic
	methods := []string{"bm25", "semantic"}
	if degraded || r.vector == nil {
		wBM25, wSemantic = 1.0, 0.0
		methods = []string{"bm25"}
	}

	fused := fuse(bm25Scores, semanticScores, wBM25, wSemantic)

	result := &models.RetrievalResult{
		Metadata: models.RetrievalMetadata{
			MethodsUsed:    methods,
			Weights:        map[string]float64{"bm25": wBM25, "semantic": wSemantic},
			CandidateCount: len(fused),
			Degraded:       degraded,
		},
	}

	for i, c := range fused {
		if i == r.topK {
			break
		}
		pattern, ok := r.registry.Get(c.id)
		if !ok {
			// Index and registry are built from the same library; a missing
			// id is an invariant violation worth failing loudly on.
			return nil, warnings, fmt.Errorf("pattern %q in index but not registry", c.id)
		}
		result.Patterns = append(result.Patterns, models.RetrievedPattern{
			Pattern: pattern,
			Scores: models.RetrievalScores{
				BM25:     c.bm25Norm,
				Semantic: c.semanticNorm,
				Weighted: c.weighted,
			},
			Ranks: models.RetrievalRanks{
				BM25Rank:     c.bm25Rank,
				SemanticRank: c.semanticRank,
			},
			Explanation: explain(pattern, set, wBM25, wSemantic, c),
		})
	}

	result.Metadata.LatencyMS = time.Since(start).Milliseconds()
	return result, warnings, nil
}

// semanticSearch embeds the query summary and searches the vector store.
// Any failure here reports degraded mode instead of erroring.
func (r *Retriever) semanticSearch(ctx context.Context, query Query, typeFilter string) ([]Scored, bool) {
	if r.vector == nil {
		return nil, false
	}
	embedding, err := r.embedder.Embed(ctx, query.Summary)
	if err != nil {
		slog.Warn("Query embedding failed, degrading to BM25-only", "error", err)
		return nil, true
	}
	scores, err := r.vector.Search(ctx, embedding, typeFilter, 0)
	if err != nil {
		slog.Warn("Vector search failed, degrading to BM25-only", "error", err)
		return nil, true
	}
	return scores, false
}

// explain computes the matched-capability intersections and stitches the
// one-sentence reason.
func explain(pattern models.Pattern, set *models.RequirementSet, wBM25, wSemantic float64, c candidate) models.RetrievalExplanation {
	props := intersect(set.Names(models.CategoryProps), pattern.Metadata.Props)
	a11y := intersect(set.Names(models.CategoryAccessibility), pattern.Metadata.A11y)

	// Variants requested as prop values ("variant: default|destructive").
	var requestedVariants []string
	for _, p := range set.Accepted() {
		if p.Category == models.CategoryProps {
			for _, v := range strings.Split(p.Value, "|") {
				if v = strings.TrimSpace(v); v != "" {
					requestedVariants = append(requestedVariants, v)
				}
			}
		}
	}
	variants := intersect(requestedVariants, pattern.Metadata.Variants)

	var reasons []string
	if pattern.Metadata.ComponentType == set.Classification.ComponentType {
		reasons = append(reasons, fmt.Sprintf("matches component type %s", pattern.Metadata.ComponentType))
	}
	if len(props) > 0 {
		reasons = append(reasons, fmt.Sprintf("covers props %s", strings.Join(props, ", ")))
	}
	if len(variants) > 0 {
		reasons = append(reasons, fmt.Sprintf("supports variants %s", strings.Join(variants, ", ")))
	}
	if len(a11y) > 0 {
		reasons = append(reasons, fmt.Sprintf("provides %s", strings.Join(a11y, ", ")))
	}
	reason := "Ranked by weighted lexical and semantic similarity."
	if len(reasons) > 0 {
		reason = strings.Join(reasons, "; ") + "."
	}

	return models.RetrievalExplanation{
		MatchedProps:    props,
		MatchedVariants: variants,
		MatchedA11y:     a11y,
		MatchReason:     reason,
		WeightBreakdown: map[string]float64{
			"bm25":     wBM25 * c.bm25Norm,
			"semantic": wSemantic * c.semanticNorm,
		},
	}
}

// intersect returns requested ∩ available, case-insensitive, sorted,
// preserving the requested spelling.
func intersect(requested, available []string) []string {
	avail := make(map[string]bool, len(available))
	for _, a := range available {
		avail[strings.ToLower(a)] = true
	}
	var out []string
	seen := map[string]bool{}
	for _, r := range requested {
		key := strings.ToLower(r)
		if avail[key] && !seen[key] {
			seen[key] = true
			out = append(out, r)
		}
	}
	sort.Strings(out)
	return out
}
