package retrieval

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/componentforge/forge/pkg/llm"
	"github.com/componentforge/forge/pkg/models"
)

// VectorStore is the dense-retrieval surface. External stores (a managed
// vector DB behind VECTOR_INDEX_URL) implement the same interface; a search
// error triggers the retriever's BM25-only degraded mode, never a run
// failure.
type VectorStore interface {
	Search(ctx context.Context, embedding []float32, componentType string, limit int) ([]Scored, error)
}

// InMemoryVectorStore holds unit-normalized pattern embeddings and ranks by
// cosine similarity. Embeddings are computed once at curation time with the
// same embedder used for queries.
type InMemoryVectorStore struct {
	mu      sync.RWMutex
	entries []vectorEntry
}

type vectorEntry struct {
	id            string
	componentType string
	vec           []float32 // unit-normalized
}

// BuildVectorStore embeds every pattern document that does not already carry
// a curation-time embedding.
func BuildVectorStore(ctx context.Context, embedder llm.Client, library []models.Pattern) (*InMemoryVectorStore, error) {
	store := &InMemoryVectorStore{}
	for _, p := range library {
		vec := p.DenseEmbedding
		if len(vec) == 0 {
			var err error
			vec, err = embedder.Embed(ctx, p.BM25Doc)
			if err != nil {
				return nil, fmt.Errorf("embed pattern %s: %w", p.ID, err)
			}
		}
		store.entries = append(store.entries, vectorEntry{
			id:            p.ID,
			componentType: p.Metadata.ComponentType,
			vec:           normalize(vec),
		})
	}
	return store, nil
}

// Search implements VectorStore.
func (s *InMemoryVectorStore) Search(_ context.Context, embedding []float32, componentType string, limit int) ([]Scored, error) {
	q := normalize(embedding)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Scored
	for _, e := range s.entries {
		if componentType != "" && e.componentType != componentType {
			continue
		}
		out = append(out, Scored{ID: e.id, Score: cosine(q, e.vec)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// cosine of two unit vectors is their dot product.
func cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

func normalize(v []float32) []float32 {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return v
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}
