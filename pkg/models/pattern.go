package models

// PatternMetadata describes a curated pattern's capabilities. The matched_*
// fields of retrieval explanations are intersections against these lists.
type PatternMetadata struct {
	ComponentType string   `json:"component_type"`
	Description   string   `json:"description"`
	Props         []string `json:"props"`
	Variants      []string `json:"variants"`
	States        []string `json:"states"`
	A11y          []string `json:"a11y"`
}

// Pattern is a curated reference component. Immutable per (ID, Version);
// indexed in both the BM25 index and the vector store at curation time.
type Pattern struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Source   string          `json:"source"`
	Version  string          `json:"version"`
	Code     string          `json:"code"`
	Metadata PatternMetadata `json:"metadata"`

	// BM25Doc is the normalized text document indexed for lexical retrieval.
	BM25Doc string `json:"bm25_doc"`
	// DenseEmbedding is the curation-time embedding (EmbeddingDim entries).
	DenseEmbedding []float32 `json:"dense_embedding,omitempty"`
}

// EmbeddingDim is the fixed dimensionality of pattern and query embeddings.
const EmbeddingDim = 1536

// RetrievalScores carries the raw and fused scores for one candidate.
// BM25 and Semantic are min-max normalized over the candidate set.
type RetrievalScores struct {
	BM25     float64 `json:"bm25"`
	Semantic float64 `json:"semantic"`
	Weighted float64 `json:"weighted"`
}

// RetrievalRanks records each method's rank over the full candidate set,
// computed before top-k truncation. Rank 0 means the method did not score
// the candidate (degraded mode).
type RetrievalRanks struct {
	BM25Rank     int `json:"bm25_rank"`
	SemanticRank int `json:"semantic_rank"`
}

// RetrievalExplanation justifies why a pattern was returned.
type RetrievalExplanation struct {
	MatchedProps    []string           `json:"matched_props"`
	MatchedVariants []string           `json:"matched_variants"`
	MatchedA11y     []string           `json:"matched_a11y"`
	MatchReason     string             `json:"match_reason"`
	WeightBreakdown map[string]float64 `json:"weight_breakdown"`
}

// RetrievedPattern is one ranked entry of a retrieval response.
type RetrievedPattern struct {
	Pattern     Pattern              `json:"pattern"`
	Scores      RetrievalScores      `json:"scores"`
	Ranks       RetrievalRanks       `json:"ranks"`
	Explanation RetrievalExplanation `json:"explanation"`
}

// RetrievalMetadata reports how a retrieval was executed.
type RetrievalMetadata struct {
	MethodsUsed    []string           `json:"methods_used"`
	Weights        map[string]float64 `json:"weights"`
	CandidateCount int                `json:"candidate_count"`
	LatencyMS      int64              `json:"latency_ms"`
	Degraded       bool               `json:"degraded,omitempty"`
}

// RetrievalResult is the ordered top-k response of the hybrid retriever.
type RetrievalResult struct {
	Patterns []RetrievedPattern `json:"patterns"`
	Metadata RetrievalMetadata  `json:"retrieval_metadata"`
}
