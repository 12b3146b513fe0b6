package retrieval

import (
	"fmt"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/componentforge/forge/pkg/models"
)

// Scored pairs a pattern id with a raw retrieval score.
type Scored struct {
	ID    string
	Score float64
}

// BM25Index is the in-memory lexical index over the pattern library. Built
// once at startup; shared read-only across runs.
type BM25Index struct {
	index bleve.Index
}

// NewBM25Index indexes every pattern's normalized document.
func NewBM25Index(library []models.Pattern) (*BM25Index, error) {
	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("doc", bleve.NewTextFieldMapping())

	typeField := bleve.NewTextFieldMapping()
	typeField.Analyzer = keyword.Name
	docMapping.AddFieldMappingsAt("component_type", typeField)

	mapping := bleve.NewIndexMapping()
	mapping.DefaultMapping = docMapping

	index, err := bleve.NewMemOnly(mapping)
	if err != nil {
		return nil, fmt.Errorf("create bm25 index: %w", err)
	}
	for _, p := range library {
		doc := map[string]any{"doc": p.BM25Doc, "component_type": p.Metadata.ComponentType}
		if err := index.Index(p.ID, doc); err != nil {
			return nil, fmt.Errorf("index pattern %s: %w", p.ID, err)
		}
	}
	return &BM25Index{index: index}, nil
}

// Search scores the keyword bag against the library, optionally filtered by
// component type. Returns the full scored candidate set (limit caps it) in
// descending score order.
func (b *BM25Index) Search(componentType string, keywords []string, limit int) ([]Scored, error) {
	var q query.Query

	if len(keywords) > 0 {
		match := bleve.NewMatchQuery(strings.Join(keywords, " "))
		match.SetField("doc")
		q = match
	} else {
		q = bleve.NewMatchAllQuery()
	}

	if componentType != "" {
		typeQuery := bleve.NewTermQuery(componentType)
		typeQuery.SetField("component_type")
		q = bleve.NewConjunctionQuery(typeQuery, q)
	}

	req := bleve.NewSearchRequestOptions(q, limit, 0, false)
	res, err := b.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("bm25 search: %w", err)
	}

	out := make([]Scored, 0, len(res.Hits))
	for _, hit := range res.Hits {
		out = append(out, Scored{ID: hit.ID, Score: hit.Score})
	}
	return out, nil
}

// Close releases the index.
func (b *BM25Index) Close() error { return b.index.Close() }
