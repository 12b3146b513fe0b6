// Package retrieval ranks the pattern library against approved requirements
// using weighted fusion of lexical (BM25) and dense-vector retrieval.
package retrieval

import (
	"fmt"
	"sort"
	"strings"

	"github.com/componentforge/forge/pkg/models"
)

// Query is the structured retrieval query: a component-type filter, a
// keyword bag for the lexical index, and a natural-language summary that is
// embedded for the vector search.
type Query struct {
	ComponentType string
	Keywords      []string
	Summary       string
}

// BuildQuery constructs the retrieval query from the approved requirement
// set. The keyword bag combines props, variants (prop values), states, and
// accessibility features; the summary is a deterministic sentence over the
// same data so identical inputs embed identically.
func BuildQuery(set *models.RequirementSet) Query {
	var keywords []string
	seen := map[string]bool{}
	add := func(words ...string) {
		for _, w := range words {
			w = strings.ToLower(strings.TrimSpace(w))
			if w == "" || seen[w] {
				continue
			}
			seen[w] = true
			keywords = append(keywords, w)
		}
	}

	for _, p := range set.Accepted() {
		add(p.Name)
		// Prop values like "sm|md|lg" contribute their variants.
		for _, v := range strings.Split(p.Value, "|") {
			add(v)
		}
	}
	sort.Strings(keywords)

	props := set.Names(models.CategoryProps)
	events := set.Names(models.CategoryEvents)
	states := set.Names(models.CategoryStates)
	a11y := set.Names(models.CategoryAccessibility)

	summary := fmt.Sprintf(
		"A %s component with props [%s], events [%s], states [%s], accessibility [%s].",
		set.Classification.ComponentType,
		strings.Join(props, ", "),
		strings.Join(events, ", "),
		strings.Join(states, ", "),
		strings.Join(a11y, ", "),
	)

	return Query{
		ComponentType: set.Classification.ComponentType,
		Keywords:      keywords,
		Summary:       summary,
	}
}
