package patterns

import "github.com/componentforge/forge/pkg/models"

// MaxExemplars caps the few-shot examples included in a generation prompt.
const MaxExemplars = 2

// Exemplar is a small, high-quality reference output used for few-shot
// prompting. Exemplars steer style and structure; they are never adapted.
type Exemplar struct {
	ComponentType string
	Title         string
	Code          string
}

// Gallery holds exemplars keyed by component type.
type Gallery struct {
	byType map[string][]Exemplar
}

// NewGallery builds a gallery from the registry: each component type
// contributes its library patterns as exemplars for the other patterns of
// that type, which keeps few-shot examples in-domain without a second
// curation surface.
func NewGallery(reg *Registry) *Gallery {
	g := &Gallery{byType: make(map[string][]Exemplar)}
	for _, p := range reg.All() {
		g.byType[p.Metadata.ComponentType] = append(g.byType[p.Metadata.ComponentType], Exemplar{
			ComponentType: p.Metadata.ComponentType,
			Title:         p.Name,
			Code:          p.Code,
		})
	}
	return g
}

// Select returns up to MaxExemplars exemplars for the component type,
// excluding the pattern being adapted (its source is already in the prompt).
func (g *Gallery) Select(componentType string, excludePattern models.Pattern) []Exemplar {
	var out []Exemplar
	for _, ex := range g.byType[componentType] {
		if ex.Code == excludePattern.Code {
			continue
		}
		out = append(out, ex)
		if len(out) == MaxExemplars {
			break
		}
	}
	return out
}
