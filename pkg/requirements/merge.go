package requirements

import (
	"sort"
	"strings"

	"github.com/componentforge/forge/pkg/models"
)

// Merge deduplicates proposals by (category, name), keeping the
// higher-confidence variant. Confidence ties resolve by analyzer name in
// lexicographic order so the merge is deterministic regardless of analyzer
// completion order. Output is sorted by category (analyzer dispatch order)
// then name.
func Merge(proposals []models.RequirementProposal) []models.RequirementProposal {
	type key struct {
		category models.RequirementCategory
		name     string
	}
	kept := make(map[key]models.RequirementProposal)
	for _, p := range proposals {
		k := key{category: p.Category, name: strings.ToLower(p.Name)}
		existing, ok := kept[k]
		if !ok || better(p, existing) {
			kept[k] = p
		}
	}

	out := make([]models.RequirementProposal, 0, len(kept))
	for _, p := range kept {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		ci, cj := categoryIndex(out[i].Category), categoryIndex(out[j].Category)
		if ci != cj {
			return ci < cj
		}
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out
}

// better reports whether a should replace b.
func better(a, b models.RequirementProposal) bool {
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	return a.Analyzer < b.Analyzer
}

func categoryIndex(c models.RequirementCategory) int {
	for i, cat := range models.AllCategories {
		if cat == c {
			return i
		}
	}
	return len(models.AllCategories)
}
