package tokens

import (
	"regexp"
	"strings"

	"github.com/componentforge/forge/pkg/figma"
	"github.com/componentforge/forge/pkg/models"
)

// Slot classification confidences. Exact keyword matches are certain; a tie
// between two slots is ambiguous; a substring heuristic is best-effort.
const (
	confidenceExact     = 1.0
	confidenceAmbiguous = 0.7
	confidenceHeuristic = 0.5
)

var delimiterPattern = regexp.MustCompile(`[/\-_\s]+`)

// normalizeStyleName lowercases a Figma style name and collapses slash, dash,
// underscore, and space delimiters into a single canonical "/" form.
func normalizeStyleName(name string) string {
	return delimiterPattern.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "/")
}

// colorSlots maps keywords found in FILL style names to semantic color slots.
var colorSlots = map[string]string{
	"primary":     "primary",
	"brand":       "primary",
	"main":        "primary",
	"secondary":   "secondary",
	"error":       "destructive",
	"danger":      "destructive",
	"destructive": "destructive",
	"success":     "success",
	"warning":     "warning",
	"background":  "background",
	"bg":          "background",
	"surface":     "background",
	"foreground":  "foreground",
	"text":        "foreground",
	"muted":       "muted",
	"accent":      "accent",
	"border":      "border",
}

// textSlots maps keywords found in TEXT style names to font size scale keys.
var textSlots = map[string]string{
	"display":  "4xl",
	"heading":  "3xl",
	"title":    "2xl",
	"subtitle": "xl",
	"lead":     "lg",
	"body":     "base",
	"caption":  "sm",
	"small":    "xs",
	"label":    "sm",
}

// sizeModifiers shift a text slot up or down the scale.
var sizeModifiers = map[string]int{
	"large":  1,
	"lg":     1,
	"xlarge": 2,
	"small":  -1,
	"sm":     -1,
}

// slotMatch is one classified style: a dotted token path plus confidence.
type slotMatch struct {
	path       string
	confidence float64
}

// classifyStyle maps a Figma style name onto a semantic token slot by keyword
// matching over the normalized name segments. Returns ok=false for styles
// that have no token slot (effects, grids, unknown names).
func classifyStyle(style figma.Style) (slotMatch, bool) {
	name := normalizeStyleName(style.Name)
	segments := strings.Split(name, "/")

	switch style.StyleType {
	case "FILL":
		return classifyColor(segments)
	case "TEXT":
		return classifyText(segments)
	default:
		return slotMatch{}, false
	}
}

func classifyColor(segments []string) (slotMatch, bool) {
	var matches []string
	for _, seg := range segments {
		if slot, ok := colorSlots[seg]; ok && !contains(matches, slot) {
			matches = append(matches, slot)
		}
	}
	switch len(matches) {
	case 0:
		// Heuristic: substring containment anywhere in the name.
		joined := strings.Join(segments, "/")
		for keyword, slot := range colorSlots {
			if strings.Contains(joined, keyword) {
				return slotMatch{path: "colors." + slot, confidence: confidenceHeuristic}, true
			}
		}
		return slotMatch{}, false
	case 1:
		return slotMatch{path: "colors." + matches[0], confidence: confidenceExact}, true
	default:
		// Two slots tie; keep the first segment's slot at reduced confidence.
		return slotMatch{path: "colors." + matches[0], confidence: confidenceAmbiguous}, true
	}
}

func classifyText(segments []string) (slotMatch, bool) {
	base := ""
	shift := 0
	ambiguous := false
	for _, seg := range segments {
		if slot, ok := textSlots[seg]; ok {
			if base != "" && slot != base {
				ambiguous = true
				continue
			}
			base = slot
		}
		if d, ok := sizeModifiers[seg]; ok {
			shift += d
		}
	}
	if base == "" {
		joined := strings.Join(segments, "/")
		for keyword, slot := range textSlots {
			if strings.Contains(joined, keyword) {
				return slotMatch{path: "typography.fontSize." + slot, confidence: confidenceHeuristic}, true
			}
		}
		return slotMatch{}, false
	}

	size := shiftScale(base, shift)
	conf := confidenceExact
	if ambiguous {
		conf = confidenceAmbiguous
	} else if shift != 0 && size == base {
		// Modifier ran off the end of the scale.
		conf = confidenceHeuristic
	}
	return slotMatch{path: "typography.fontSize." + size, confidence: conf}, true
}

// shiftScale moves a size key along the font scale by n steps, clamped.
func shiftScale(key string, n int) string {
	idx := -1
	for i, k := range models.FontSizeScale {
		if k == key {
			idx = i
			break
		}
	}
	if idx < 0 {
		return key
	}
	idx += n
	if idx < 0 {
		idx = 0
	}
	if idx >= len(models.FontSizeScale) {
		idx = len(models.FontSizeScale) - 1
	}
	return models.FontSizeScale[idx]
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
