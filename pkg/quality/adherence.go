// Package quality merges every validation dimension into a single report:
// static accessibility audit, WCAG contrast checks, token adherence, and the
// generator's validation results.
package quality

import (
	"regexp"
	"strings"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/componentforge/forge/pkg/models"
)

// MaxColorDeltaE is the CIE76 distance under which a rendered color counts
// as matching an approved token ("just noticeable difference").
const MaxColorDeltaE = 2.0

// AdherenceThreshold is the minimum overall adherence for a PASS.
const AdherenceThreshold = 0.9

var (
	hexLiteral = regexp.MustCompile(`#[0-9a-fA-F]{6}\b`)
	dimLiteral = regexp.MustCompile(`\b\d+(\.\d+)?(px|rem)\b`)
	cssVarRef  = regexp.MustCompile(`var\(--[a-z-]+\)`)
)

// MeasureAdherence compares the values the component actually uses against
// the approved token set. Colors match within ΔE ≤ MaxColorDeltaE (CIE76);
// dimensions must match exactly. CSS variable references are matches by
// construction — they resolve to the token at render time. Values inside the
// provenance header are ignored.
func MeasureAdherence(componentCode string, tokens models.DesignTokens) models.TokenAdherence {
	code := stripHeader(componentCode)

	var approvedColors []colorful.Color
	for _, tv := range tokens.Colors {
		if c, err := colorful.Hex(tv.Value); err == nil {
			approvedColors = append(approvedColors, c)
		}
	}

	approvedDims := map[string]bool{}
	for _, tv := range tokens.Spacing {
		approvedDims[tv.Value] = true
	}
	for _, tv := range tokens.BorderRadius {
		approvedDims[tv.Value] = true
	}
	for _, tv := range tokens.Typography.FontSize {
		approvedDims[tv.Value] = true
	}

	colorMatched, colorTotal := 0, 0
	for _, lit := range hexLiteral.FindAllString(code, -1) {
		colorTotal++
		c, err := colorful.Hex(lit)
		if err != nil {
			continue
		}
		for _, approved := range approvedColors {
			if c.DistanceCIE76(approved) <= deltaEThresholdLab() {
				colorMatched++
				break
			}
		}
	}

	dimMatched, dimTotal := 0, 0
	for _, lit := range dimLiteral.FindAllString(code, -1) {
		dimTotal++
		if approvedDims[lit] {
			dimMatched++
		}
	}

	// Every CSS variable reference is an adherent color/dimension use.
	varRefs := len(cssVarRef.FindAllString(code, -1))
	colorMatched += varRefs
	colorTotal += varRefs

	adherence := models.TokenAdherence{}
	if colorTotal > 0 {
		adherence.Categories = append(adherence.Categories, models.AdherenceCategory{
			Category: "colors", Matched: colorMatched, Total: colorTotal,
			Score: float64(colorMatched) / float64(colorTotal),
		})
	}
	if dimTotal > 0 {
		adherence.Categories = append(adherence.Categories, models.AdherenceCategory{
			Category: "dimensions", Matched: dimMatched, Total: dimTotal,
			Score: float64(dimMatched) / float64(dimTotal),
		})
	}

	if len(adherence.Categories) == 0 {
		// Nothing measurable: the component uses tokens exclusively through
		// classes. Treated as full adherence.
		adherence.Overall = 1.0
		return adherence
	}
	var sum float64
	for _, c := range adherence.Categories {
		sum += c.Score
	}
	adherence.Overall = sum / float64(len(adherence.Categories))
	return adherence
}

// deltaEThresholdLab converts the ΔE threshold to the [0,1]-scaled Lab
// distance go-colorful reports (CIE76 ΔE of 2 ≈ 0.02 in that scale).
func deltaEThresholdLab() float64 { return MaxColorDeltaE / 100.0 }

func stripHeader(code string) string {
	if strings.HasPrefix(code, "/**") {
		if end := strings.Index(code, "*/"); end >= 0 {
			return code[end+2:]
		}
	}
	return code
}
