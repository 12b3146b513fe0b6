package quality

import (
	"fmt"
	"math"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/componentforge/forge/pkg/models"
)

// WCAG AA contrast minima.
const (
	MinContrastNormalText = 4.5
	MinContrastLargeText  = 3.0
	MinContrastUI         = 3.0
	MinContrastFocus      = 3.0
)

// ContrastRatio computes the WCAG relative-luminance contrast ratio between
// two hex colors. Returns 0 when either color fails to parse.
func ContrastRatio(hexA, hexB string) float64 {
	a, errA := colorful.Hex(hexA)
	b, errB := colorful.Hex(hexB)
	if errA != nil || errB != nil {
		return 0
	}
	la := relativeLuminance(a)
	lb := relativeLuminance(b)
	lighter := math.Max(la, lb)
	darker := math.Min(la, lb)
	return (lighter + 0.05) / (darker + 0.05)
}

// relativeLuminance per the WCAG definition over linearized sRGB channels.
func relativeLuminance(c colorful.Color) float64 {
	lin := func(ch float64) float64 {
		if ch <= 0.03928 {
			return ch / 12.92
		}
		return math.Pow((ch+0.055)/1.055, 2.4)
	}
	return 0.2126*lin(c.R) + 0.7152*lin(c.G) + 0.0722*lin(c.B)
}

// CheckContrast audits the token palette against WCAG AA: foreground on
// background for normal text, the primary action color as a UI component,
// and the focus indicator (primary ring on background).
func CheckContrast(tokens models.DesignTokens) []models.CodeIssue {
	var violations []models.CodeIssue

	background, haveBG := tokens.Colors["background"]
	if !haveBG {
		return nil
	}

	check := func(name, hex string, min float64, label string) {
		ratio := ContrastRatio(hex, background.Value)
		if ratio == 0 {
			return
		}
		if ratio < min {
			violations = append(violations, models.CodeIssue{
				Code:     "contrast",
				Message:  fmt.Sprintf("%s %s on background %s has contrast %.2f:1 (minimum %.1f:1)", label, name, background.Value, ratio, min),
				Severity: models.SeveritySerious,
			})
		}
	}

	if fg, ok := tokens.Colors["foreground"]; ok {
		check("foreground", fg.Value, MinContrastNormalText, "text color")
	}
	if primary, ok := tokens.Colors["primary"]; ok {
		check("primary", primary.Value, MinContrastUI, "UI component color")
		check("primary", primary.Value, MinContrastFocus, "focus indicator color")
	}
	if destructive, ok := tokens.Colors["destructive"]; ok {
		check("destructive", destructive.Value, MinContrastUI, "UI component color")
	}
	return violations
}
