package tokens

import "github.com/componentforge/forge/pkg/models"

// FallbackTokens is the built-in default token set. Any extracted field that
// fails validation or falls below the confidence threshold is substituted
// from here and marked fallback=true.
func FallbackTokens() models.DesignTokens {
	fb := func(v string) models.TokenValue {
		return models.TokenValue{Value: v, Confidence: 1, Fallback: true}
	}
	return models.DesignTokens{
		Colors: map[string]models.TokenValue{
			"primary":     fb("#3B82F6"),
			"secondary":   fb("#64748B"),
			"destructive": fb("#EF4444"),
			"background":  fb("#FFFFFF"),
			"foreground":  fb("#0F172A"),
			"muted":       fb("#F1F5F9"),
			"accent":      fb("#F1F5F9"),
			"border":      fb("#E2E8F0"),
		},
		Typography: models.Typography{
			FontFamily: fb("Inter"),
			FontSize: map[string]models.TokenValue{
				"xs":   fb("0.75rem"),
				"sm":   fb("0.875rem"),
				"base": fb("1rem"),
				"lg":   fb("1.125rem"),
				"xl":   fb("1.25rem"),
				"2xl":  fb("1.5rem"),
				"3xl":  fb("1.875rem"),
				"4xl":  fb("2.25rem"),
			},
			FontWeight: map[string]models.TokenValue{
				"normal":   fb("400"),
				"medium":   fb("500"),
				"semibold": fb("600"),
				"bold":     fb("700"),
			},
			LineHeight: map[string]models.TokenValue{
				"tight":  fb("1.25"),
				"normal": fb("1.5"),
				"loose":  fb("1.75"),
			},
		},
		Spacing: map[string]models.TokenValue{
			"xs":  fb("4px"),
			"sm":  fb("8px"),
			"md":  fb("16px"),
			"lg":  fb("24px"),
			"xl":  fb("32px"),
			"2xl": fb("48px"),
			"3xl": fb("64px"),
		},
		BorderRadius: map[string]models.TokenValue{
			"sm":   fb("4px"),
			"md":   fb("8px"),
			"lg":   fb("12px"),
			"full": fb("9999px"),
		},
	}
}
