package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTokens() DesignTokens {
	return DesignTokens{
		Colors: map[string]TokenValue{
			"primary":     {Value: "#3B82F6", Confidence: 0.95},
			"destructive": {Value: "#EF4444", Confidence: 0.9},
		},
		Typography: Typography{
			FontFamily: TokenValue{Value: "Inter", Confidence: 0.8},
			FontSize: map[string]TokenValue{
				"base": {Value: "16px", Confidence: 0.9},
				"3xl":  {Value: "1.875rem", Confidence: 0.7},
			},
			FontWeight: map[string]TokenValue{"bold": {Value: "700"}},
			LineHeight: map[string]TokenValue{"normal": {Value: "1.5"}},
		},
		Spacing: map[string]TokenValue{
			"md": {Value: "16px", Confidence: 1},
		},
		BorderRadius: map[string]TokenValue{
			"md":   {Value: "8px", Confidence: 1},
			"full": {Value: "9999px"},
		},
	}
}

func TestDesignTokens_ValidateClean(t *testing.T) {
	tokens := sampleTokens()
	assert.Empty(t, tokens.Validate())
}

func TestDesignTokens_ValidateBadColor(t *testing.T) {
	tokens := sampleTokens()
	tokens.Colors["primary"] = TokenValue{Value: "blue"}

	violations := tokens.Validate()
	require.Len(t, violations, 1)
	assert.Equal(t, "colors.primary", violations[0].Path)
}

func TestDesignTokens_ValidateShortHexRejected(t *testing.T) {
	tokens := sampleTokens()
	tokens.Colors["primary"] = TokenValue{Value: "#3B8"}

	violations := tokens.Validate()
	require.Len(t, violations, 1)
	assert.Contains(t, violations[0].Message, "#RRGGBB")
}

func TestDesignTokens_ValidateBadLength(t *testing.T) {
	tokens := sampleTokens()
	tokens.Spacing["md"] = TokenValue{Value: "16pt"}

	violations := tokens.Validate()
	require.Len(t, violations, 1)
	assert.Equal(t, "spacing.md", violations[0].Path)
}

func TestDesignTokens_ValidateConfidenceRange(t *testing.T) {
	tokens := sampleTokens()
	tokens.Colors["primary"] = TokenValue{Value: "#3B82F6", Confidence: 1.2}

	violations := tokens.Validate()
	require.Len(t, violations, 1)
	assert.Contains(t, violations[0].Message, "[0,1]")
}

func TestDesignTokens_JSONRoundTrip(t *testing.T) {
	tokens := sampleTokens()

	data, err := tokens.CanonicalJSON()
	require.NoError(t, err)

	var decoded DesignTokens
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, tokens, decoded)

	// Canonical serialization is byte-stable.
	again, err := decoded.CanonicalJSON()
	require.NoError(t, err)
	assert.Equal(t, data, again)
}

func TestDesignTokens_Lookup(t *testing.T) {
	tokens := sampleTokens()

	tv, ok := tokens.Lookup("colors.primary")
	require.True(t, ok)
	assert.Equal(t, "#3B82F6", tv.Value)

	tv, ok = tokens.Lookup("typography.fontSize.base")
	require.True(t, ok)
	assert.Equal(t, "16px", tv.Value)

	_, ok = tokens.Lookup("colors.missing")
	assert.False(t, ok)

	_, ok = tokens.Lookup("nonsense")
	assert.False(t, ok)
}

func TestValidCSSLength(t *testing.T) {
	assert.True(t, ValidCSSLength("16px"))
	assert.True(t, ValidCSSLength("1.875rem"))
	assert.False(t, ValidCSSLength("16"))
	assert.False(t, ValidCSSLength("16em"))
	assert.False(t, ValidCSSLength("-4px"))
}
