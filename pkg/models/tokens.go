// Package models defines the shared value types that flow between pipeline
// stages. All types here are plain values: stages produce them, publish them
// into the run context, and never mutate them afterwards.
package models

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Scale keys recognized in extracted token sets.
var (
	FontSizeScale     = []string{"xs", "sm", "base", "lg", "xl", "2xl", "3xl", "4xl"}
	SpacingScale      = []string{"xs", "sm", "md", "lg", "xl", "2xl", "3xl"}
	BorderRadiusScale = []string{"sm", "md", "lg", "full"}
)

var (
	hexColorPattern  = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)
	cssLengthPattern = regexp.MustCompile(`^\d+(\.\d+)?(px|rem)$`)
)

// TokenValue is a single design token with its extraction confidence.
// Confidence 0 means "not reported" (Figma exact matches report 1.0).
// Fallback marks values substituted from the built-in default set.
type TokenValue struct {
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence,omitempty"`
	Fallback   bool    `json:"fallback,omitempty"`
}

// Typography groups font tokens. FontSize keys follow FontSizeScale.
type Typography struct {
	FontFamily TokenValue            `json:"fontFamily"`
	FontSize   map[string]TokenValue `json:"fontSize"`
	FontWeight map[string]TokenValue `json:"fontWeight"`
	LineHeight map[string]TokenValue `json:"lineHeight"`
}

// DesignTokens is the output of the token extraction stage: four required
// groups of semantic design constants.
type DesignTokens struct {
	Colors       map[string]TokenValue `json:"colors"`
	Typography   Typography            `json:"typography"`
	Spacing      map[string]TokenValue `json:"spacing"`
	BorderRadius map[string]TokenValue `json:"borderRadius"`
}

// TokenViolation describes a single token field that failed invariant
// validation, identified by its dotted path (e.g. "colors.primary").
type TokenViolation struct {
	Path    string `json:"path"`
	Value   string `json:"value"`
	Message string `json:"message"`
}

// ValidHexColor reports whether v is a six-digit hex color (#RRGGBB).
func ValidHexColor(v string) bool { return hexColorPattern.MatchString(v) }

// ValidCSSLength reports whether v parses under the length grammar (Npx / Nrem).
func ValidCSSLength(v string) bool { return cssLengthPattern.MatchString(v) }

// Validate checks every token against the group invariants: colors must be
// #RRGGBB, spacing and border radius values must be CSS lengths, and every
// reported confidence must fall in [0,1]. Line heights are unitless ratios or
// lengths, so only their confidence is checked.
func (t *DesignTokens) Validate() []TokenViolation {
	var violations []TokenViolation

	check := func(path string, tv TokenValue, valid func(string) bool, msg string) {
		if valid != nil && !valid(tv.Value) {
			violations = append(violations, TokenViolation{Path: path, Value: tv.Value, Message: msg})
		}
		if tv.Confidence < 0 || tv.Confidence > 1 {
			violations = append(violations, TokenViolation{
				Path:    path,
				Value:   fmt.Sprintf("%g", tv.Confidence),
				Message: "confidence outside [0,1]",
			})
		}
	}

	for _, name := range sortedKeys(t.Colors) {
		check("colors."+name, t.Colors[name], ValidHexColor, "color must match #RRGGBB")
	}
	for _, name := range sortedKeys(t.Typography.FontSize) {
		check("typography.fontSize."+name, t.Typography.FontSize[name], ValidCSSLength, "font size must be a CSS length")
	}
	for _, name := range sortedKeys(t.Typography.FontWeight) {
		check("typography.fontWeight."+name, t.Typography.FontWeight[name], nil, "")
	}
	for _, name := range sortedKeys(t.Typography.LineHeight) {
		check("typography.lineHeight."+name, t.Typography.LineHeight[name], nil, "")
	}
	check("typography.fontFamily", t.Typography.FontFamily, nil, "")
	for _, name := range sortedKeys(t.Spacing) {
		check("spacing."+name, t.Spacing[name], ValidCSSLength, "spacing must be a CSS length")
	}
	for _, name := range sortedKeys(t.BorderRadius) {
		// "9999px" and "full" sentinel both appear in radius scales.
		tv := t.BorderRadius[name]
		if tv.Value != "full" && !ValidCSSLength(tv.Value) {
			violations = append(violations, TokenViolation{
				Path: "borderRadius." + name, Value: tv.Value, Message: "border radius must be a CSS length",
			})
		}
		check("borderRadius."+name, TokenValue{Value: "0px", Confidence: tv.Confidence}, nil, "")
	}

	return violations
}

// CanonicalJSON serializes the token set with sorted keys so that equal
// values always produce identical bytes (used for hashing and cache keys).
func (t *DesignTokens) CanonicalJSON() ([]byte, error) {
	// encoding/json sorts map keys, which is exactly the stability we need.
	return json.Marshal(t)
}

// Lookup resolves a dotted token path ("colors.primary", "spacing.md").
func (t *DesignTokens) Lookup(path string) (TokenValue, bool) {
	parts := strings.SplitN(path, ".", 3)
	if len(parts) < 2 {
		return TokenValue{}, false
	}
	switch parts[0] {
	case "colors":
		tv, ok := t.Colors[parts[1]]
		return tv, ok
	case "spacing":
		tv, ok := t.Spacing[parts[1]]
		return tv, ok
	case "borderRadius":
		tv, ok := t.BorderRadius[parts[1]]
		return tv, ok
	case "typography":
		if len(parts) != 3 {
			if parts[1] == "fontFamily" {
				return t.Typography.FontFamily, true
			}
			return TokenValue{}, false
		}
		switch parts[1] {
		case "fontSize":
			tv, ok := t.Typography.FontSize[parts[2]]
			return tv, ok
		case "fontWeight":
			tv, ok := t.Typography.FontWeight[parts[2]]
			return tv, ok
		case "lineHeight":
			tv, ok := t.Typography.LineHeight[parts[2]]
			return tv, ok
		}
	}
	return TokenValue{}, false
}

func sortedKeys(m map[string]TokenValue) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
