package quality

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/componentforge/forge/pkg/models"
)

func passingCode() *models.GeneratedCode {
	return &models.GeneratedCode{
		Component: `import * as React from "react";
export function Button() {
  return <button aria-label="Submit" style={{ background: "var(--color-primary)", padding: "16px" }}>Go</button>;
}`,
		Metadata: models.GenerationMetadata{
			ValidationResults: models.ValidationResults{
				FinalStatus:          models.ValidationPassed,
				TypeScriptPassed:     true,
				ESLintPassed:         true,
				SecuritySanitization: models.SecuritySanitization{IsSafe: true},
			},
			QualityScores: models.QualityScores{Compilation: 100, TypeSafety: 100, Linting: 100, Overall: 100},
		},
	}
}

func goodTokens() models.DesignTokens {
	return models.DesignTokens{
		Colors: map[string]models.TokenValue{
			"primary":    {Value: "#1D4ED8"},
			"background": {Value: "#FFFFFF"},
			"foreground": {Value: "#0F172A"},
		},
		Spacing: map[string]models.TokenValue{"md": {Value: "16px"}},
	}
}

func TestAggregate_Pass(t *testing.T) {
	report := NewAggregator().Aggregate(Input{
		RunID:  "run-1",
		Code:   passingCode(),
		Tokens: goodTokens(),
	})

	assert.Equal(t, models.ReportPass, report.Status)
	assert.Empty(t, report.A11yViolations)
	assert.GreaterOrEqual(t, report.Adherence.Overall, 0.9)
	assert.Equal(t, 1.0, report.AutoFixSuccessRate)
	assert.Equal(t, report.Adherence.Overall, report.Validation.TokenAdherenceScore)
}

func TestAggregate_FailOnTypeScript(t *testing.T) {
	code := passingCode()
	code.Metadata.ValidationResults.TypeScriptPassed = false
	code.Metadata.ValidationResults.TypeScriptErrors = []models.CodeIssue{{Code: "TS2304", Message: "x"}}

	report := NewAggregator().Aggregate(Input{RunID: "run-2", Code: code, Tokens: goodTokens()})
	assert.Equal(t, models.ReportFail, report.Status)
}

func TestAggregate_FailOnCriticalA11y(t *testing.T) {
	code := passingCode()
	code.Component = `export function Hero() { return <img src="/hero.png" />; }`

	report := NewAggregator().Aggregate(Input{RunID: "run-3", Code: code, Tokens: goodTokens()})
	assert.Equal(t, models.ReportFail, report.Status)
	require.NotEmpty(t, report.A11yViolations)
	assert.Equal(t, "img-alt", report.A11yViolations[0].Code)
}

func TestAggregate_WarningsNeverFail(t *testing.T) {
	report := NewAggregator().Aggregate(Input{
		RunID:    "run-4",
		Code:     passingCode(),
		Tokens:   goodTokens(),
		Warnings: []string{"vector index unreachable; retrieval degraded to BM25-only"},
	})
	assert.Equal(t, models.ReportPass, report.Status)
	assert.Len(t, report.Warnings, 1)
}

func TestAggregate_FailOnLowAdherence(t *testing.T) {
	code := passingCode()
	// Colors far from any approved token.
	code.Component = `export function X() { return <div style={{ color: "#00FF00", background: "#FF00FF", margin: "13px" }} />; }`

	report := NewAggregator().Aggregate(Input{RunID: "run-5", Code: code, Tokens: goodTokens()})
	assert.Less(t, report.Adherence.Overall, 0.9)
	assert.Equal(t, models.ReportFail, report.Status)
}

func TestAggregate_NoPatternFlagged(t *testing.T) {
	report := NewAggregator().Aggregate(Input{
		RunID:            "run-6",
		Code:             passingCode(),
		Tokens:           goodTokens(),
		NoPatternMatched: true,
	})
	assert.True(t, report.NoPatternMatched)

	html, err := RenderHTML(report)
	require.NoError(t, err)
	assert.Contains(t, string(html), "No pattern matched")
}

func TestAutoFixSuccessRate(t *testing.T) {
	// One auto-fix and one converged repair, nothing left open: 1.0.
	meta := models.GenerationMetadata{
		AutoFixes:   []models.AutoFix{{Category: "security"}},
		FixAttempts: 1,
	}
	v := models.ValidationResults{FinalStatus: models.ValidationPassed, SecuritySanitization: models.SecuritySanitization{IsSafe: true}}
	assert.Equal(t, 1.0, autoFixSuccessRate(meta, v))

	// One fix applied, two errors still open: 1/3.
	v = models.ValidationResults{
		FinalStatus:          models.ValidationFailed,
		TypeScriptErrors:     []models.CodeIssue{{}, {}},
		SecuritySanitization: models.SecuritySanitization{IsSafe: true},
	}
	assert.InDelta(t, 1.0/3.0, autoFixSuccessRate(meta, v), 1e-9)
}

func TestReportJSONRoundTrip(t *testing.T) {
	report := NewAggregator().Aggregate(Input{RunID: "run-7", Code: passingCode(), Tokens: goodTokens()})

	data, err := JSON(report)
	require.NoError(t, err)

	var decoded models.QualityReport
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, report.Status, decoded.Status)
	assert.Equal(t, report.RunID, decoded.RunID)
}

func TestRenderHTML(t *testing.T) {
	report := NewAggregator().Aggregate(Input{RunID: "run-8", Code: passingCode(), Tokens: goodTokens()})

	html, err := RenderHTML(report)
	require.NoError(t, err)
	s := string(html)
	assert.True(t, strings.HasPrefix(s, "<!DOCTYPE html>"))
	assert.Contains(t, s, "run-8")
	assert.Contains(t, s, "PASS")
}
