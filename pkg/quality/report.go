package quality

import (
	"encoding/json"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/componentforge/forge/pkg/models"
)

// Aggregator merges the generator's validation results with the audit
// dimensions into the final quality report.
type Aggregator struct {
	now func() time.Time
}

// NewAggregator creates the aggregation stage.
func NewAggregator() *Aggregator {
	return &Aggregator{now: time.Now}
}

// Input bundles everything the aggregator consumes.
type Input struct {
	RunID    string
	Code     *models.GeneratedCode
	Tokens   models.DesignTokens
	Warnings []string
	// NoPatternMatched marks runs that generated without a library pattern.
	NoPatternMatched bool
}

// Aggregate produces the quality report. PASS requires: TypeScript passed,
// zero ESLint errors, zero critical or serious a11y violations, and token
// adherence at or above the threshold. Warnings never cause FAIL.
func (a *Aggregator) Aggregate(in Input) *models.QualityReport {
	validation := in.Code.Metadata.ValidationResults

	report := &models.QualityReport{
		RunID:              in.RunID,
		GeneratedAt:        a.now(),
		Validation:         validation,
		Scores:             in.Code.Metadata.QualityScores,
		A11yViolations:     AuditA11y(in.Code.Component),
		ContrastViolations: CheckContrast(in.Tokens),
		KeyboardIssues:     CheckKeyboard(in.Code.Component),
		Adherence:          MeasureAdherence(in.Code.Component, in.Tokens),
		AutoFixes:          in.Code.Metadata.AutoFixes,
		Warnings:           in.Warnings,
		NoPatternMatched:   in.NoPatternMatched,
	}

	// Fold the audit dimensions back into the validation record so the two
	// serializations agree.
	report.Validation.A11yViolations = report.A11yViolations
	report.Validation.ContrastViolations = report.ContrastViolations
	report.Validation.TokenAdherenceScore = report.Adherence.Overall

	report.AutoFixSuccessRate = autoFixSuccessRate(in.Code.Metadata, validation)

	pass := validation.TypeScriptPassed &&
		len(validation.ESLintErrors) == 0 &&
		report.CriticalOrSeriousA11y() == 0 &&
		report.Adherence.Overall >= AdherenceThreshold
	if pass {
		report.Status = models.ReportPass
	} else {
		report.Status = models.ReportFail
	}
	return report
}

// autoFixSuccessRate = fixed / (fixed + unfixed). Deterministic rewrites and
// repair rounds that converged count as fixed; issues still open at the end
// count as unfixed. A run that needed no fixing rates 1.0.
func autoFixSuccessRate(meta models.GenerationMetadata, v models.ValidationResults) float64 {
	fixed := len(meta.AutoFixes)
	if v.FinalStatus == models.ValidationPassed {
		fixed += meta.FixAttempts
	}
	unfixed := len(v.TypeScriptErrors) + len(v.ESLintErrors)
	if !v.SecuritySanitization.IsSafe {
		unfixed += len(v.SecuritySanitization.Issues)
	}
	if fixed+unfixed == 0 {
		return 1.0
	}
	return float64(fixed) / float64(fixed+unfixed)
}

// JSON serializes the report for persistence.
func JSON(report *models.QualityReport) ([]byte, error) {
	return json.MarshalIndent(report, "", "  ")
}

var reportTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"percent": func(v float64) string { return fmt.Sprintf("%.0f%%", v*100) },
	"score":   func(v float64) string { return fmt.Sprintf("%.0f", v) },
	"join":    strings.Join,
}).Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Quality report {{.RunID}}</title>
<style>
body { font-family: system-ui, sans-serif; margin: 2rem; color: #0f172a; }
.status { font-size: 1.5rem; font-weight: 700; }
.status.pass { color: #16a34a; }
.status.fail { color: #dc2626; }
table { border-collapse: collapse; margin: 1rem 0; }
td, th { border: 1px solid #e2e8f0; padding: 0.4rem 0.8rem; text-align: left; }
.sev-critical, .sev-serious { color: #dc2626; }
.sev-moderate { color: #d97706; }
</style>
</head>
<body>
<h1>Quality report</h1>
<p>Run {{.RunID}} · generated {{.GeneratedAt.Format "2006-01-02 15:04:05 MST"}}</p>
<p class="status {{if eq (printf "%s" .Status) "PASS"}}pass{{else}}fail{{end}}">{{.Status}}</p>

<h2>Scores</h2>
<table>
<tr><th>Dimension</th><th>Score</th></tr>
<tr><td>Compilation</td><td>{{score .Scores.Compilation}}</td></tr>
<tr><td>Type safety</td><td>{{score .Scores.TypeSafety}}</td></tr>
<tr><td>Linting</td><td>{{score .Scores.Linting}}</td></tr>
<tr><td>Overall</td><td>{{score .Scores.Overall}}</td></tr>
<tr><td>Token adherence</td><td>{{percent .Adherence.Overall}}</td></tr>
<tr><td>Auto-fix success</td><td>{{percent .AutoFixSuccessRate}}</td></tr>
</table>

{{if .NoPatternMatched}}<p><strong>No pattern matched</strong> — generated from tokens and requirements alone.</p>{{end}}

{{if .A11yViolations}}
<h2>Accessibility violations</h2>
<table>
<tr><th>Rule</th><th>Severity</th><th>Line</th><th>Message</th></tr>
{{range .A11yViolations}}<tr><td>{{.Code}}</td><td class="sev-{{.Severity}}">{{.Severity}}</td><td>{{.Line}}</td><td>{{.Message}}</td></tr>
{{end}}</table>
{{end}}

{{if .ContrastViolations}}
<h2>Contrast violations</h2>
<ul>{{range .ContrastViolations}}<li class="sev-{{.Severity}}">{{.Message}}</li>{{end}}</ul>
{{end}}

{{if .AutoFixes}}
<h2>Auto-fixes applied</h2>
<table>
<tr><th>Category</th><th>Before</th><th>After</th><th>Description</th></tr>
{{range .AutoFixes}}<tr><td>{{.Category}}</td><td><code>{{.Before}}</code></td><td><code>{{.After}}</code></td><td>{{.Description}}</td></tr>
{{end}}</table>
{{end}}

{{if .Warnings}}
<h2>Warnings</h2>
<ul>{{range .Warnings}}<li>{{.}}</li>{{end}}</ul>
{{end}}
</body>
</html>
`))

// RenderHTML renders the report as a standalone HTML document.
func RenderHTML(report *models.QualityReport) ([]byte, error) {
	var b strings.Builder
	if err := reportTemplate.Execute(&b, report); err != nil {
		return nil, fmt.Errorf("render quality report: %w", err)
	}
	return []byte(b.String()), nil
}
