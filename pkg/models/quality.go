package models

import "time"

// ReportStatus is the aggregate verdict of the quality report.
type ReportStatus string

// Aggregate verdicts. Warnings never cause FAIL.
const (
	ReportPass ReportStatus = "PASS"
	ReportFail ReportStatus = "FAIL"
)

// A11y severity levels, in increasing order of impact.
const (
	SeverityMinor    = "minor"
	SeverityModerate = "moderate"
	SeveritySerious  = "serious"
	SeverityCritical = "critical"
)

// AutoFix itemizes one fix applied during the validation-repair loop.
type AutoFix struct {
	Category    string `json:"category"`
	Before      string `json:"before"`
	After       string `json:"after"`
	Description string `json:"description"`
}

// AdherenceCategory is the per-category token adherence breakdown.
type AdherenceCategory struct {
	Category string  `json:"category"`
	Matched  int     `json:"matched"`
	Total    int     `json:"total"`
	Score    float64 `json:"score"`
}

// TokenAdherence compares rendered values against the approved token set.
// Colors match within ΔE ≤ 2 (CIE76); dimensions must match exactly.
type TokenAdherence struct {
	Categories []AdherenceCategory `json:"categories"`
	Overall    float64             `json:"overall"`
}

// QualityReport merges every validation dimension into one document,
// persistable as JSON and renderable as HTML.
type QualityReport struct {
	RunID       string    `json:"run_id"`
	GeneratedAt time.Time `json:"generated_at"`

	Status     ReportStatus      `json:"status"`
	Validation ValidationResults `json:"validation"`
	Scores     QualityScores     `json:"quality_scores"`

	A11yViolations     []CodeIssue    `json:"a11y_violations,omitempty"`
	ContrastViolations []CodeIssue    `json:"contrast_violations,omitempty"`
	KeyboardIssues     []CodeIssue    `json:"keyboard_issues,omitempty"`
	Adherence          TokenAdherence `json:"token_adherence"`

	AutoFixes          []AutoFix `json:"auto_fixes,omitempty"`
	AutoFixSuccessRate float64   `json:"auto_fix_success_rate"`

	Warnings []string `json:"warnings,omitempty"`
	// NoPatternMatched flags runs that generated without a library pattern.
	NoPatternMatched bool `json:"no_pattern_matched,omitempty"`
}

// CriticalOrSeriousA11y counts violations that gate the PASS decision.
func (r *QualityReport) CriticalOrSeriousA11y() int {
	n := 0
	for _, v := range r.A11yViolations {
		if v.Severity == SeverityCritical || v.Severity == SeveritySerious {
			n++
		}
	}
	return n
}
