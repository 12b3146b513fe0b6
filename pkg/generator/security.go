// Package generator implements LLM code generation with a bounded
// validation-repair loop: prompt assembly, structured generation, a
// fixed-order validator chain, LLM-driven repair, and post-processing.
package generator

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/componentforge/forge/pkg/models"
)

// securityPattern is one banned construct. Patterns with a rewrite have a
// deterministic safe replacement; the rest are report-only.
type securityPattern struct {
	name     string
	re       *regexp.Regexp
	severity string
	rewrite  func(line string) (string, bool)
}

var securityPatterns = []securityPattern{
	{name: "eval", re: regexp.MustCompile(`\beval\s*\(`), severity: "high"},
	{name: "dangerouslySetInnerHTML", re: regexp.MustCompile(`dangerouslySetInnerHTML`), severity: "high"},
	{name: "document.write", re: regexp.MustCompile(`document\.write\s*\(`), severity: "high"},
	{name: "new Function", re: regexp.MustCompile(`new\s+Function\s*\(`), severity: "high"},
	{
		name:     "innerHTML assignment",
		re:       regexp.MustCompile(`\.innerHTML\s*=`),
		severity: "high",
		rewrite: func(line string) (string, bool) {
			return strings.Replace(line, ".innerHTML", ".textContent", 1), true
		},
	},
	{name: "prototype pollution", re: regexp.MustCompile(`__proto__`), severity: "high"},
	{name: "hardcoded secret", re: regexp.MustCompile(`(?i)(api[_-]?key|secret|password|token)\s*[:=]\s*["'][A-Za-z0-9+/_-]{16,}["']`), severity: "high"},
	{name: "client-side env access", re: regexp.MustCompile(`process\.env\.[A-Za-z_]`), severity: "medium"},
}

// Sanitizer is the regex-based security scanner, the first validator in the
// chain. It never calls out to anything; a scan is pure.
type Sanitizer struct{}

// NewSanitizer creates the scanner.
func NewSanitizer() *Sanitizer { return &Sanitizer{} }

// Scan checks the code line by line. Any high-severity finding marks the
// code unsafe. When every finding has a deterministic rewrite, the rewritten
// code is returned in SanitizedCode; otherwise findings are report-only and
// the repair loop handles them.
func (s *Sanitizer) Scan(code string) models.SecuritySanitization {
	result := models.SecuritySanitization{IsSafe: true}

	lines := strings.Split(code, "\n")
	rewritten := make([]string, len(lines))
	copy(rewritten, lines)
	allRewritable := true
	anyHigh := false

	for i, line := range lines {
		for _, p := range securityPatterns {
			if !p.re.MatchString(line) {
				continue
			}
			result.Issues = append(result.Issues, models.CodeIssue{
				Line:     i + 1,
				Code:     p.name,
				Message:  fmt.Sprintf("banned construct %s: %s", p.name, p.re.String()),
				Severity: p.severity,
			})
			if p.severity == "high" {
				anyHigh = true
			}
			if p.rewrite != nil {
				if fixed, ok := p.rewrite(rewritten[i]); ok {
					rewritten[i] = fixed
					continue
				}
			}
			allRewritable = false
		}
	}

	if anyHigh {
		result.IsSafe = false
	}
	if len(result.Issues) > 0 && allRewritable {
		result.SanitizedCode = strings.Join(rewritten, "\n")
	}
	return result
}
