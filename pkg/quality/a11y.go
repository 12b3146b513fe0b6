package quality

import (
	"regexp"
	"strings"

	"github.com/componentforge/forge/pkg/models"
)

// Static axe-style audit of generated TSX. These checks are heuristic — they
// read source, not a rendered DOM — so they bias toward the violations that
// survive rendering unchanged: missing attributes and banned patterns.
var a11yChecks = []struct {
	name     string
	re       *regexp.Regexp
	exempt   *regexp.Regexp // a match on the same line clears the finding
	severity string
	message  string
}{
	{
		name:     "img-alt",
		re:       regexp.MustCompile(`<img\b[^>]*>`),
		exempt:   regexp.MustCompile(`\balt\s*=`),
		severity: models.SeverityCritical,
		message:  "img element has no alt attribute",
	},
	{
		name:     "positive-tabindex",
		re:       regexp.MustCompile(`tabIndex=\{?["']?[1-9]`),
		severity: models.SeveritySerious,
		message:  "positive tabIndex breaks the natural tab order",
	},
	{
		name:     "click-without-keyboard",
		re:       regexp.MustCompile(`<(div|span)\b[^>]*onClick`),
		exempt:   regexp.MustCompile(`onKeyDown|onKeyUp|role=`),
		severity: models.SeveritySerious,
		message:  "clickable non-interactive element lacks a keyboard handler or role",
	},
	{
		name:     "outline-removed",
		re:       regexp.MustCompile(`outline:\s*none|outline-none`),
		exempt:   regexp.MustCompile(`focus-visible|focus:ring|ring-`),
		severity: models.SeveritySerious,
		message:  "focus outline removed without a visible replacement",
	},
	{
		name:     "autofocus",
		re:       regexp.MustCompile(`\bautoFocus\b`),
		severity: models.SeverityModerate,
		message:  "autoFocus steals focus on mount",
	},
}

// iconOnlyButton matches buttons whose content is a single self-closed
// element (an icon) with no text.
var iconOnlyButton = regexp.MustCompile(`<button\b[^>]*>\s*<[A-Za-z][^>]*/>\s*</button>`)

// AuditA11y runs the static accessibility checks over the component source.
func AuditA11y(componentCode string) []models.CodeIssue {
	code := stripHeader(componentCode)
	var violations []models.CodeIssue

	for lineNo, line := range strings.Split(code, "\n") {
		for _, check := range a11yChecks {
			if !check.re.MatchString(line) {
				continue
			}
			if check.exempt != nil && check.exempt.MatchString(line) {
				continue
			}
			violations = append(violations, models.CodeIssue{
				Line:     lineNo + 1,
				Code:     check.name,
				Message:  check.message,
				Severity: check.severity,
			})
		}
	}

	// Icon-only buttons need an accessible name. Multi-line match, so it
	// runs over the whole source.
	for _, m := range iconOnlyButton.FindAllString(code, -1) {
		if strings.Contains(m, "aria-label") || strings.Contains(m, "aria-labelledby") {
			continue
		}
		violations = append(violations, models.CodeIssue{
			Code:     "button-name",
			Message:  "icon-only button has no accessible name (aria-label)",
			Severity: models.SeverityCritical,
		})
	}

	return violations
}

// CheckKeyboard looks for keyboard-navigation gaps: interactive elements
// opted out of the tab order.
func CheckKeyboard(componentCode string) []models.CodeIssue {
	code := stripHeader(componentCode)
	var issues []models.CodeIssue

	negativeTab := regexp.MustCompile(`<(button|a|input|select|textarea)\b[^>]*tabIndex=\{?-1`)
	for lineNo, line := range strings.Split(code, "\n") {
		if negativeTab.MatchString(line) && !strings.Contains(line, "aria-hidden") {
			issues = append(issues, models.CodeIssue{
				Line:     lineNo + 1,
				Code:     "keyboard-unreachable",
				Message:  "interactive element removed from tab order",
				Severity: models.SeverityModerate,
			})
		}
	}
	return issues
}
