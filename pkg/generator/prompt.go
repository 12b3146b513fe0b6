package generator

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/componentforge/forge/pkg/models"
	"github.com/componentforge/forge/pkg/patterns"
)

// Soft prompt budget in tokens (~4 chars per token). Exceeding it shapes the
// prompt (trimming, compression) but never fails a run.
const promptTokenBudget = 12000

const systemPrompt = `You are a senior React engineer generating production components. Respond with ONLY a JSON object: {"component": "<full .tsx source>", "stories": "<full .stories.tsx source>"}.

Non-negotiable constraints:
- TypeScript strict mode; never use "any".
- Accessible by default: label every interactive element, support keyboard use, preserve focus visibility.
- Never use eval, new Function, dangerouslySetInnerHTML, document.write, innerHTML assignment, or __proto__.
- Never hardcode secrets or read process.env in client code.
- Every token-backed style goes through a CSS variable (var(--color-primary), var(--spacing-md), ...), not a literal value.
- Export the component and its props interface by name.`

const repairInstruction = `Fix every error listed above. Respond with ONLY a JSON object {"component": "...", "stories": "..."} containing the FULL corrected sources, not a diff or fragment.`

// BuildUserPrompt assembles the Stage A user prompt: the pattern baseline,
// approved requirements, the compressed token table, and up to two
// exemplars. pattern may be nil (no pattern matched): generation then runs
// from tokens and requirements alone.
func BuildUserPrompt(pattern *models.Pattern, tokens models.DesignTokens, set *models.RequirementSet, exemplars []patterns.Exemplar) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Generate a %s component.\n", set.Classification.ComponentType)

	if pattern != nil {
		b.WriteString("\n## Reference pattern (adapt to the requirements below, do not copy verbatim)\n")
		fmt.Fprintf(&b, "Pattern %s v%s (%s):\n```tsx\n%s\n```\n", pattern.ID, pattern.Version, pattern.Source, trimCode(pattern.Code))
	} else {
		b.WriteString("\nNo reference pattern matched; generate from the requirements and tokens alone.\n")
	}

	b.WriteString("\n## Approved requirements\n")
	for _, cat := range models.AllCategories {
		names := set.Names(cat)
		if len(names) == 0 {
			continue
		}
		fmt.Fprintf(&b, "- %s: ", cat)
		var entries []string
		for _, p := range set.Accepted() {
			if p.Category != cat {
				continue
			}
			if p.Value != "" {
				entries = append(entries, fmt.Sprintf("%s (%s)", p.Name, p.Value))
			} else {
				entries = append(entries, p.Name)
			}
		}
		b.WriteString(strings.Join(entries, ", "))
		b.WriteString("\n")
	}

	b.WriteString("\n## Design tokens (reference through CSS variables)\n")
	b.WriteString(tokenTable(tokens, set))

	for i, ex := range exemplars {
		if i == patterns.MaxExemplars {
			break
		}
		fmt.Fprintf(&b, "\n## Exemplar %d: %s\n```tsx\n%s\n```\n", i+1, ex.Title, trimCode(ex.Code))
	}

	prompt := b.String()
	if estimateTokens(prompt) > promptTokenBudget && len(exemplars) > 0 {
		// Exemplars are the cheapest thing to drop when over budget.
		return BuildUserPrompt(pattern, tokens, set, nil)
	}
	return prompt
}

// buildRepairPrompt constructs the Stage B repair prompt from the previous
// code and the structured error list.
func buildRepairPrompt(component, stories string, issues []models.CodeIssue) string {
	var b strings.Builder
	b.WriteString("The generated component failed validation.\n\n## Previous component\n```tsx\n")
	b.WriteString(component)
	b.WriteString("\n```\n")
	if stories != "" {
		b.WriteString("\n## Previous stories\n```tsx\n")
		b.WriteString(stories)
		b.WriteString("\n```\n")
	}
	b.WriteString("\n## Errors\n")
	for _, issue := range issues {
		loc := issue.File
		if issue.Line > 0 {
			loc = fmt.Sprintf("%s:%d", issue.File, issue.Line)
		}
		code := issue.Code
		if code == "" {
			code = "error"
		}
		fmt.Fprintf(&b, "- [%s] %s: %s\n", code, loc, issue.Message)
	}
	b.WriteString("\n")
	b.WriteString(repairInstruction)
	return b.String()
}

var (
	blockComment = regexp.MustCompile(`(?s)/\*.*?\*/`)
	lineComment  = regexp.MustCompile(`(?m)^\s*//.*$`)
	blankRuns    = regexp.MustCompile(`\n{3,}`)
)

// trimCode strips comments and collapses blank runs so reference code spends
// its prompt budget on structure, not prose.
func trimCode(code string) string {
	code = blockComment.ReplaceAllString(code, "")
	code = lineComment.ReplaceAllString(code, "")
	code = blankRuns.ReplaceAllString(code, "\n\n")
	return strings.TrimSpace(code)
}

// tokenTable renders only the tokens the requirements actually reference,
// falling back to the core color/spacing/radius rows when nothing matches.
func tokenTable(tokens models.DesignTokens, set *models.RequirementSet) string {
	referenced := map[string]bool{}
	for _, p := range set.Accepted() {
		text := strings.ToLower(p.Name + " " + p.Value + " " + p.Rationale)
		for name := range tokens.Colors {
			if strings.Contains(text, strings.ToLower(name)) {
				referenced["colors."+name] = true
			}
		}
	}

	var b strings.Builder
	write := func(path string, tv models.TokenValue) {
		fmt.Fprintf(&b, "| %s | %s |\n", path, tv.Value)
	}
	b.WriteString("| token | value |\n|---|---|\n")

	// Core rows always present: primary palette, spacing, radius.
	for _, name := range []string{"primary", "destructive", "background", "foreground", "border"} {
		if tv, ok := tokens.Colors[name]; ok {
			write("colors."+name, tv)
		}
	}
	for path := range referenced {
		if !strings.HasPrefix(path, "colors.") {
			continue
		}
		name := strings.TrimPrefix(path, "colors.")
		switch name {
		case "primary", "destructive", "background", "foreground", "border":
			// already written
		default:
			if tv, ok := tokens.Colors[name]; ok {
				write(path, tv)
			}
		}
	}
	for _, key := range models.SpacingScale {
		if tv, ok := tokens.Spacing[key]; ok {
			write("spacing."+key, tv)
		}
	}
	for _, key := range models.BorderRadiusScale {
		if tv, ok := tokens.BorderRadius[key]; ok {
			write("borderRadius."+key, tv)
		}
	}
	if tokens.Typography.FontFamily.Value != "" {
		write("typography.fontFamily", tokens.Typography.FontFamily)
	}
	return b.String()
}

// estimateTokens approximates the LLM tokenizer at ~4 characters per token.
func estimateTokens(s string) int { return len(s) / 4 }
