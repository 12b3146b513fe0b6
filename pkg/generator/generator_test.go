package generator

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/componentforge/forge/pkg/llm"
	"github.com/componentforge/forge/pkg/models"
)

// fakeChecker returns scripted results per invocation.
type fakeChecker struct {
	name    string
	results []CheckResult
	calls   int
}

func (f *fakeChecker) Name() string { return f.name }

func (f *fakeChecker) Check(context.Context, string, string) (CheckResult, error) {
	idx := f.calls
	if idx >= len(f.results) {
		idx = len(f.results) - 1
	}
	f.calls++
	return f.results[idx], nil
}

func passChecker(name string) *fakeChecker {
	return &fakeChecker{name: name, results: []CheckResult{{Passed: true}}}
}

func output(t *testing.T, component, stories string) string {
	t.Helper()
	data, err := json.Marshal(map[string]string{"component": component, "stories": stories})
	require.NoError(t, err)
	return string(data)
}

func testRequirements() *models.RequirementSet {
	return &models.RequirementSet{
		Classification: models.ComponentClassification{ComponentType: "Button", Confidence: 0.95},
		Proposals:      []models.RequirementProposal{
			{Category: models.CategoryProps, Name: "variant", Value: "default|destructive", Status: models.ProposalApproved},
			{Category: models.CategoryEvents, Name: "onClick", Status: models.ProposalApproved},
		},
	}
}

func testTokens() models.DesignTokens {
	return models.DesignTokens{
		Colors:       map[string]models.TokenValue{"primary": {Value: "#3B82F6", Confidence: 1}},
		Spacing:      map[string]models.TokenValue{"md": {Value: "16px", Confidence: 1}},
		BorderRadius: map[string]models.TokenValue{"md": {Value: "8px", Confidence: 1}},
	}
}

func testPattern() *models.Pattern {
	return &models.Pattern{
		ID:       "shadcn-button",
		Name:     "Button",
		Version:  "1.0.0",
		Code:     "export function Button() { return <button/>; }",
		Metadata: models.PatternMetadata{ComponentType: "Button"},
	}
}

const cleanComponent = `import * as React from "react";

export interface ButtonProps {
  onClick?: () => void;
}

export function Button({ onClick }: ButtonProps) {
  return <button onClick={onClick} style={{ background: "var(--color-primary)" }}>Go</button>;
}`

func TestGenerate_HappyPath(t *testing.T) {
	client := llm.NewScriptedClient()
	client.AddSequential(llm.ScriptEntry{Content: output(t, cleanComponent, "export default {};")})

	g := NewGenerator(client, nil, []Checker{passChecker("typescript"), passChecker("eslint")}, Options{})
	code, err := g.Generate(context.Background(), Request{
		Pattern:      testPattern(),
		Tokens:       testTokens(),
		Requirements: testRequirements(),
	})
	require.NoError(t, err)

	assert.Equal(t, models.RunCompleted, code.Status)
	assert.Equal(t, models.ValidationPassed, code.Metadata.ValidationResults.FinalStatus)
	assert.Zero(t, code.Metadata.FixAttempts)

	// Provenance header present and parseable.
	assert.Contains(t, code.Component, "pattern_id: shadcn-button")
	parsed, attempts, ok := ParseProvenanceHeader(code.Component)
	require.True(t, ok)
	assert.Equal(t, "shadcn-button", parsed.PatternID)
	assert.Equal(t, "1.0.0", parsed.PatternVersion)
	assert.Equal(t, code.Provenance.TokensHash, parsed.TokensHash)
	assert.Equal(t, code.Provenance.RequirementsHash, parsed.RequirementsHash)
	assert.Zero(t, attempts)

	assert.GreaterOrEqual(t, code.Metadata.QualityScores.Overall, 85.0)
	assert.NotEmpty(t, code.TokensJSON)
	assert.NotEmpty(t, code.RequirementsJSON)
}

func TestGenerate_EvalFailsThenFixes(t *testing.T) {
	unsafe := "line1\nline2\nline3\nline4\nline5\nline6\nline7\nline8\nline9\nconst x = eval(\"1+1\");"
	client := llm.NewScriptedClient()
	client.AddSequential(llm.ScriptEntry{Content: output(t, unsafe, "")})
	client.AddSequential(llm.ScriptEntry{Content: output(t, cleanComponent, "")})

	g := NewGenerator(client, nil, []Checker{passChecker("typescript"), passChecker("eslint")}, Options{})
	code, err := g.Generate(context.Background(), Request{
		Pattern:      testPattern(),
		Tokens:       testTokens(),
		Requirements: testRequirements(),
	})
	require.NoError(t, err)

	// Attempt 1 flagged eval at line 10, one repair round fixed it.
	assert.Equal(t, 1, code.Metadata.FixAttempts)
	assert.Equal(t, models.ValidationPassed, code.Metadata.ValidationResults.FinalStatus)
	assert.True(t, code.Metadata.ValidationResults.SecuritySanitization.IsSafe)
	assert.NotContains(t, code.Component, "eval(")

	// The repair prompt carried the structured error with its line.
	require.Len(t, client.ChatCalls, 2)
	repairPrompt := client.ChatCalls[1].Messages[1].Content
	assert.Contains(t, repairPrompt, "eval")
	assert.Contains(t, repairPrompt, ":10")
	assert.Contains(t, repairPrompt, "FULL corrected")
}

func TestGenerate_UnconvergedReturnsCode(t *testing.T) {
	failing := &fakeChecker{name: "typescript", results: []CheckResult{{
		Passed: false,
		Errors: []models.CodeIssue{{File: "Component.tsx", Line: 3, Code: "TS2304", Message: "Cannot find name 'x'", Severity: "error"}},
	}}}

	client := llm.NewScriptedClient()
	for range 3 {
		client.AddSequential(llm.ScriptEntry{Content: output(t, cleanComponent, "")})
	}

	g := NewGenerator(client, nil, []Checker{failing, passChecker("eslint")}, Options{MaxFixAttempts: 2})
	code, err := g.Generate(context.Background(), Request{
		Pattern:      testPattern(),
		Tokens:       testTokens(),
		Requirements: testRequirements(),
	})
	require.NoError(t, err, "unconverged validation is not an error")

	assert.Equal(t, models.RunCompleted, code.Status)
	assert.Equal(t, models.ValidationFailed, code.Metadata.ValidationResults.FinalStatus)
	assert.Equal(t, 2, code.Metadata.FixAttempts)
	assert.NotEmpty(t, code.Component, "the code is returned even when validation fails")
	assert.False(t, code.Metadata.ValidationResults.TypeScriptPassed)
	assert.Len(t, client.ChatCalls, 3, "initial call plus MAX_FIX_ATTEMPTS repairs")
}

func TestGenerate_InnerHTMLAutoFixWithoutRepair(t *testing.T) {
	unsafe := "function set(el: HTMLElement, s: string) {\n  el.innerHTML = s;\n}"
	client := llm.NewScriptedClient()
	client.AddSequential(llm.ScriptEntry{Content: output(t, unsafe, "")})

	g := NewGenerator(client, nil, []Checker{passChecker("typescript"), passChecker("eslint")}, Options{})
	code, err := g.Generate(context.Background(), Request{
		Pattern:      testPattern(),
		Tokens:       testTokens(),
		Requirements: testRequirements(),
	})
	require.NoError(t, err)

	assert.Zero(t, code.Metadata.FixAttempts, "deterministic rewrite burns no LLM repair")
	assert.Len(t, client.ChatCalls, 1)
	assert.Contains(t, code.Component, "textContent")
	require.NotEmpty(t, code.Metadata.AutoFixes)
	assert.Equal(t, "security", code.Metadata.AutoFixes[0].Category)
	assert.Equal(t, models.ValidationPassed, code.Metadata.ValidationResults.FinalStatus)
}

func TestGenerate_MalformedJSONRetriedOnce(t *testing.T) {
	client := llm.NewScriptedClient()
	client.AddSequential(llm.ScriptEntry{Content: "not json at all"})
	client.AddSequential(llm.ScriptEntry{Content: output(t, cleanComponent, "")})

	g := NewGenerator(client, nil, []Checker{passChecker("typescript")}, Options{})
	code, err := g.Generate(context.Background(), Request{
		Pattern:      testPattern(),
		Tokens:       testTokens(),
		Requirements: testRequirements(),
	})
	require.NoError(t, err)
	assert.Equal(t, models.ValidationPassed, code.Metadata.ValidationResults.FinalStatus)
	assert.Len(t, client.ChatCalls, 2)
	assert.Contains(t, client.ChatCalls[1].Messages[len(client.ChatCalls[1].Messages)-1].Content, "not valid JSON")
}

func TestGenerate_NoPatternFallbackPath(t *testing.T) {
	client := llm.NewScriptedClient()
	client.AddSequential(llm.ScriptEntry{Content: output(t, cleanComponent, "")})

	g := NewGenerator(client, nil, []Checker{passChecker("typescript")}, Options{})
	code, err := g.Generate(context.Background(), Request{
		Pattern:      nil,
		Tokens:       testTokens(),
		Requirements: testRequirements(),
	})
	require.NoError(t, err)

	assert.Empty(t, code.Metadata.PatternUsed)
	assert.Empty(t, code.Provenance.PatternID)
	prompt := client.ChatCalls[0].Messages[1].Content
	assert.Contains(t, prompt, "No reference pattern matched")
}

func TestGenerate_SkippedCheckers(t *testing.T) {
	client := llm.NewScriptedClient()
	client.AddSequential(llm.ScriptEntry{Content: output(t, cleanComponent, "")})

	skipped := &fakeChecker{name: "typescript", results: []CheckResult{{Skipped: true, Passed: true}}}
	skippedLint := &fakeChecker{name: "eslint", results: []CheckResult{{Skipped: true, Passed: true}}}

	g := NewGenerator(client, nil, []Checker{skipped, skippedLint}, Options{})
	code, err := g.Generate(context.Background(), Request{
		Pattern:      testPattern(),
		Tokens:       testTokens(),
		Requirements: testRequirements(),
	})
	require.NoError(t, err)
	assert.Equal(t, models.ValidationSkipped, code.Metadata.ValidationResults.FinalStatus)
}

func TestBuildUserPrompt_CompressesPatternCode(t *testing.T) {
	pattern := testPattern()
	pattern.Code = "/* a long\nblock comment */\n// line comment\nexport function Button() {}\n\n\n\nconst x = 1;"

	prompt := BuildUserPrompt(pattern, testTokens(), testRequirements(), nil)
	assert.NotContains(t, prompt, "block comment")
	assert.NotContains(t, prompt, "line comment")
	assert.Contains(t, prompt, "export function Button()")
	assert.Contains(t, prompt, "colors.primary")
	assert.Contains(t, prompt, "variant (default|destructive)")
}

func TestParseTSCOutput(t *testing.T) {
	out := strings.Join([]string{
		"Component.tsx(12,5): error TS2304: Cannot find name 'foo'.",
		"Component.tsx(20,1): warning TS6133: 'x' is declared but never used.",
		"noise line",
	}, "\n")

	result := parseTSCOutput(out)
	assert.False(t, result.Passed)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "TS2304", result.Errors[0].Code)
	assert.Equal(t, 12, result.Errors[0].Line)
	require.Len(t, result.Warnings, 1)
}
