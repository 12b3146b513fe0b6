package generator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScan_CleanCode(t *testing.T) {
	s := NewSanitizer()
	result := s.Scan("export function Button() {\n  return <button>OK</button>;\n}")
	assert.True(t, result.IsSafe)
	assert.Empty(t, result.Issues)
	assert.Empty(t, result.SanitizedCode)
}

func TestScan_EvalFlaggedAtLine(t *testing.T) {
	code := "line1\nline2\nline3\nline4\nline5\nline6\nline7\nline8\nline9\nconst x = eval(\"1+1\");"
	result := NewSanitizer().Scan(code)

	assert.False(t, result.IsSafe)
	require.Len(t, result.Issues, 1)
	assert.Equal(t, 10, result.Issues[0].Line)
	assert.Equal(t, "high", result.Issues[0].Severity)
	assert.Equal(t, "eval", result.Issues[0].Code)
	assert.Empty(t, result.SanitizedCode, "eval has no deterministic rewrite")
}

func TestScan_DangerouslySetInnerHTML(t *testing.T) {
	result := NewSanitizer().Scan(`<div dangerouslySetInnerHTML={{__html: html}} />`)
	assert.False(t, result.IsSafe)
	require.NotEmpty(t, result.Issues)
}

func TestScan_InnerHTMLRewrite(t *testing.T) {
	code := "function set(el: HTMLElement, text: string) {\n  el.innerHTML = text;\n}"
	result := NewSanitizer().Scan(code)

	assert.False(t, result.IsSafe)
	require.NotEmpty(t, result.SanitizedCode)
	assert.Contains(t, result.SanitizedCode, "el.textContent = text;")
	assert.NotContains(t, result.SanitizedCode, "innerHTML")
}

func TestScan_HardcodedSecret(t *testing.T) {
	result := NewSanitizer().Scan(`const apiKey = "sk_live_abcdefghijklmnop123456";`)
	assert.False(t, result.IsSafe)
	require.Len(t, result.Issues, 1)
	assert.Equal(t, "hardcoded secret", result.Issues[0].Code)
}

func TestScan_ProcessEnvIsMediumSeverity(t *testing.T) {
	result := NewSanitizer().Scan(`const url = process.env.API_URL;`)
	assert.True(t, result.IsSafe, "medium severity alone does not mark the code unsafe")
	require.Len(t, result.Issues, 1)
	assert.Equal(t, "medium", result.Issues[0].Severity)
}

func TestScan_PrototypePollution(t *testing.T) {
	result := NewSanitizer().Scan(`obj["__proto__"] = payload;`)
	assert.False(t, result.IsSafe)
}

func TestScan_NewFunction(t *testing.T) {
	result := NewSanitizer().Scan(`const fn = new Function("return 1");`)
	assert.False(t, result.IsSafe)
}
