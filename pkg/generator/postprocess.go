package generator

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/componentforge/forge/pkg/models"
)

// importLine matches a single-line ES import.
var importLine = regexp.MustCompile(`^import\s.*?from\s+["']([^"']+)["'];?\s*$|^import\s+["']([^"']+)["'];?\s*$`)

// builtinModules that sort into the first import group.
var builtinModules = map[string]bool{
	"react": true, "react-dom": true, "react/jsx-runtime": true,
}

// importGroup orders: built-in → third-party → "@/" aliases → relative.
func importGroup(path string) int {
	switch {
	case builtinModules[path]:
		return 0
	case strings.HasPrefix(path, "@/"):
		return 2
	case strings.HasPrefix(path, "."):
		return 3
	default:
		return 1
	}
}

// ResolveImports deduplicates the leading import block and rewrites it in
// canonical group order, alphabetical within each group. Non-import code is
// left untouched.
func ResolveImports(code string) string {
	lines := strings.Split(code, "\n")

	type importStmt struct {
		path string
		text string
	}
	var imports []importStmt
	var rest []string
	seen := map[string]bool{}

	for _, line := range lines {
		m := importLine.FindStringSubmatch(strings.TrimRight(line, " \t"))
		if m == nil {
			rest = append(rest, line)
			continue
		}
		path := m[1]
		if path == "" {
			path = m[2]
		}
		text := strings.TrimRight(line, " \t")
		if seen[text] {
			continue
		}
		seen[text] = true
		imports = append(imports, importStmt{path: path, text: text})
	}

	if len(imports) == 0 {
		return code
	}

	sort.SliceStable(imports, func(i, j int) bool {
		gi, gj := importGroup(imports[i].path), importGroup(imports[j].path)
		if gi != gj {
			return gi < gj
		}
		if imports[i].path != imports[j].path {
			return imports[i].path < imports[j].path
		}
		return imports[i].text < imports[j].text
	})

	var b strings.Builder
	prevGroup := -1
	for _, imp := range imports {
		g := importGroup(imp.path)
		if prevGroup != -1 && g != prevGroup {
			b.WriteString("\n")
		}
		prevGroup = g
		b.WriteString(imp.text)
		b.WriteString("\n")
	}

	body := strings.TrimLeft(strings.Join(rest, "\n"), "\n")
	return b.String() + "\n" + body
}

// ──────────────────────────────────────────────
// Provenance header
// ──────────────────────────────────────────────

const headerMarker = "Generated by ComponentForge"

// FormatProvenanceHeader renders the comment prepended to every generated
// component. ParseProvenanceHeader reverses it exactly.
func FormatProvenanceHeader(p models.Provenance, fixAttempts int) string {
	return fmt.Sprintf(`/**
 * %s
 * pattern_id: %s
 * pattern_version: %s
 * generated_at: %s
 * tokens_hash: %s
 * requirements_hash: %s
 * fix_attempts: %d
 */
`, headerMarker, p.PatternID, p.PatternVersion, p.GeneratedAt.UTC().Format(time.RFC3339), p.TokensHash, p.RequirementsHash, fixAttempts)
}

var headerField = regexp.MustCompile(`\*\s+(\w+):\s+(.+)`)

// ParseProvenanceHeader re-parses a generated component's header. Returns
// ok=false when the code carries no ComponentForge header.
func ParseProvenanceHeader(code string) (models.Provenance, int, bool) {
	if !strings.Contains(code, headerMarker) {
		return models.Provenance{}, 0, false
	}
	end := strings.Index(code, "*/")
	if end < 0 {
		return models.Provenance{}, 0, false
	}

	var p models.Provenance
	fixAttempts := 0
	for _, m := range headerField.FindAllStringSubmatch(code[:end], -1) {
		value := strings.TrimSpace(m[2])
		switch m[1] {
		case "pattern_id":
			p.PatternID = value
		case "pattern_version":
			p.PatternVersion = value
		case "generated_at":
			if ts, err := time.Parse(time.RFC3339, value); err == nil {
				p.GeneratedAt = ts
			}
		case "tokens_hash":
			p.TokensHash = value
		case "requirements_hash":
			p.RequirementsHash = value
		case "fix_attempts":
			fmt.Sscanf(value, "%d", &fixAttempts)
		}
	}
	return p, fixAttempts, true
}

// ──────────────────────────────────────────────
// Quality scores
// ──────────────────────────────────────────────

// ComputeQualityScores grades the final validation results:
// type_safety = 100 − 15 per TS error (floored), linting = 100 − 10·errors −
// 2·warnings (floored), compilation ∈ {0,100}, overall the fixed blend.
func ComputeQualityScores(v models.ValidationResults) models.QualityScores {
	typeSafety := 100.0 - 15.0*float64(len(v.TypeScriptErrors))
	if typeSafety < 0 {
		typeSafety = 0
	}
	linting := 100.0 - 10.0*float64(len(v.ESLintErrors)) - 2.0*float64(len(v.ESLintWarnings))
	if linting < 0 {
		linting = 0
	}
	compilation := 0.0
	if v.TypeScriptPassed {
		compilation = 100.0
	}
	return models.QualityScores{
		TypeSafety:  typeSafety,
		Linting:     linting,
		Compilation: compilation,
		Overall:     0.5*compilation + 0.3*typeSafety + 0.2*linting,
	}
}

// countLines reports non-empty source lines.
func countLines(code string) int {
	n := 0
	for _, line := range strings.Split(code, "\n") {
		if strings.TrimSpace(line) != "" {
			n++
		}
	}
	return n
}

// countImports reports import statements in the final component.
func countImports(code string) int {
	n := 0
	for _, line := range strings.Split(code, "\n") {
		if importLine.MatchString(strings.TrimRight(line, " \t")) {
			n++
		}
	}
	return n
}
