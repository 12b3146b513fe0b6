package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/componentforge/forge/pkg/llm"
	"github.com/componentforge/forge/pkg/models"
	"github.com/componentforge/forge/pkg/patterns"
)

// Defaults for the validation-repair loop.
const (
	DefaultMaxFixAttempts = 2
	DefaultLoopBudget     = 120 * time.Second
)

// Generator is the code generation stage.
type Generator struct {
	llm       llm.Client
	gallery   *patterns.Gallery
	sanitizer *Sanitizer
	checkers  []Checker

	maxFixAttempts int
	loopBudget     time.Duration
	now            func() time.Time
}

// Options tune the generator. Zero values take the defaults.
type Options struct {
	MaxFixAttempts int
	LoopBudget     time.Duration
}

// NewGenerator wires the stage. gallery may be nil (no exemplars); checkers
// run in the given order after the security sanitizer.
func NewGenerator(client llm.Client, gallery *patterns.Gallery, checkers []Checker, opts Options) *Generator {
	if opts.MaxFixAttempts == 0 {
		opts.MaxFixAttempts = DefaultMaxFixAttempts
	}
	if opts.LoopBudget == 0 {
		opts.LoopBudget = DefaultLoopBudget
	}
	return &Generator{
		llm:            client,
		gallery:        gallery,
		sanitizer:      NewSanitizer(),
		checkers:       checkers,
		maxFixAttempts: opts.MaxFixAttempts,
		loopBudget:     opts.LoopBudget,
		now:            time.Now,
	}
}

// StepObserver receives sub-step telemetry: one call per LLM invocation and
// per validator run, tagged with phase and attempt. The orchestrator turns
// these into grandchild spans of the generation stage.
type StepObserver func(step string, latency time.Duration, attrs map[string]any)

// Request carries the generation inputs. Pattern may be nil: the fallback
// path generates from tokens and requirements alone.
type Request struct {
	Pattern      *models.Pattern
	Tokens       models.DesignTokens
	Requirements *models.RequirementSet
	// Observe may be nil.
	Observe StepObserver
}

// observe reports one sub-step if an observer is attached.
func (r *Request) observe(step string, start time.Time, attrs map[string]any) {
	if r.Observe != nil {
		r.Observe(step, time.Since(start), attrs)
	}
}

// llmOutput is the structured completion shape.
type llmOutput struct {
	Component string `json:"component"`
	Stories   string `json:"stories"`
}

// iteration captures one pass through the validator chain.
type iteration struct {
	component string
	stories   string
	security  models.SecuritySanitization
	results   map[string]CheckResult
	issues    []models.CodeIssue
	passed    bool
	skipped   bool
}

// Generate runs the three internal stages: prompt assembly, generation with
// iterative validation and repair, and post-processing. The final code is
// always returned — an unconverged loop completes with
// validation_results.final_status = failed, never an error. Errors are
// reserved for unrecoverable upstream failures.
func (g *Generator) Generate(ctx context.Context, req Request) (*models.GeneratedCode, error) {
	start := g.now()
	deadline := start.Add(g.loopBudget)

	tokensHash := TokensHash(req.Tokens)
	requirementsHash := RequirementsHash(req.Requirements)

	logger := slog.With("component_type", req.Requirements.Classification.ComponentType,
		"tokens_hash", tokensHash, "requirements_hash", requirementsHash)
	if req.Pattern != nil {
		logger = logger.With("pattern_id", req.Pattern.ID)
	}
	logger.Info("Generator: starting generation")

	// Stage A — prompt assembly.
	var exemplars []patterns.Exemplar
	if g.gallery != nil && req.Pattern != nil {
		exemplars = g.gallery.Select(req.Requirements.Classification.ComponentType, *req.Pattern)
	}
	userPrompt := BuildUserPrompt(req.Pattern, req.Tokens, req.Requirements, exemplars)
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt},
		{Role: llm.RoleUser, Content: userPrompt},
	}

	// Stage B — generation and iterative validation.
	attempts := 0
	var autofixes []models.AutoFix
	llmStart := g.now()
	current, err := g.callLLM(ctx, messages)
	req.observe("llm_generate", llmStart, map[string]any{"phase": "B", "attempt": 0})
	if err != nil {
		return nil, err
	}

	var iter iteration
	for {
		iter = g.validate(ctx, current, &req)
		if len(iter.issues) == 0 {
			break
		}

		// Deterministic rewrites apply without burning an LLM repair. The
		// inequality check keeps a non-converging rewrite from spinning.
		if !iter.security.IsSafe && iter.security.SanitizedCode != "" && iter.security.SanitizedCode != current.Component {
			for _, issue := range iter.security.Issues {
				autofixes = append(autofixes, models.AutoFix{
					Category:    "security",
					Before:      lineAt(current.Component, issue.Line),
					After:       lineAt(iter.security.SanitizedCode, issue.Line),
					Description: issue.Message,
				})
			}
			current.Component = iter.security.SanitizedCode
			continue
		}

		if attempts >= g.maxFixAttempts {
			logger.Warn("Generator: fix attempts exhausted", "attempts", attempts, "open_issues", len(iter.issues))
			break
		}
		if g.now().After(deadline) {
			logger.Warn("Generator: repair loop budget exhausted", "attempts", attempts)
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		attempts++
		logger.Info("Generator: entering repair", "attempt", attempts, "issues", len(iter.issues))
		repairStart := g.now()
		repaired, err := g.callLLM(ctx, []llm.Message{
			{Role: llm.RoleSystem, Content: systemPrompt},
			{Role: llm.RoleUser, Content: buildRepairPrompt(current.Component, current.Stories, iter.issues)},
		})
		req.observe("llm_repair", repairStart, map[string]any{"phase": "B", "attempt": attempts, "issues": len(iter.issues)})
		if err != nil {
			return nil, err
		}
		current = repaired
	}

	validation := g.assembleValidation(iter, attempts)

	// Stage C — post-processing.
	component := ResolveImports(current.Component)
	provenance := models.Provenance{
		GeneratedAt:      g.now(),
		TokensHash:       tokensHash,
		RequirementsHash: requirementsHash,
	}
	patternUsed := ""
	patternVersion := ""
	if req.Pattern != nil {
		provenance.PatternID = req.Pattern.ID
		provenance.PatternVersion = req.Pattern.Version
		patternUsed = req.Pattern.ID
		patternVersion = req.Pattern.Version
	}
	component = FormatProvenanceHeader(provenance, attempts) + component

	tokensJSON, _ := req.Tokens.CanonicalJSON()
	requirementsJSON, err := json.Marshal(req.Requirements.Accepted())
	if err != nil {
		return nil, fmt.Errorf("serialize requirements: %w", err)
	}

	scores := ComputeQualityScores(validation)
	total := g.now().Sub(start)

	logger.Info("Generator: finished",
		"final_status", validation.FinalStatus,
		"attempts", attempts,
		"overall_score", scores.Overall,
		"total_ms", total.Milliseconds())

	return &models.GeneratedCode{
		Component:        component,
		Stories:          current.Stories,
		TokensJSON:       string(tokensJSON),
		RequirementsJSON: string(requirementsJSON),
		Metadata: models.GenerationMetadata{
			PatternUsed:             patternUsed,
			PatternVersion:          patternVersion,
			TokensApplied:           strings.Count(string(tokensJSON), `"value"`),
			RequirementsImplemented: len(req.Requirements.Accepted()),
			LinesOfCode:             countLines(component),
			ImportsCount:            countImports(component),
			FixAttempts:             attempts,
			ValidationResults:       validation,
			QualityScores:           scores,
			AutoFixes:               autofixes,
		},
		Provenance: provenance,
		Timing: models.GenerationTiming{
			TotalMS: total.Milliseconds(),
			Stages:  []models.StageTiming{{Stage: "generate", LatencyMS: total.Milliseconds()}},
		},
		Status: models.RunCompleted,
	}, nil
}

// callLLM issues one structured generation call. Malformed JSON is retried
// once with an explicit format reminder before failing: a parse failure is
// regular invalid input from the model, not an infrastructure error.
func (g *Generator) callLLM(ctx context.Context, messages []llm.Message) (*llmOutput, error) {
	result, err := g.llm.Chat(ctx, llm.ChatRequest{Messages: messages, JSONMode: true})
	if err != nil {
		return nil, err
	}
	out, parseErr := parseOutput(result.Content)
	if parseErr == nil {
		return out, nil
	}

	retry := append(messages, llm.Message{
		Role:    llm.RoleUser,
		Content: "Your previous response was not valid JSON (" + parseErr.Error() + `). Respond with ONLY {"component": "...", "stories": "..."}.`,
	})
	result, err = g.llm.Chat(ctx, llm.ChatRequest{Messages: retry, JSONMode: true})
	if err != nil {
		return nil, err
	}
	out, parseErr = parseOutput(result.Content)
	if parseErr != nil {
		return nil, fmt.Errorf("model output unparseable after retry: %w", parseErr)
	}
	return out, nil
}

func parseOutput(content string) (*llmOutput, error) {
	var out llmOutput
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.Component) == "" {
		return nil, errors.New(`missing "component" field`)
	}
	return &out, nil
}

// validate runs the fixed-order chain: security, then each checker.
func (g *Generator) validate(ctx context.Context, out *llmOutput, req *Request) iteration {
	iter := iteration{
		component: out.Component,
		stories:   out.Stories,
		results:   make(map[string]CheckResult, len(g.checkers)),
	}

	scanStart := g.now()
	iter.security = g.sanitizer.Scan(out.Component)
	req.observe("validator:security", scanStart, map[string]any{"phase": "B", "issues": len(iter.security.Issues)})
	if !iter.security.IsSafe {
		iter.issues = append(iter.issues, iter.security.Issues...)
	}

	allSkipped := true
	for _, checker := range g.checkers {
		checkStart := g.now()
		result, err := checker.Check(ctx, out.Component, out.Stories)
		req.observe("validator:"+checker.Name(), checkStart, map[string]any{
			"phase": "B", "errors": len(result.Errors), "skipped": result.Skipped,
		})
		if err != nil {
			// Tool failure, not code failure. Subprocess checkers are never
			// retried automatically; a flaky toolchain surfaces in logs.
			slog.Warn("Validator failed to run", "checker", checker.Name(), "error", err)
			result = CheckResult{Skipped: true, Passed: true}
		}
		iter.results[checker.Name()] = result
		if !result.Skipped {
			allSkipped = false
		}
		iter.issues = append(iter.issues, result.Errors...)
	}

	iter.passed = len(iter.issues) == 0
	iter.skipped = allSkipped && len(g.checkers) > 0
	return iter
}

// assembleValidation folds the last iteration into the accumulated results.
func (g *Generator) assembleValidation(iter iteration, attempts int) models.ValidationResults {
	v := models.ValidationResults{
		Attempts:             attempts,
		SecuritySanitization: iter.security,
	}

	ts, ok := iter.results["typescript"]
	if !ok {
		ts = CheckResult{Skipped: true, Passed: true}
	}
	v.TypeScriptPassed = ts.Passed
	v.TypeScriptErrors = ts.Errors

	lint, ok := iter.results["eslint"]
	if !ok {
		lint = CheckResult{Skipped: true, Passed: true}
	}
	v.ESLintPassed = lint.Passed
	v.ESLintErrors = lint.Errors
	v.ESLintWarnings = lint.Warnings

	switch {
	case iter.passed && iter.skipped:
		v.FinalStatus = models.ValidationSkipped
	case iter.passed:
		v.FinalStatus = models.ValidationPassed
	default:
		v.FinalStatus = models.ValidationFailed
	}
	return v
}

// lineAt returns the 1-indexed line of code, for auto-fix snippets.
func lineAt(code string, line int) string {
	lines := strings.Split(code, "\n")
	if line < 1 || line > len(lines) {
		return ""
	}
	return strings.TrimSpace(lines[line-1])
}
