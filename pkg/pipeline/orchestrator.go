// Package pipeline orchestrates the six generation stages: token
// extraction, requirement proposal, hybrid retrieval, code generation,
// quality aggregation, and finalization. The orchestrator owns every
// cross-cutting concern: tracing, caching, progress streaming, per-stage
// timeouts, the partial-failure policy, and cooperative cancellation.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/componentforge/forge/pkg/generator"
	"github.com/componentforge/forge/pkg/llm"
	"github.com/componentforge/forge/pkg/models"
	"github.com/componentforge/forge/pkg/patterns"
	"github.com/componentforge/forge/pkg/quality"
	"github.com/componentforge/forge/pkg/requirements"
	"github.com/componentforge/forge/pkg/retrieval"
	"github.com/componentforge/forge/pkg/tokens"
)

// Approver reviews proposed requirements before retrieval. The transport
// layer substitutes an interactive approver; the default approves every
// proposal unchanged.
type Approver interface {
	Review(ctx context.Context, set *models.RequirementSet) error
}

// AutoApprover approves every proposal.
type AutoApprover struct{}

// Review implements Approver.
func (AutoApprover) Review(_ context.Context, set *models.RequirementSet) error {
	for i := range set.Proposals {
		if set.Proposals[i].Status == models.ProposalProposed {
			if err := set.Proposals[i].Approve(); err != nil {
				return err
			}
		}
	}
	return nil
}

// StageTimeouts bounds each stage. Zero values take the defaults.
type StageTimeouts struct {
	Extract   time.Duration
	Propose   time.Duration
	Retrieve  time.Duration
	Generate  time.Duration
	Aggregate time.Duration
}

func (t *StageTimeouts) applyDefaults() {
	if t.Extract == 0 {
		t.Extract = 60 * time.Second
	}
	if t.Propose == 0 {
		t.Propose = 30 * time.Second
	}
	if t.Retrieve == 0 {
		t.Retrieve = 5 * time.Second
	}
	if t.Generate == 0 {
		t.Generate = 150 * time.Second
	}
	if t.Aggregate == 0 {
		t.Aggregate = 15 * time.Second
	}
}

// Dependencies is the orchestrator-owned dependency record passed into each
// stage. Cross-stage state flows only through the run context.
type Dependencies struct {
	Extractor  *tokens.Extractor
	Proposer   *requirements.Proposer
	Retriever  *retrieval.Retriever
	Generator  *generator.Generator
	Aggregator *quality.Aggregator
	Registry   *patterns.Registry
	Cache      Cache
	Tracer     *Tracer
	Progress   ProgressSink
	Approver   Approver
	Store      RunStore // optional persistence collaborator
}

// RunStore persists run metadata and artifacts. Nil disables persistence.
type RunStore interface {
	SaveRun(ctx context.Context, result *Result) error
}

// Input is the run submission. Exactly one design source (image, figma, or
// pre-supplied tokens) is required; requirements and pattern may be
// pre-supplied to skip the corresponding stages.
type Input struct {
	// RunID may be pre-minted by the submission layer so clients can
	// subscribe to progress before the run starts. Empty mints a new id.
	RunID string

	ImageData []byte
	MIMEType  string

	FigmaFileKey string
	FigmaToken   string

	Tokens       *models.DesignTokens
	Requirements *models.RequirementSet
	PatternID    string

	Description string
}

// digest fingerprints the design source for the cache key.
func (in *Input) digest() string {
	switch {
	case len(in.ImageData) > 0:
		return InputDigest(in.ImageData)
	case in.FigmaFileKey != "":
		return InputDigest([]byte("figma:" + in.FigmaFileKey))
	default:
		return InputDigest([]byte("direct:" + in.Description))
	}
}

// Orchestrator executes pipeline runs.
type Orchestrator struct {
	deps            Dependencies
	timeouts        StageTimeouts
	pipelineVersion string
	sem             chan struct{}
}

// NewOrchestrator wires the pipeline. maxConcurrentRuns bounds in-flight
// runs process-wide.
func NewOrchestrator(deps Dependencies, timeouts StageTimeouts, pipelineVersion string, maxConcurrentRuns int) *Orchestrator {
	timeouts.applyDefaults()
	if deps.Approver == nil {
		deps.Approver = AutoApprover{}
	}
	if deps.Cache == nil {
		deps.Cache = NewMemoryCache()
	}
	if maxConcurrentRuns < 1 {
		maxConcurrentRuns = 1
	}
	return &Orchestrator{
		deps:            deps,
		timeouts:        timeouts,
		pipelineVersion: pipelineVersion,
		sem:             make(chan struct{}, maxConcurrentRuns),
	}
}

// Run executes the full pipeline for one input. It always returns a Result;
// Result.Context.Error carries the terminal failure when Status is failed.
func (o *Orchestrator) Run(ctx context.Context, input Input) *Result {
	runID := input.RunID
	if runID == "" {
		runID = uuid.New().String()
	}

	// Every LLM call under this run reports usage to the meter.
	meter := &llm.Meter{}
	ctx = llm.WithMeter(ctx, meter)

	select {
	case o.sem <- struct{}{}:
		defer func() { <-o.sem }()
	case <-ctx.Done():
		return o.earlyFailure(runID, Classify("admission", ctx.Err()))
	}
	rc := &RunContext{RunID: runID, StartedAt: time.Now()}
	result := &Result{RunID: runID, Context: rc, Status: models.RunInProgress}

	logger := slog.With("run_id", runID)
	logger.Info("Pipeline run starting")

	root := o.deps.Tracer.StartSpan(runID, "run", nil)
	defer func() {
		calls, usage := meter.Totals()
		rc.CostUSD = usage.CostUSD
		root.SetAttr("status", string(result.Status))
		root.SetAttr("llm_calls", calls)
		root.SetAttr("prompt_tokens", usage.PromptTokens)
		root.SetAttr("completion_tokens", usage.CompletionTokens)
		root.SetAttr("cost_usd", rc.CostUSD)
		root.Finish()
	}()

	o.progress(ProgressEvent{RunID: runID, Event: "progress", Progress: 0, Message: "run started"})

	fail := func(stage string, err error) *Result {
		runErr := Classify(stage, err)
		rc.Error = runErr
		if runErr.Kind == KindCancelled {
			result.Status = models.RunCancelled
		} else {
			result.Status = models.RunFailed
		}
		logger.Error("Pipeline run failed", "stage", stage, "kind", runErr.Kind, "error", err)
		o.progress(ProgressEvent{RunID: runID, Event: "error", Progress: stageProgressBefore(stage), Message: runErr.Message, Data: runErr})
		return result
	}

	// Stage 1 — token extraction.
	designTokens, err := o.extractStage(ctx, rc, root, input)
	if err != nil {
		return fail(StageExtract, err)
	}
	o.progressStage(runID, StageExtract, "design tokens extracted")

	// Stage 2 — requirement proposal + approval.
	set, err := o.proposeStage(ctx, rc, root, input, designTokens)
	if err != nil {
		return fail(StagePropose, err)
	}
	o.progressStage(runID, StagePropose, fmt.Sprintf("%d requirements proposed", len(set.Proposals)))

	// Stage 3 — hybrid retrieval.
	pattern, retrievalResult, err := o.retrieveStage(ctx, rc, root, input, set)
	if err != nil {
		return fail(StageRetrieve, err)
	}
	o.progressStage(runID, StageRetrieve, retrievalSummary(retrievalResult))

	// Cache check before generation.
	patternID := ""
	if pattern != nil {
		patternID = pattern.ID
	}
	rc.CacheKey = CacheKey(input.digest(), generator.TokensHash(*designTokens), generator.RequirementsHash(set), patternID, o.pipelineVersion)

	var code *models.GeneratedCode
	if cached, hit, cacheErr := o.deps.Cache.Get(ctx, rc.CacheKey); cacheErr == nil && hit {
		rc.CacheHit = true
		code = cached
		code.CacheHit = true
		logger.Info("Generation cache hit", "cache_key", rc.CacheKey)
		o.progressStage(runID, StageGenerate, "generation served from cache")
	} else {
		if cacheErr != nil {
			rc.warn(fmt.Sprintf("cache lookup failed: %v", cacheErr))
		}
		code, err = o.generateStage(ctx, rc, root, pattern, *designTokens, set)
		if err != nil {
			return fail(StageGenerate, err)
		}
		o.progressStage(runID, StageGenerate, fmt.Sprintf("code generated (%s)", code.Metadata.ValidationResults.FinalStatus))

		if code.Metadata.ValidationResults.FinalStatus == models.ValidationPassed {
			if err := o.deps.Cache.Set(ctx, rc.CacheKey, code); err != nil {
				rc.warn(fmt.Sprintf("cache write failed: %v", err))
			}
		}
	}
	result.Code = code

	// Stage 5 — quality aggregation.
	report, err := o.aggregateStage(ctx, rc, root, code, *designTokens, pattern == nil)
	if err != nil {
		return fail(StageAggregate, err)
	}
	result.Report = report
	o.progressStage(runID, StageAggregate, fmt.Sprintf("quality report: %s", report.Status))

	// Stage 6 — finalize: persist and close out.
	result.Status = models.RunCompleted
	started := time.Now()
	if o.deps.Store != nil {
		if err := o.deps.Store.SaveRun(ctx, result); err != nil {
			rc.warn(fmt.Sprintf("run persistence failed: %v", err))
		}
	}
	rc.publish(StageFinalize, "run persisted", started)

	o.progress(ProgressEvent{RunID: runID, Event: "progress", Stage: StageFinalize, Progress: 100, Message: "run complete"})
	o.progress(ProgressEvent{RunID: runID, Event: "complete", Progress: 100, Data: result})
	logger.Info("Pipeline run completed", "status", report.Status, "cache_hit", rc.CacheHit)
	return result
}

func (o *Orchestrator) extractStage(ctx context.Context, rc *RunContext, root *Span, input Input) (*models.DesignTokens, error) {
	started := time.Now()
	span := o.deps.Tracer.StartSpan(rc.RunID, StageExtract, root)
	defer span.Finish()

	if input.Tokens != nil {
		violations := input.Tokens.Validate()
		if len(violations) > 0 {
			return nil, fmt.Errorf("%w: supplied tokens invalid: %s", tokens.ErrInvalidInput, violations[0].Message)
		}
		rc.publish(StageExtract, "tokens supplied by caller", started)
		return input.Tokens, nil
	}

	sctx, cancel := context.WithTimeout(ctx, o.timeouts.Extract)
	defer cancel()

	var res *tokens.Result
	var err error
	switch {
	case len(input.ImageData) > 0:
		res, err = o.deps.Extractor.ExtractFromImage(sctx, input.ImageData, input.MIMEType)
	case input.FigmaFileKey != "":
		res, err = o.deps.Extractor.ExtractFromFigma(sctx, input.FigmaFileKey, input.FigmaToken)
	default:
		return nil, fmt.Errorf("%w: no design source supplied", tokens.ErrInvalidInput)
	}
	if err != nil {
		return nil, err
	}

	rc.warn(res.Warnings...)
	span.SetAttr("fallback_fields", len(res.FallbackPaths))
	rc.publish(StageExtract, fmt.Sprintf("%d token fields extracted, %d from fallback", tokenCount(res.Tokens), len(res.FallbackPaths)), started)
	return &res.Tokens, nil
}

func (o *Orchestrator) proposeStage(ctx context.Context, rc *RunContext, root *Span, input Input, designTokens *models.DesignTokens) (*models.RequirementSet, error) {
	started := time.Now()
	span := o.deps.Tracer.StartSpan(rc.RunID, StagePropose, root)
	defer span.Finish()

	var set *models.RequirementSet
	if input.Requirements != nil {
		set = input.Requirements
	} else {
		sctx, cancel := context.WithTimeout(ctx, o.timeouts.Propose)
		defer cancel()

		var warnings []string
		var err error
		set, warnings, err = o.deps.Proposer.Propose(sctx, requirements.Input{
			ImageData:   input.ImageData,
			MIMEType:    input.MIMEType,
			Description: input.Description,
		}, *designTokens)
		if err != nil {
			return nil, err
		}
		rc.warn(warnings...)
	}

	if err := o.deps.Approver.Review(ctx, set); err != nil {
		return nil, fmt.Errorf("requirement approval: %w", err)
	}

	span.SetAttr("component_type", set.Classification.ComponentType)
	span.SetAttr("proposals", len(set.Proposals))
	rc.publish(StagePropose, fmt.Sprintf("%s classified, %d proposals", set.Classification.ComponentType, len(set.Proposals)), started)
	return set, nil
}

func (o *Orchestrator) retrieveStage(ctx context.Context, rc *RunContext, root *Span, input Input, set *models.RequirementSet) (*models.Pattern, *models.RetrievalResult, error) {
	started := time.Now()
	span := o.deps.Tracer.StartSpan(rc.RunID, StageRetrieve, root)
	defer span.Finish()

	if input.PatternID != "" {
		pattern, ok := o.deps.Registry.Get(input.PatternID)
		if !ok {
			return nil, nil, fmt.Errorf("%w: pattern %q not found", tokens.ErrInvalidInput, input.PatternID)
		}
		rc.publish(StageRetrieve, "pattern supplied by caller", started)
		return &pattern, nil, nil
	}

	sctx, cancel := context.WithTimeout(ctx, o.timeouts.Retrieve)
	defer cancel()

	result, warnings, err := o.deps.Retriever.Search(sctx, set)
	if err != nil {
		return nil, nil, err
	}
	rc.warn(warnings...)

	span.SetAttr("candidates", result.Metadata.CandidateCount)
	span.SetAttr("degraded", result.Metadata.Degraded)

	if len(result.Patterns) == 0 {
		rc.warn("no pattern matched; generating from tokens and requirements alone")
		rc.publish(StageRetrieve, "no pattern matched", started)
		return nil, result, nil
	}
	top := result.Patterns[0].Pattern
	rc.publish(StageRetrieve, fmt.Sprintf("top pattern %s (weighted %.2f)", top.ID, result.Patterns[0].Scores.Weighted), started)
	return &top, result, nil
}

func (o *Orchestrator) generateStage(ctx context.Context, rc *RunContext, root *Span, pattern *models.Pattern, designTokens models.DesignTokens, set *models.RequirementSet) (*models.GeneratedCode, error) {
	started := time.Now()
	span := o.deps.Tracer.StartSpan(rc.RunID, StageGenerate, root)
	defer span.Finish()

	sctx, cancel := context.WithTimeout(ctx, o.timeouts.Generate)
	defer cancel()

	code, err := o.deps.Generator.Generate(sctx, generator.Request{
		Pattern:      pattern,
		Tokens:       designTokens,
		Requirements: set,
		// Sub-steps (LLM calls, validators) become grandchild spans.
		Observe: func(step string, latency time.Duration, attrs map[string]any) {
			sub := o.deps.Tracer.StartSpan(rc.RunID, step, span)
			if sub == nil {
				return
			}
			sub.Start = time.Now().Add(-latency)
			for k, v := range attrs {
				sub.SetAttr(k, v)
			}
			sub.Finish()
		},
	})
	if err != nil {
		return nil, err
	}

	span.SetAttr("fix_attempts", code.Metadata.FixAttempts)
	span.SetAttr("final_status", string(code.Metadata.ValidationResults.FinalStatus))
	rc.publish(StageGenerate, fmt.Sprintf("generated %d lines, %d fix attempts", code.Metadata.LinesOfCode, code.Metadata.FixAttempts), started)
	return code, nil
}

func (o *Orchestrator) aggregateStage(ctx context.Context, rc *RunContext, root *Span, code *models.GeneratedCode, designTokens models.DesignTokens, noPattern bool) (*models.QualityReport, error) {
	started := time.Now()
	span := o.deps.Tracer.StartSpan(rc.RunID, StageAggregate, root)
	defer span.Finish()

	sctx, cancel := context.WithTimeout(ctx, o.timeouts.Aggregate)
	defer cancel()
	if err := sctx.Err(); err != nil {
		return nil, err
	}

	report := o.deps.Aggregator.Aggregate(quality.Input{
		RunID:            rc.RunID,
		Code:             code,
		Tokens:           designTokens,
		Warnings:         rc.Warnings,
		NoPatternMatched: noPattern,
	})
	span.SetAttr("status", string(report.Status))
	rc.publish(StageAggregate, string(report.Status), started)
	return report, nil
}

func (o *Orchestrator) progressStage(runID, stage, message string) {
	o.progress(ProgressEvent{
		RunID:    runID,
		Event:    "progress",
		Stage:    stage,
		Progress: stageProgress[stage],
		Message:  message,
	})
}

func (o *Orchestrator) progress(event ProgressEvent) {
	if o.deps.Progress != nil {
		o.deps.Progress.Publish(event)
	}
}

func (o *Orchestrator) earlyFailure(runID string, runErr *RunError) *Result {
	rc := &RunContext{RunID: runID, StartedAt: time.Now(), Error: runErr}
	status := models.RunFailed
	if runErr.Kind == KindCancelled {
		status = models.RunCancelled
	}
	o.progress(ProgressEvent{RunID: runID, Event: "error", Message: runErr.Message, Data: runErr})
	return &Result{RunID: runID, Status: status, Context: rc}
}

// stageProgressBefore reports the last progress value reached before the
// failing stage, keeping the progress sequence monotone on errors.
func stageProgressBefore(stage string) int {
	order := []string{StageExtract, StagePropose, StageRetrieve, StageGenerate, StageAggregate, StageFinalize}
	prev := 0
	for _, s := range order {
		if s == stage {
			return prev
		}
		prev = stageProgress[s]
	}
	return prev
}

func retrievalSummary(result *models.RetrievalResult) string {
	if result == nil {
		return "pattern supplied by caller"
	}
	if len(result.Patterns) == 0 {
		return "no pattern matched"
	}
	return fmt.Sprintf("%d patterns retrieved", len(result.Patterns))
}

// tokenCount counts the concrete token fields in a set.
func tokenCount(t models.DesignTokens) int {
	n := len(t.Colors) + len(t.Spacing) + len(t.BorderRadius) +
		len(t.Typography.FontSize) + len(t.Typography.FontWeight) + len(t.Typography.LineHeight)
	if t.Typography.FontFamily.Value != "" {
		n++
	}
	return n
}
