package pipeline

import (
	"time"

	"github.com/componentforge/forge/pkg/models"
)

// Stage names in execution order.
const (
	StageExtract   = "token_extraction"
	StagePropose   = "requirement_proposal"
	StageRetrieve  = "pattern_retrieval"
	StageGenerate  = "code_generation"
	StageAggregate = "quality_aggregation"
	StageFinalize  = "finalize"
)

// Progress checkpoints emitted after each stage transition.
var stageProgress = map[string]int{
	StageExtract:   15,
	StagePropose:   30,
	StageRetrieve:  50,
	StageGenerate:  75,
	StageAggregate: 90,
	StageFinalize:  100,
}

// ProgressEvent is one entry of the run's progress stream. Event is
// "progress", "complete", or "error"; exactly one terminal event closes the
// stream and progress reaches 100 only on "complete".
type ProgressEvent struct {
	RunID    string `json:"run_id"`
	Event    string `json:"event"`
	Stage    string `json:"stage,omitempty"`
	Progress int    `json:"progress"`
	Message  string `json:"message,omitempty"`
	Data     any    `json:"data,omitempty"`
}

// ProgressSink receives progress events. The events package fans them out to
// SSE and WebSocket subscribers; a nil sink discards.
type ProgressSink interface {
	Publish(event ProgressEvent)
}

// StageOutput is one published stage result in the run context.
type StageOutput struct {
	Stage       string    `json:"stage"`
	Summary     string    `json:"summary"`
	LatencyMS   int64     `json:"latency_ms"`
	CompletedAt time.Time `json:"completed_at"`
}

// RunContext is the process-scoped record of one pipeline run. It is owned
// by the run goroutine while executing; stage outputs become visible only
// after their stage returns.
type RunContext struct {
	RunID     string        `json:"run_id"`
	StartedAt time.Time     `json:"started_at"`
	Stages    []StageOutput `json:"stages"`
	Warnings  []string      `json:"warnings,omitempty"`
	CacheKey  string        `json:"cache_key,omitempty"`
	CacheHit  bool          `json:"cache_hit,omitempty"`
	CostUSD   float64       `json:"cost_usd"`
	Error     *RunError     `json:"error,omitempty"`
}

// publish records a completed stage in completion order.
func (rc *RunContext) publish(stage, summary string, started time.Time) {
	rc.Stages = append(rc.Stages, StageOutput{
		Stage:       stage,
		Summary:     summary,
		LatencyMS:   time.Since(started).Milliseconds(),
		CompletedAt: time.Now(),
	})
}

// warn appends stage warnings.
func (rc *RunContext) warn(warnings ...string) {
	rc.Warnings = append(rc.Warnings, warnings...)
}

// Result is the orchestrator's return value: the generated code and quality
// report on success, the run context always.
type Result struct {
	RunID   string                `json:"run_id"`
	Status  models.RunStatus      `json:"status"`
	Code    *models.GeneratedCode `json:"code,omitempty"`
	Report  *models.QualityReport `json:"report,omitempty"`
	Context *RunContext           `json:"context"`
}
