package pipeline

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Span is one node of a run's trace tree: the root run span, stage child
// spans, and sub-step grandchild spans (LLM calls, validators).
type Span struct {
	ID       string         `json:"id"`
	ParentID string         `json:"parent_id,omitempty"`
	RunID    string         `json:"run_id"`
	Name     string         `json:"name"`
	Start    time.Time      `json:"start"`
	End      time.Time      `json:"end"`
	Attrs    map[string]any `json:"attrs,omitempty"`

	tracer *Tracer
}

// SetAttr tags the span with structured metadata (input hashes, latency,
// token counts, cost). Call before Finish.
func (s *Span) SetAttr(key string, value any) {
	if s == nil {
		return
	}
	if s.Attrs == nil {
		s.Attrs = make(map[string]any)
	}
	s.Attrs[key] = value
}

// Finish stamps the end time and hands the span to the exporter queue.
func (s *Span) Finish() {
	if s == nil || s.tracer == nil {
		return
	}
	s.End = time.Now()
	s.tracer.export(s)
}

// Exporter receives finished spans. Implementations must be fast; the
// tracer's queue, not the exporter, provides the backpressure bound.
type Exporter interface {
	Export(span *Span)
}

// LogExporter writes spans to slog at debug level.
type LogExporter struct{}

// Export implements Exporter.
func (LogExporter) Export(span *Span) {
	slog.Debug("span",
		"run_id", span.RunID,
		"name", span.Name,
		"latency_ms", span.End.Sub(span.Start).Milliseconds(),
		"attrs", span.Attrs)
}

// Tracer owns the single-writer export queue. A full queue drops spans and
// counts them — it never blocks the pipeline. Disabled tracers produce
// no-op spans.
type Tracer struct {
	enabled bool
	queue   chan *Span
	dropped atomic.Int64
	wg      sync.WaitGroup
	once    sync.Once
}

// queueCapacity bounds in-flight spans awaiting export.
const queueCapacity = 1024

// NewTracer starts the export loop. exporter may be nil when disabled.
func NewTracer(enabled bool, exporter Exporter) *Tracer {
	t := &Tracer{enabled: enabled}
	if !enabled {
		return t
	}
	if exporter == nil {
		exporter = LogExporter{}
	}
	t.queue = make(chan *Span, queueCapacity)
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		for span := range t.queue {
			exporter.Export(span)
		}
	}()
	return t
}

// StartSpan opens a span under parent (nil parent = root).
func (t *Tracer) StartSpan(runID, name string, parent *Span) *Span {
	if t == nil || !t.enabled {
		return nil
	}
	span := &Span{
		ID:     uuid.New().String(),
		RunID:  runID,
		Name:   name,
		Start:  time.Now(),
		tracer: t,
	}
	if parent != nil {
		span.ParentID = parent.ID
	}
	return span
}

// Dropped reports spans lost to queue overflow.
func (t *Tracer) Dropped() int64 { return t.dropped.Load() }

// Close flushes and stops the export loop.
func (t *Tracer) Close() {
	if t == nil || !t.enabled {
		return
	}
	t.once.Do(func() { close(t.queue) })
	t.wg.Wait()
}

func (t *Tracer) export(span *Span) {
	select {
	case t.queue <- span:
	default:
		t.dropped.Add(1)
	}
}
