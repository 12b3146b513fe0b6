// Package queue runs submitted pipeline runs on a bounded worker pool with
// per-run cancellation and graceful shutdown.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/componentforge/forge/pkg/pipeline"
)

// submissionBuffer bounds queued-but-unstarted runs.
const submissionBuffer = 256

// RunExecutor executes one pipeline run. Implemented by
// pipeline.Orchestrator; tests substitute stubs.
type RunExecutor interface {
	Run(ctx context.Context, input pipeline.Input) *pipeline.Result
}

// submission is one queued run.
type submission struct {
	runID string
	input pipeline.Input
}

// WorkerPool manages the run workers.
type WorkerPool struct {
	executor RunExecutor
	queue    chan submission
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// Run cancel registry: run_id → cancel function.
	mu      sync.RWMutex
	active  map[string]context.CancelFunc
	results map[string]*pipeline.Result
	started bool
}

// NewWorkerPool creates a pool over the executor.
func NewWorkerPool(executor RunExecutor) *WorkerPool {
	return &WorkerPool{
		executor: executor,
		queue:    make(chan submission, submissionBuffer),
		stopCh:   make(chan struct{}),
		active:   make(map[string]context.CancelFunc),
		results:  make(map[string]*pipeline.Result),
	}
}

// Start spawns workerCount worker goroutines. Safe to call once.
func (p *WorkerPool) Start(ctx context.Context, workerCount int) {
	if p.started {
		slog.Warn("Worker pool already started, ignoring duplicate Start call")
		return
	}
	p.started = true
	if workerCount < 1 {
		workerCount = 1
	}
	slog.Info("Starting worker pool", "worker_count", workerCount)
	for i := 0; i < workerCount; i++ {
		p.wg.Add(1)
		go p.runWorker(ctx, fmt.Sprintf("worker-%d", i))
	}
}

// Stop signals workers to stop and waits for in-flight runs to finish.
func (p *WorkerPool) Stop() {
	slog.Info("Stopping worker pool gracefully")
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()
	slog.Info("Worker pool stopped")
}

// Submit enqueues a run and returns its pre-minted run id. Fails when the
// queue is full (the transport layer maps this to a 429).
func (p *WorkerPool) Submit(input pipeline.Input) (string, error) {
	runID := uuid.New().String()
	input.RunID = runID
	select {
	case p.queue <- submission{runID: runID, input: input}:
		return runID, nil
	default:
		return "", fmt.Errorf("run queue is full")
	}
}

// Cancel triggers context cancellation for an active run. Returns false
// when the run is not active on this process.
func (p *WorkerPool) Cancel(runID string) bool {
	p.mu.RLock()
	cancel, ok := p.active[runID]
	p.mu.RUnlock()
	if ok {
		cancel()
	}
	return ok
}

// Result returns a finished run's result, if this process ran it.
func (p *WorkerPool) Result(runID string) (*pipeline.Result, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	r, ok := p.results[runID]
	return r, ok
}

func (p *WorkerPool) runWorker(ctx context.Context, id string) {
	defer p.wg.Done()
	log := slog.With("worker_id", id)
	log.Info("Worker started")

	for {
		select {
		case <-p.stopCh:
			log.Info("Worker shutting down")
			return
		case <-ctx.Done():
			log.Info("Context cancelled, worker shutting down")
			return
		case sub := <-p.queue:
			p.process(ctx, log, sub)
		}
	}
}

func (p *WorkerPool) process(ctx context.Context, log *slog.Logger, sub submission) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	p.mu.Lock()
	p.active[sub.runID] = cancel
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		delete(p.active, sub.runID)
		p.mu.Unlock()
	}()

	log.Info("Processing run", "run_id", sub.runID)
	result := p.executor.Run(runCtx, sub.input)

	p.mu.Lock()
	p.results[sub.runID] = result
	p.mu.Unlock()
	log.Info("Run finished", "run_id", sub.runID, "status", result.Status)
}
