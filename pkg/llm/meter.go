package llm

import (
	"context"
	"sync"
)

// Meter accumulates token and cost usage across every LLM call made under
// one run. The orchestrator installs a meter in the run context; the
// metering client wrapper feeds it.
type Meter struct {
	mu               sync.Mutex
	calls            int
	promptTokens     int
	completionTokens int
	costUSD          float64
}

// Add records one call's usage.
func (m *Meter) Add(u Usage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.promptTokens += u.PromptTokens
	m.completionTokens += u.CompletionTokens
	m.costUSD += u.CostUSD
}

// Totals returns the accumulated usage and call count.
func (m *Meter) Totals() (calls int, usage Usage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls, Usage{
		PromptTokens:     m.promptTokens,
		CompletionTokens: m.completionTokens,
		CostUSD:          m.costUSD,
	}
}

type meterKey struct{}

// WithMeter installs a meter in the context.
func WithMeter(ctx context.Context, m *Meter) context.Context {
	return context.WithValue(ctx, meterKey{}, m)
}

// MeterFrom extracts the context's meter, or nil.
func MeterFrom(ctx context.Context) *Meter {
	m, _ := ctx.Value(meterKey{}).(*Meter)
	return m
}

// MeteredClient wraps a Client and reports every call's usage to the
// context's meter.
type MeteredClient struct {
	inner Client
}

// WithMetering wraps a client with usage metering.
func WithMetering(inner Client) *MeteredClient {
	return &MeteredClient{inner: inner}
}

// Chat implements Client.
func (c *MeteredClient) Chat(ctx context.Context, req ChatRequest) (*Result, error) {
	result, err := c.inner.Chat(ctx, req)
	c.record(ctx, result)
	return result, err
}

// ChatVision implements Client.
func (c *MeteredClient) ChatVision(ctx context.Context, req VisionRequest) (*Result, error) {
	result, err := c.inner.ChatVision(ctx, req)
	c.record(ctx, result)
	return result, err
}

// Embed implements Client.
func (c *MeteredClient) Embed(ctx context.Context, text string) ([]float32, error) {
	return c.inner.Embed(ctx, text)
}

func (c *MeteredClient) record(ctx context.Context, result *Result) {
	if result == nil {
		return
	}
	if m := MeterFrom(ctx); m != nil {
		m.Add(result.Usage)
	}
}
