package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// ScriptEntry defines a single scripted response for the test client.
type ScriptEntry struct {
	Content  string
	LogProbs []TokenLogProb
	Error    error
	Usage    Usage
}

// ScriptedClient implements Client with a dual-dispatch mock: routed entries
// matched by a substring of the prompt (for parallel stages where call order
// is non-deterministic), plus a sequential fallback consumed in order.
type ScriptedClient struct {
	mu         sync.Mutex
	sequential []ScriptEntry
	seqIndex   int
	routes     map[string][]ScriptEntry
	routeIndex map[string]int

	// Captured inputs for assertions.
	ChatCalls   []ChatRequest
	VisionCalls []VisionRequest
	EmbedCalls  []string

	// Embedding returned by Embed (defaults to a unit vector).
	Embedding []float32
}

// NewScriptedClient creates an empty scripted client.
func NewScriptedClient() *ScriptedClient {
	return &ScriptedClient{
		routes:     make(map[string][]ScriptEntry),
		routeIndex: make(map[string]int),
	}
}

// AddSequential appends an entry consumed in order by non-routed calls.
func (c *ScriptedClient) AddSequential(entry ScriptEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sequential = append(c.sequential, entry)
}

// AddRouted appends an entry served to calls whose prompt contains marker.
func (c *ScriptedClient) AddRouted(marker string, entry ScriptEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.routes[marker] = append(c.routes[marker], entry)
}

// Chat implements Client.
func (c *ScriptedClient) Chat(ctx context.Context, req ChatRequest) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.ChatCalls = append(c.ChatCalls, req)
	var prompt strings.Builder
	for _, m := range req.Messages {
		prompt.WriteString(m.Content)
		prompt.WriteString("\n")
	}
	entry, err := c.nextEntry(prompt.String())
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return c.toResult(entry)
}

// ChatVision implements Client.
func (c *ScriptedClient) ChatVision(ctx context.Context, req VisionRequest) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.VisionCalls = append(c.VisionCalls, req)
	entry, err := c.nextEntry(req.System + "\n" + req.Prompt)
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return c.toResult(entry)
}

// Embed implements Client.
func (c *ScriptedClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.EmbedCalls = append(c.EmbedCalls, text)
	if c.Embedding != nil {
		return c.Embedding, nil
	}
	v := make([]float32, 1536)
	v[0] = 1
	return v, nil
}

func (c *ScriptedClient) nextEntry(prompt string) (ScriptEntry, error) {
	for marker, entries := range c.routes {
		if strings.Contains(prompt, marker) && c.routeIndex[marker] < len(entries) {
			entry := entries[c.routeIndex[marker]]
			c.routeIndex[marker]++
			return entry, nil
		}
	}
	if c.seqIndex < len(c.sequential) {
		entry := c.sequential[c.seqIndex]
		c.seqIndex++
		return entry, nil
	}
	return ScriptEntry{}, fmt.Errorf("scripted client: no entry for call (prompt %q...)", truncate(prompt, 80))
}

func (c *ScriptedClient) toResult(entry ScriptEntry) (*Result, error) {
	if entry.Error != nil {
		return nil, entry.Error
	}
	return &Result{Content: entry.Content, LogProbs: entry.LogProbs, Usage: entry.Usage}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
