package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	openai "github.com/sashabaranov/go-openai"
)

const (
	retryInitialInterval = 500 * time.Millisecond
	retryMaxInterval     = 8 * time.Second
	// maxRetries is additional attempts after the first (3 attempts total).
	maxRetries = 2

	// defaultRetryAfter is used when a 429 response carries no Retry-After.
	defaultRetryAfter = 60
)

// OpenAIClient implements Client on the OpenAI API.
type OpenAIClient struct {
	api            *openai.Client
	model          string
	embeddingModel string
	// semaphore bounding concurrent provider calls across all runs.
	sem chan struct{}
}

// NewOpenAIClient creates a client for the given models. concurrency bounds
// in-flight provider calls process-wide; 0 means unbounded.
func NewOpenAIClient(apiKey, model, embeddingModel string, concurrency int) *OpenAIClient {
	var sem chan struct{}
	if concurrency > 0 {
		sem = make(chan struct{}, concurrency)
	}
	return &OpenAIClient{
		api:            openai.NewClient(apiKey),
		model:          model,
		embeddingModel: embeddingModel,
		sem:            sem,
	}
}

// Chat issues a text completion, retrying transient provider failures.
func (c *OpenAIClient) Chat(ctx context.Context, req ChatRequest) (*Result, error) {
	messages := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}
	return c.complete(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		LogProbs:    req.LogProbs,
	}, req.JSONMode)
}

// ChatVision issues a multimodal completion with one inline image.
func (c *OpenAIClient) ChatVision(ctx context.Context, req VisionRequest) (*Result, error) {
	dataURL := fmt.Sprintf("data:%s;base64,%s", req.MIMEType, base64.StdEncoding.EncodeToString(req.ImageData))

	messages := []openai.ChatCompletionMessage{}
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleUser,
		MultiContent: []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: req.Prompt},
			{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{
				URL:    dataURL,
				Detail: openai.ImageURLDetailAuto,
			}},
		},
	})

	return c.complete(ctx, openai.ChatCompletionRequest{
		Model:     c.model,
		Messages:  messages,
		MaxTokens: req.MaxTokens,
		LogProbs:  req.LogProbs,
	}, req.JSONMode)
}

// Embed returns the embedding of the given text.
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := c.acquire(ctx); err != nil {
		return nil, err
	}
	defer c.release()

	var embedding []float32
	op := func() error {
		resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
			Input: []string{text},
			Model: openai.EmbeddingModel(c.embeddingModel),
		})
		if err != nil {
			return classifyAPIError(err)
		}
		if len(resp.Data) == 0 {
			return backoff.Permanent(fmt.Errorf("llm: empty embedding response"))
		}
		embedding = resp.Data[0].Embedding
		return nil
	}
	if err := c.retry(ctx, op); err != nil {
		return nil, err
	}
	return embedding, nil
}

func (c *OpenAIClient) complete(ctx context.Context, req openai.ChatCompletionRequest, jsonMode bool) (*Result, error) {
	if jsonMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	if err := c.acquire(ctx); err != nil {
		return nil, err
	}
	defer c.release()

	var result *Result
	op := func() error {
		start := time.Now()
		resp, err := c.api.CreateChatCompletion(ctx, req)
		if err != nil {
			return classifyAPIError(err)
		}
		if len(resp.Choices) == 0 {
			return backoff.Permanent(fmt.Errorf("llm: response contained no choices"))
		}
		choice := resp.Choices[0]

		var logprobs []TokenLogProb
		if choice.LogProbs != nil {
			logprobs = make([]TokenLogProb, 0, len(choice.LogProbs.Content))
			for _, lp := range choice.LogProbs.Content {
				logprobs = append(logprobs, TokenLogProb{Token: lp.Token, LogProb: lp.LogProb})
			}
		}

		result = &Result{
			Content:  choice.Message.Content,
			LogProbs: logprobs,
			Usage: Usage{
				PromptTokens:     resp.Usage.PromptTokens,
				CompletionTokens: resp.Usage.CompletionTokens,
				CostUSD:          costUSD(req.Model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens),
			},
			Latency: time.Since(start),
		}
		return nil
	}
	if err := c.retry(ctx, op); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *OpenAIClient) retry(ctx context.Context, op backoff.Operation) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = retryInitialInterval
	bo.MaxInterval = retryMaxInterval

	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, maxRetries), ctx))
	if err == nil {
		return nil
	}
	// A transient error that survived all retries is an availability failure.
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode >= 500 {
		slog.Warn("LLM provider unavailable after retries", "status", apiErr.HTTPStatusCode)
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}

func (c *OpenAIClient) acquire(ctx context.Context) error {
	if c.sem == nil {
		return nil
	}
	select {
	case c.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *OpenAIClient) release() {
	if c.sem != nil {
		<-c.sem
	}
}

// classifyAPIError maps provider errors onto the package's error taxonomy.
// Auth and rate-limit failures are permanent: retrying with the same key
// cannot succeed, and 429 must surface to the caller with its Retry-After.
func classifyAPIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == 401 || apiErr.HTTPStatusCode == 403:
			return backoff.Permanent(fmt.Errorf("%w: %v", ErrAuth, err))
		case apiErr.HTTPStatusCode == 429:
			return backoff.Permanent(&RateLimitError{RetryAfter: retryAfterSeconds(apiErr)})
		case apiErr.HTTPStatusCode >= 500:
			return err // retryable
		case apiErr.HTTPStatusCode >= 400:
			return backoff.Permanent(err)
		}
	}
	// Network-level errors are retryable.
	return err
}

// retryAfterSeconds pulls a Retry-After hint out of the provider error
// message ("Please try again in 30s"). Falls back to 60 seconds.
func retryAfterSeconds(apiErr *openai.APIError) int {
	msg := apiErr.Message
	if idx := strings.Index(msg, "try again in "); idx >= 0 {
		rest := msg[idx+len("try again in "):]
		var secs int
		if _, err := fmt.Sscanf(rest, "%ds", &secs); err == nil && secs > 0 {
			return secs
		}
	}
	return defaultRetryAfter
}

// costUSD estimates the dollar cost of a call from the published per-million
// token prices. Unknown models cost zero (accounting only, never gating).
func costUSD(model string, promptTokens, completionTokens int) float64 {
	type price struct{ in, out float64 } // USD per 1M tokens
	prices := []struct {
		prefix string
		p      price
	}{
		{"gpt-4o-mini", price{0.15, 0.60}},
		{"gpt-4o", price{2.50, 10.00}},
		{"gpt-4.1", price{2.00, 8.00}},
		{"text-embedding-3-small", price{0.02, 0}},
		{"text-embedding-3-large", price{0.13, 0}},
	}
	for _, entry := range prices {
		if strings.HasPrefix(model, entry.prefix) {
			return float64(promptTokens)/1e6*entry.p.in + float64(completionTokens)/1e6*entry.p.out
		}
	}
	return 0
}
