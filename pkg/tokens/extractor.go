// Package tokens implements the token extraction stage: it turns a UI
// screenshot or a Figma file reference into a semantic design-token set with
// per-token confidence, substituting built-in defaults for anything the
// extraction could not establish reliably.
package tokens

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"dario.cat/mergo"

	"github.com/componentforge/forge/pkg/figma"
	"github.com/componentforge/forge/pkg/llm"
	"github.com/componentforge/forge/pkg/models"
)

// ConfidenceThreshold is the minimum per-token confidence; values below it
// are replaced from the fallback set.
const ConfidenceThreshold = 0.7

// llmRetryDelays are the waits before the second and third vision attempts.
var llmRetryDelays = []time.Duration{500 * time.Millisecond, 2 * time.Second}

// ErrInvalidInput marks uploads that fail the input contract.
var ErrInvalidInput = errors.New("tokens: invalid input")

// Result is the extraction outcome: the validated token set plus warnings
// for every substitution or degraded path taken.
type Result struct {
	Tokens   models.DesignTokens
	Warnings []string
	// FallbackPaths lists the dotted paths substituted from the default set.
	FallbackPaths []string
}

// MeanConfidence averages the confidence of every token field in the set.
func (r *Result) MeanConfidence() float64 {
	var sum float64
	var n int
	for _, path := range allPaths(r.Tokens) {
		if tv, ok := r.Tokens.Lookup(path); ok {
			sum += tv.Confidence
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// Extractor is the token extraction stage.
type Extractor struct {
	llm   llm.Client
	figma *figma.Client
}

// NewExtractor creates the extraction stage over the given collaborators.
func NewExtractor(llmClient llm.Client, figmaClient *figma.Client) *Extractor {
	return &Extractor{llm: llmClient, figma: figmaClient}
}

const visionSystemPrompt = `You are a design-token extraction engine. You receive one UI screenshot and respond with ONLY a JSON object, no prose, in exactly this shape:
{
  "colors": {"<semantic name>": "#RRGGBB", ...},
  "typography": {
    "fontFamily": "<family>",
    "fontSize": {"xs|sm|base|lg|xl|2xl|3xl|4xl": "<Npx or Nrem>", ...},
    "fontWeight": {"<name>": "<100-900>", ...},
    "lineHeight": {"<name>": "<ratio>", ...}
  },
  "spacing": {"xs|sm|md|lg|xl|2xl|3xl": "<Npx or Nrem>", ...},
  "borderRadius": {"sm|md|lg|full": "<Npx or Nrem>", ...}
}
Semantic color names: primary, secondary, destructive, background, foreground, muted, accent, border. Report only what is visually present. Hex colors must be six digits.`

const visionUserPrompt = `Extract the design tokens from this UI screenshot.`

// rawTokens is the wire shape emitted by the vision model: bare strings that
// are re-wrapped with confidences afterwards.
type rawTokens struct {
	Colors     map[string]string `json:"colors"`
	Typography struct {
		FontFamily string            `json:"fontFamily"`
		FontSize   map[string]string `json:"fontSize"`
		FontWeight map[string]string `json:"fontWeight"`
		LineHeight map[string]string `json:"lineHeight"`
	} `json:"typography"`
	Spacing      map[string]string `json:"spacing"`
	BorderRadius map[string]string `json:"borderRadius"`
}

// ExtractFromImage extracts tokens from a screenshot via a single multimodal
// LLM call. Transient LLM failures are retried twice (0.5s, 2s); a third
// failure substitutes the full fallback set and surfaces a warning so the
// pipeline can continue. Invalid uploads fail with ErrInvalidInput.
func (e *Extractor) ExtractFromImage(ctx context.Context, imageData []byte, mimeType string) (*Result, error) {
	if err := ValidateImage(imageData, mimeType); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	var result *llm.Result
	var lastErr error
	for attempt := 0; attempt <= len(llmRetryDelays); attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(llmRetryDelays[attempt-1]):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		result, lastErr = e.llm.ChatVision(ctx, llm.VisionRequest{
			System:    visionSystemPrompt,
			Prompt:    visionUserPrompt,
			ImageData: imageData,
			MIMEType:  mimeType,
			JSONMode:  true,
			LogProbs:  true,
		})
		if lastErr == nil {
			break
		}
		// Rate limits and auth rejections cannot be fixed by retrying here;
		// they surface to the transport layer.
		if _, rateLimited := llm.IsRateLimit(lastErr); rateLimited || errors.Is(lastErr, llm.ErrAuth) {
			return nil, lastErr
		}
		slog.Warn("Vision extraction attempt failed", "attempt", attempt+1, "error", lastErr)
	}

	if lastErr != nil {
		slog.Warn("Vision extraction exhausted retries, using fallback token set", "error", lastErr)
		res := &Result{Tokens: FallbackTokens()}
		res.Warnings = append(res.Warnings, fmt.Sprintf("token extraction failed after retries (%v); using fallback token set", lastErr))
		res.FallbackPaths = allPaths(res.Tokens)
		return res, nil
	}

	var raw rawTokens
	if err := json.Unmarshal([]byte(result.Content), &raw); err != nil {
		slog.Warn("Vision extraction returned unparseable JSON, using fallback token set", "error", err)
		res := &Result{Tokens: FallbackTokens()}
		res.Warnings = append(res.Warnings, "token extraction returned malformed JSON; using fallback token set")
		res.FallbackPaths = allPaths(res.Tokens)
		return res, nil
	}

	extracted := wrapWithConfidence(raw, result.LogProbs)
	return e.finalize(extracted), nil
}

// ExtractFromFigma extracts tokens from a Figma file's published styles.
// Auth rejection and missing files are fatal to the run.
func (e *Extractor) ExtractFromFigma(ctx context.Context, fileKey, accessToken string) (*Result, error) {
	styles, err := e.figma.FileStyles(ctx, fileKey, accessToken)
	if err != nil {
		return nil, err
	}

	extracted := models.DesignTokens{
		Colors:       map[string]models.TokenValue{},
		Spacing:      map[string]models.TokenValue{},
		BorderRadius: map[string]models.TokenValue{},
		Typography: models.Typography{
			FontSize:   map[string]models.TokenValue{},
			FontWeight: map[string]models.TokenValue{},
			LineHeight: map[string]models.TokenValue{},
		},
	}

	fallback := FallbackTokens()
	for _, style := range styles {
		match, ok := classifyStyle(style)
		if !ok {
			continue
		}
		value, haveValue := styleValue(style)
		if !haveValue {
			// Slot identified but no resolvable value; take the default value
			// and keep the slot-classification confidence.
			if def, ok := fallback.Lookup(match.path); ok {
				value = def.Value
			} else {
				continue
			}
		}
		tv := models.TokenValue{Value: value, Confidence: match.confidence, Fallback: !haveValue}
		// First classification wins per slot; later duplicates only replace a
		// lower-confidence entry.
		if existing, ok := extracted.Lookup(match.path); !ok || existing.Confidence < tv.Confidence {
			setPath(&extracted, match.path, tv)
		}
	}

	return e.finalize(extracted), nil
}

// finalize validates the extracted set and substitutes fallback defaults for
// every invalid, missing, or low-confidence field.
func (e *Extractor) finalize(extracted models.DesignTokens) *Result {
	res := &Result{}

	// Clear fields that fail validation or the confidence threshold, then
	// let the merge fill every cleared or missing field from the defaults.
	for _, v := range extracted.Validate() {
		res.Warnings = append(res.Warnings, fmt.Sprintf("token %s: %s (value %q); using default", v.Path, v.Message, v.Value))
		clearPath(&extracted, v.Path)
		res.FallbackPaths = append(res.FallbackPaths, v.Path)
	}
	for _, path := range allPaths(extracted) {
		tv, ok := extracted.Lookup(path)
		if !ok {
			continue
		}
		if tv.Value != "" && tv.Confidence > 0 && tv.Confidence < ConfidenceThreshold {
			res.Warnings = append(res.Warnings, fmt.Sprintf("token %s: confidence %.2f below %.2f; using default", path, tv.Confidence, ConfidenceThreshold))
			clearPath(&extracted, path)
			res.FallbackPaths = append(res.FallbackPaths, path)
		}
	}

	fallback := FallbackTokens()
	if err := mergo.Merge(&extracted, fallback); err != nil {
		// Merge failures only occur on type mismatches, which the fixed
		// shapes rule out; treated as an invariant violation.
		slog.Error("Fallback merge failed", "error", err)
		extracted = fallback
	}
	res.Tokens = extracted
	return res
}

// styleValue resolves a style's token value from its description annotation.
func styleValue(style figma.Style) (string, bool) {
	desc := strings.TrimSpace(style.Description)
	if desc == "" {
		return "", false
	}
	if models.ValidHexColor(desc) || models.ValidCSSLength(desc) {
		return desc, true
	}
	return "", false
}

// wrapWithConfidence turns raw extracted strings into TokenValues whose
// confidence derives from the completion logprobs of each value's tokens.
func wrapWithConfidence(raw rawTokens, logprobs []llm.TokenLogProb) models.DesignTokens {
	wrap := func(v string) models.TokenValue {
		return models.TokenValue{Value: v, Confidence: valueConfidence(logprobs, v)}
	}
	wrapMap := func(m map[string]string) map[string]models.TokenValue {
		out := make(map[string]models.TokenValue, len(m))
		for k, v := range m {
			out[k] = wrap(v)
		}
		return out
	}
	tokens := models.DesignTokens{
		Colors:       wrapMap(raw.Colors),
		Spacing:      wrapMap(raw.Spacing),
		BorderRadius: wrapMap(raw.BorderRadius),
		Typography: models.Typography{
			FontSize:   wrapMap(raw.Typography.FontSize),
			FontWeight: wrapMap(raw.Typography.FontWeight),
			LineHeight: wrapMap(raw.Typography.LineHeight),
		},
	}
	if raw.Typography.FontFamily != "" {
		tokens.Typography.FontFamily = wrap(raw.Typography.FontFamily)
	}
	return tokens
}

// setPath writes a token value at a dotted path. Unknown paths are ignored.
func setPath(t *models.DesignTokens, path string, tv models.TokenValue) {
	parts := strings.SplitN(path, ".", 3)
	if len(parts) < 2 {
		return
	}
	switch parts[0] {
	case "colors":
		t.Colors[parts[1]] = tv
	case "spacing":
		t.Spacing[parts[1]] = tv
	case "borderRadius":
		t.BorderRadius[parts[1]] = tv
	case "typography":
		if parts[1] == "fontFamily" {
			t.Typography.FontFamily = tv
			return
		}
		if len(parts) != 3 {
			return
		}
		switch parts[1] {
		case "fontSize":
			t.Typography.FontSize[parts[2]] = tv
		case "fontWeight":
			t.Typography.FontWeight[parts[2]] = tv
		case "lineHeight":
			t.Typography.LineHeight[parts[2]] = tv
		}
	}
}

// clearPath zeroes a token value so the fallback merge can fill it.
func clearPath(t *models.DesignTokens, path string) {
	parts := strings.SplitN(path, ".", 3)
	if len(parts) < 2 {
		return
	}
	switch parts[0] {
	case "colors":
		delete(t.Colors, parts[1])
	case "spacing":
		delete(t.Spacing, parts[1])
	case "borderRadius":
		delete(t.BorderRadius, parts[1])
	case "typography":
		if parts[1] == "fontFamily" {
			t.Typography.FontFamily = models.TokenValue{}
			return
		}
		if len(parts) != 3 {
			return
		}
		switch parts[1] {
		case "fontSize":
			delete(t.Typography.FontSize, parts[2])
		case "fontWeight":
			delete(t.Typography.FontWeight, parts[2])
		case "lineHeight":
			delete(t.Typography.LineHeight, parts[2])
		}
	}
}

// allPaths enumerates the dotted paths present in a token set.
func allPaths(t models.DesignTokens) []string {
	var paths []string
	for k := range t.Colors {
		paths = append(paths, "colors."+k)
	}
	if t.Typography.FontFamily.Value != "" {
		paths = append(paths, "typography.fontFamily")
	}
	for k := range t.Typography.FontSize {
		paths = append(paths, "typography.fontSize."+k)
	}
	for k := range t.Typography.FontWeight {
		paths = append(paths, "typography.fontWeight."+k)
	}
	for k := range t.Typography.LineHeight {
		paths = append(paths, "typography.lineHeight."+k)
	}
	for k := range t.Spacing {
		paths = append(paths, "spacing."+k)
	}
	for k := range t.BorderRadius {
		paths = append(paths, "borderRadius."+k)
	}
	return paths
}
