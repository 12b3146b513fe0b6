package requirements

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/componentforge/forge/pkg/llm"
	"github.com/componentforge/forge/pkg/models"
)

// analyzer is one of the four specialist inference passes. The name doubles
// as the deterministic tie-breaker during merge.
type analyzer struct {
	name     string
	category models.RequirementCategory
	prompt   string
}

// Analyzer prompt marker strings. Routed test scripts key off the
// "analyzer:" line, and merge ties resolve by analyzer name, so these are
// load-bearing identifiers, not prose.
var analyzers = []analyzer{
	{
		name:     "props",
		category: models.CategoryProps,
		prompt: `analyzer: props
Infer the props this component needs: visual variant, size, boolean flags.
For enumerated props, set "value" to the options joined by "|" (e.g. "sm|md|lg").`,
	},
	{
		name:     "events",
		category: models.CategoryEvents,
		prompt: `analyzer: events
Infer the event handler props this component needs (onClick, onChange,
onFocus, ...). Name them exactly as React handler props.`,
	},
	{
		name:     "states",
		category: models.CategoryStates,
		prompt: `analyzer: states
Infer the interaction and rendering states this component supports:
hover, focus, active, disabled, loading, error, checked, open, ...`,
	},
	{
		name:     "accessibility",
		category: models.CategoryAccessibility,
		prompt: `analyzer: accessibility
Infer the accessibility requirements: ARIA attributes, the semantic element
to render, and keyboard affordances.`,
	},
}

const analyzerSystemPrompt = `You are a UI requirement analyst. You receive a component description and its design tokens. Respond with ONLY a JSON object:
{"proposals": [{"name": "...", "value": "...", "confidence": 0.0-1.0, "rationale": "..."}]}
Report only requirements the design evidence supports. Confidence reflects how certain the visual evidence is.`

// analyzerResponse is the wire shape of one analyzer completion.
type analyzerResponse struct {
	Proposals []struct {
		Name       string  `json:"name"`
		Value      string  `json:"value"`
		Confidence float64 `json:"confidence"`
		Rationale  string  `json:"rationale"`
	} `json:"proposals"`
}

// runAnalyzer issues one specialist call and parses its proposals.
func runAnalyzer(ctx context.Context, client llm.Client, a analyzer, input Input, tokens models.DesignTokens, componentType string) ([]models.RequirementProposal, error) {
	userPrompt := buildAnalyzerPrompt(a, input, tokens, componentType)

	var result *llm.Result
	var err error
	if len(input.ImageData) > 0 {
		result, err = client.ChatVision(ctx, llm.VisionRequest{
			System:    analyzerSystemPrompt,
			Prompt:    userPrompt,
			ImageData: input.ImageData,
			MIMEType:  input.MIMEType,
			JSONMode:  true,
		})
	} else {
		result, err = client.Chat(ctx, llm.ChatRequest{
			Messages: []llm.Message{
				{Role: llm.RoleSystem, Content: analyzerSystemPrompt},
				{Role: llm.RoleUser, Content: userPrompt},
			},
			JSONMode: true,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("%s analyzer: %w", a.name, err)
	}

	var parsed analyzerResponse
	if err := json.Unmarshal([]byte(result.Content), &parsed); err != nil {
		return nil, fmt.Errorf("%s analyzer returned malformed JSON: %w", a.name, err)
	}

	proposals := make([]models.RequirementProposal, 0, len(parsed.Proposals))
	for _, p := range parsed.Proposals {
		if strings.TrimSpace(p.Name) == "" {
			continue
		}
		conf := p.Confidence
		if conf < 0 {
			conf = 0
		}
		if conf > 1 {
			conf = 1
		}
		proposals = append(proposals, models.RequirementProposal{
			ID:         uuid.New().String(),
			Category:   a.category,
			Name:       strings.TrimSpace(p.Name),
			Value:      strings.TrimSpace(p.Value),
			Confidence: conf,
			Rationale:  p.Rationale,
			Status:     models.ProposalProposed,
			Analyzer:   a.name,
		})
	}
	return proposals, nil
}

func buildAnalyzerPrompt(a analyzer, input Input, tokens models.DesignTokens, componentType string) string {
	var b strings.Builder
	b.WriteString(a.prompt)
	b.WriteString("\n\nComponent type: ")
	b.WriteString(componentType)
	if input.Description != "" {
		b.WriteString("\n\nDesign description:\n")
		b.WriteString(input.Description)
	}
	if tokensJSON, err := tokens.CanonicalJSON(); err == nil {
		b.WriteString("\n\nDesign tokens:\n")
		b.Write(tokensJSON)
	}
	return b.String()
}
