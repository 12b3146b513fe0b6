// Package requirements implements the requirement proposer stage: a single
// classification call followed by four parallel specialist analyzers whose
// proposals are merged deterministically.
package requirements

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/componentforge/forge/pkg/llm"
	"github.com/componentforge/forge/pkg/models"
)

// MinAnalyzerQuorum is the number of analyzers that must succeed for the
// stage to produce a usable result.
const MinAnalyzerQuorum = 2

// Input is the design evidence handed to the proposer: a screenshot, a
// textual layer-tree description, or both.
type Input struct {
	ImageData   []byte
	MIMEType    string
	Description string
}

// Proposer is the requirement inference stage.
type Proposer struct {
	llm llm.Client
}

// NewProposer creates the stage over the given LLM client.
func NewProposer(client llm.Client) *Proposer {
	return &Proposer{llm: client}
}

const classifierSystemPrompt = `You are a UI component classifier. You receive a component design and respond with ONLY a JSON object:
{"component_type": "...", "confidence": 0.0-1.0, "top_3": [{"component_type": "...", "confidence": 0.0-1.0}]}
Known types: Button, Card, Input, Badge, Alert, Checkbox, Select, Switch, Tabs, RadioGroup, Textarea, Avatar.`

const classifierUserPrompt = `Classify this UI component.`

// classifierResponse is the wire shape of the classification completion.
type classifierResponse struct {
	ComponentType string  `json:"component_type"`
	Confidence    float64 `json:"confidence"`
	Top3          []struct {
		ComponentType string  `json:"component_type"`
		Confidence    float64 `json:"confidence"`
	} `json:"top_3"`
}

// Propose classifies the component and runs the four analyzers in parallel.
// Classifier failure is fatal. Fewer than MinAnalyzerQuorum analyzer
// successes fails the stage; two or three successes continue with the
// missing categories empty and a warning per failure.
func (p *Proposer) Propose(ctx context.Context, input Input, tokens models.DesignTokens) (*models.RequirementSet, []string, error) {
	classification, err := p.classify(ctx, input)
	if err != nil {
		return nil, nil, fmt.Errorf("classification: %w", err)
	}

	type analyzerOutcome struct {
		analyzer  string
		proposals []models.RequirementProposal
		err       error
	}
	outcomes := make([]analyzerOutcome, len(analyzers))

	// All four run to completion regardless of sibling failures; the scope
	// only propagates cancellation, not errors.
	g, gctx := errgroup.WithContext(ctx)
	for i, a := range analyzers {
		g.Go(func() error {
			proposals, err := runAnalyzer(gctx, p.llm, a, input, tokens, classification.ComponentType)
			outcomes[i] = analyzerOutcome{analyzer: a.name, proposals: proposals, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	var warnings []string
	var all []models.RequirementProposal
	succeeded := 0
	for _, outcome := range outcomes {
		if outcome.err != nil {
			slog.Warn("Analyzer failed", "analyzer", outcome.analyzer, "error", outcome.err)
			warnings = append(warnings, fmt.Sprintf("%s analyzer failed: %v", outcome.analyzer, outcome.err))
			continue
		}
		succeeded++
		all = append(all, outcome.proposals...)
	}
	if succeeded < MinAnalyzerQuorum {
		return nil, warnings, fmt.Errorf("only %d of %d analyzers succeeded (need %d)", succeeded, len(analyzers), MinAnalyzerQuorum)
	}

	return &models.RequirementSet{
		Classification: *classification,
		Proposals:      Merge(all),
	}, warnings, nil
}

// classify issues the single classification call.
func (p *Proposer) classify(ctx context.Context, input Input) (*models.ComponentClassification, error) {
	var result *llm.Result
	var err error
	if len(input.ImageData) > 0 {
		result, err = p.llm.ChatVision(ctx, llm.VisionRequest{
			System:    classifierSystemPrompt,
			Prompt:    classifierUserPrompt + "\n" + input.Description,
			ImageData: input.ImageData,
			MIMEType:  input.MIMEType,
			JSONMode:  true,
		})
	} else {
		result, err = p.llm.Chat(ctx, llm.ChatRequest{
			Messages: []llm.Message{
				{Role: llm.RoleSystem, Content: classifierSystemPrompt},
				{Role: llm.RoleUser, Content: classifierUserPrompt + "\n" + input.Description},
			},
			JSONMode: true,
		})
	}
	if err != nil {
		return nil, err
	}

	var parsed classifierResponse
	if err := json.Unmarshal([]byte(result.Content), &parsed); err != nil {
		return nil, fmt.Errorf("malformed classifier response: %w", err)
	}
	if strings.TrimSpace(parsed.ComponentType) == "" {
		return nil, fmt.Errorf("classifier returned no component type")
	}

	classification := &models.ComponentClassification{
		ComponentType: parsed.ComponentType,
		Confidence:    parsed.Confidence,
	}
	for _, c := range parsed.Top3 {
		classification.TopK = append(classification.TopK, models.ClassificationCandidate{
			ComponentType: c.ComponentType,
			Confidence:    c.Confidence,
		})
	}
	return classification, nil
}
