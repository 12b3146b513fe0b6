package models

import "fmt"

// RequirementCategory partitions proposals into the four analyzer dimensions.
type RequirementCategory string

// Requirement categories.
const (
	CategoryProps         RequirementCategory = "props"
	CategoryEvents        RequirementCategory = "events"
	CategoryStates        RequirementCategory = "states"
	CategoryAccessibility RequirementCategory = "accessibility"
)

// AllCategories lists the categories in analyzer dispatch order.
var AllCategories = []RequirementCategory{
	CategoryProps, CategoryEvents, CategoryStates, CategoryAccessibility,
}

// ProposalStatus is the per-proposal approval state.
type ProposalStatus string

// Proposal lifecycle states. Only approved and edited proposals flow into
// retrieval and generation.
const (
	ProposalProposed ProposalStatus = "proposed"
	ProposalApproved ProposalStatus = "approved"
	ProposalEdited   ProposalStatus = "edited"
	ProposalRemoved  ProposalStatus = "removed"
)

// RequirementProposal is a single inferred requirement with its provenance.
type RequirementProposal struct {
	ID         string              `json:"id"`
	Category   RequirementCategory `json:"category"`
	Name       string              `json:"name"`
	Value      string              `json:"value,omitempty"`
	Confidence float64             `json:"confidence"`
	Rationale  string              `json:"rationale,omitempty"`
	Status     ProposalStatus      `json:"status"`
	// Analyzer that produced the proposal; breaks merge ties deterministically.
	Analyzer string `json:"analyzer,omitempty"`
}

// Approve transitions proposed → approved.
func (p *RequirementProposal) Approve() error {
	if p.Status != ProposalProposed {
		return fmt.Errorf("proposal %s: cannot approve from status %q", p.ID, p.Status)
	}
	p.Status = ProposalApproved
	return nil
}

// Edit transitions proposed → edited with a replacement value.
func (p *RequirementProposal) Edit(newValue string) error {
	if p.Status != ProposalProposed {
		return fmt.Errorf("proposal %s: cannot edit from status %q", p.ID, p.Status)
	}
	p.Value = newValue
	p.Status = ProposalEdited
	return nil
}

// Remove transitions proposed → removed.
func (p *RequirementProposal) Remove() error {
	if p.Status != ProposalProposed {
		return fmt.Errorf("proposal %s: cannot remove from status %q", p.ID, p.Status)
	}
	p.Status = ProposalRemoved
	return nil
}

// Accepted reports whether the proposal survives into retrieval.
func (p *RequirementProposal) Accepted() bool {
	return p.Status == ProposalApproved || p.Status == ProposalEdited
}

// ClassificationCandidate is one entry of the classifier's top-k list.
type ClassificationCandidate struct {
	ComponentType string  `json:"component_type"`
	Confidence    float64 `json:"confidence"`
}

// ComponentClassification is the classifier output that drives analyzer
// dispatch and the retrieval component-type filter.
type ComponentClassification struct {
	ComponentType string                    `json:"component_type"`
	Confidence    float64                   `json:"confidence"`
	TopK          []ClassificationCandidate `json:"top_k"`
}

// RequirementSet groups a classification with its proposals; produced by the
// proposer stage, filtered by approval before retrieval.
type RequirementSet struct {
	Classification ComponentClassification `json:"classification"`
	Proposals      []RequirementProposal   `json:"proposals"`
}

// Accepted returns the approved and edited proposals, in input order.
func (s RequirementSet) Accepted() []RequirementProposal {
	var out []RequirementProposal
	for _, p := range s.Proposals {
		if p.Accepted() {
			out = append(out, p)
		}
	}
	return out
}

// ByCategory partitions proposals by category, preserving input order.
func (s RequirementSet) ByCategory() map[RequirementCategory][]RequirementProposal {
	out := make(map[RequirementCategory][]RequirementProposal, len(AllCategories))
	for _, p := range s.Proposals {
		out[p.Category] = append(out[p.Category], p)
	}
	return out
}

// Names returns the accepted proposal names in the given category.
func (s RequirementSet) Names(cat RequirementCategory) []string {
	var names []string
	for _, p := range s.Proposals {
		if p.Category == cat && p.Accepted() {
			names = append(names, p.Name)
		}
	}
	return names
}
