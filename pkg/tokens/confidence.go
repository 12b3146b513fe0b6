package tokens

import (
	"math"
	"strings"

	"github.com/componentforge/forge/pkg/llm"
)

// valueConfidence derives the confidence of one extracted value from the
// completion's logprobs: exp(mean(logprobs of the tokens spanning the
// value's first occurrence)). When the span cannot be located (tokenizer
// split the value unrecognizably) the completion-wide mean is used.
func valueConfidence(logprobs []llm.TokenLogProb, value string) float64 {
	if len(logprobs) == 0 {
		return 0
	}
	var full strings.Builder
	offsets := make([]int, len(logprobs)+1)
	for i, lp := range logprobs {
		offsets[i] = full.Len()
		full.WriteString(lp.Token)
	}
	offsets[len(logprobs)] = full.Len()

	start := strings.Index(full.String(), value)
	if start < 0 || value == "" {
		return meanConfidence(logprobs)
	}
	end := start + len(value)

	var sum float64
	var n int
	for i, lp := range logprobs {
		// Token i covers [offsets[i], offsets[i+1]).
		if offsets[i+1] <= start || offsets[i] >= end {
			continue
		}
		sum += lp.LogProb
		n++
	}
	if n == 0 {
		return meanConfidence(logprobs)
	}
	return clamp01(math.Exp(sum / float64(n)))
}

// meanConfidence is exp(mean(all logprobs)) over the whole completion.
func meanConfidence(logprobs []llm.TokenLogProb) float64 {
	if len(logprobs) == 0 {
		return 0
	}
	var sum float64
	for _, lp := range logprobs {
		sum += lp.LogProb
	}
	return clamp01(math.Exp(sum / float64(len(logprobs))))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
