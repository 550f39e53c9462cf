package prompt

import (
	"github.com/wilhg/cloudask/pkg/agent"
)

// TokenEstimator estimates token usage of text content.
type TokenEstimator func(text string) int

// RuneEstimator counts runes; it overestimates tokens for English text.
func RuneEstimator(text string) int { return len([]rune(text)) }

// Budget bounds the size of the selection prompt.
type Budget struct {
	// Estimate defaults to RuneEstimator.
	Estimate TokenEstimator
	// MaxTokens <= 0 disables the bound.
	MaxTokens int
}

// FitLog summarizes a Fit decision.
type FitLog struct {
	Tokens  int // estimated tokens of the prompt for the kept candidates
	Dropped int
}

// Fit drops trailing candidates until the selection prompt fits the budget.
// The first candidate is always kept, even when it alone exceeds the budget.
func (b Budget) Fit(query string, candidates []agent.ToolDescriptor) ([]agent.ToolDescriptor, FitLog) {
	est := b.Estimate
	if est == nil {
		est = RuneEstimator
	}
	n := len(candidates)
	tokens := est(ComposeSelection(query, candidates))
	if b.MaxTokens <= 0 {
		return candidates, FitLog{Tokens: tokens}
	}
	for n > 1 && tokens > b.MaxTokens {
		n--
		tokens = est(ComposeSelection(query, candidates[:n]))
	}
	return candidates[:n], FitLog{Tokens: tokens, Dropped: len(candidates) - n}
}
