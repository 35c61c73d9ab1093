// Package translator shapes the two upstream phase requests and renders their results back
// into client-facing completions and chunks.
package translator

import (
	"adaptive-reasoner/internal/models"
)

const (
	// ThinkStart opens the reasoning block and seeds the reasoning phase.
	ThinkStart = "<think>"
	// ThinkEnd closes the reasoning block and stops the reasoning phase.
	ThinkEnd = "</think>"
	// CutoffNotice is appended to reasoning that ran out of budget before the answer phase.
	CutoffNotice = "Right, this is taking too long... Time to write the answer."
)

// CutoffSuffix is the exact text appended to truncated reasoning.
func CutoffSuffix() string {
	return "...\n\n" + CutoffNotice + "\n"
}

// ReasoningRequest builds the first-phase request: the client's conversation followed by an
// assistant turn holding only ThinkStart, stopped at ThinkEnd and capped at budget tokens.
func ReasoningRequest(req models.ChatCompletionRequest, budget int, stream bool) models.ChatCompletionRequest {
	out := req.Clone()
	out.Messages = append(out.Messages, models.NewAssistantText(ThinkStart))
	out.Stop = []string{ThinkEnd}
	out.MaxTokens = intPtr(budget)
	setStreaming(&out, stream)
	return out
}

// AnswerRequest builds the second-phase request: the client's conversation followed by an
// assistant turn holding the finished reasoning block, capped at remaining tokens.
// The client's stop sequences are kept.
func AnswerRequest(req models.ChatCompletionRequest, reasoning string, remaining int, stream bool) models.ChatCompletionRequest {
	out := req.Clone()
	out.Messages = append(out.Messages, models.NewAssistantText(ThinkingBlock(reasoning)))
	out.MaxTokens = intPtr(remaining)
	setStreaming(&out, stream)
	return out
}

// ThinkingBlock wraps reasoning in the think markers.
func ThinkingBlock(reasoning string) string {
	return ThinkStart + reasoning + ThinkEnd
}

// Remaining returns the completion allowance left for the answer phase.
func Remaining(maxTokens, reasoningTokens int) int {
	return maxTokens - reasoningTokens
}

func setStreaming(req *models.ChatCompletionRequest, stream bool) {
	req.Stream = &stream
	if !stream {
		req.StreamOptions = nil
		return
	}
	include := true
	req.StreamOptions = &models.StreamOptions{IncludeUsage: &include}
}

func intPtr(v int) *int {
	return &v
}
