package translator

import (
	"encoding/json"

	"adaptive-reasoner/internal/models"
)

// Outcome is everything the orchestrator learned from both phases of one request.
type Outcome struct {
	Reasoning       string
	Answer          string
	ToolCalls       []json.RawMessage
	FinishReason    models.FinishReason
	PromptTokens    int
	ReasoningTokens int
	AnswerTokens    int
}

// Usage merges the phase accounting. Only the reasoning phase's prompt size is reported.
func (o Outcome) Usage() models.Usage {
	return models.NewUsage(o.PromptTokens, o.ReasoningTokens+o.AnswerTokens)
}

// MergeCompletion renders the final client-facing completion. The envelope comes from the
// reasoning response and model is the name the client asked for.
func MergeCompletion(reasoning *models.ChatCompletion, model string, mode models.RenderingMode, o Outcome) models.ChatCompletion {
	object := reasoning.Object
	if object == "" {
		object = models.ObjectChatCompletion
	}
	return models.ChatCompletion{
		ID:      reasoning.ID,
		Object:  object,
		Created: reasoning.Created,
		Model:   model,
		Choices: []models.Choice{{
			Index:        0,
			Message:      RenderMessage(mode, o.Reasoning, o.Answer, o.ToolCalls),
			FinishReason: o.FinishReason,
		}},
		Usage: o.Usage(),
	}
}

// RenderMessage places reasoning and answer according to mode.
func RenderMessage(mode models.RenderingMode, reasoning, answer string, toolCalls []json.RawMessage) models.AssistantMessage {
	msg := models.AssistantMessage{ToolCalls: toolCalls}
	if mode == models.RenderSeparateField {
		msg.ReasoningContent = &reasoning
		msg.Content = &answer
		return msg
	}
	content := ThinkingBlock(reasoning) + answer
	msg.Content = &content
	return msg
}
