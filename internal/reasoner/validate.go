package reasoner

import (
	"adaptive-reasoner/internal/models"
)

// Validate rejects requests the two-phase exchange cannot serve: an empty conversation, or
// one that ends with a partial assistant turn.
func Validate(req models.ChatCompletionRequest) error {
	if len(req.Messages) == 0 {
		return models.NewValidationError("messages must not be empty")
	}
	switch req.Messages[len(req.Messages)-1].(type) {
	case models.AssistantMessage, *models.AssistantMessage:
		return models.NewValidationError("continuing a partial assistant message is not supported; the last message must not have role assistant")
	}
	return nil
}
