package translator

import (
	"time"

	"github.com/google/uuid"

	"adaptive-reasoner/internal/models"
)

// Envelope carries the header fields of outgoing chunks. id and created follow the first
// upstream event of the current phase; model is always the client's logical name.
type Envelope struct {
	id      string
	created int64
	model   string
	pinned  bool
	now     func() time.Time
}

// NewEnvelope returns an envelope for the given client-facing model name.
func NewEnvelope(model string) *Envelope {
	return &Envelope{model: model, now: time.Now}
}

// StartPhase releases the pinned id so the next observed event sets it again.
func (e *Envelope) StartPhase() {
	e.pinned = false
}

// Observe pins id and created to chunk if nothing has been pinned in this phase yet.
func (e *Envelope) Observe(chunk *models.ChatCompletionChunk) {
	if e.pinned || chunk == nil {
		return
	}
	e.pinned = true
	if chunk.ID != "" {
		e.id = chunk.ID
	}
	if chunk.Created != 0 {
		e.created = chunk.Created
	}
}

// ID returns the current chunk id, inventing one if no upstream event has supplied it.
func (e *Envelope) ID() string {
	if e.id == "" {
		e.id = "chatcmpl-" + uuid.NewString()
	}
	return e.id
}

func (e *Envelope) createdAt() int64 {
	if e.created == 0 {
		e.created = e.now().Unix()
	}
	return e.created
}

// Chunk builds an outgoing chunk carrying choices.
func (e *Envelope) Chunk(choices ...models.ChunkChoice) models.ChatCompletionChunk {
	if choices == nil {
		choices = []models.ChunkChoice{}
	}
	return models.ChatCompletionChunk{
		ID:      e.ID(),
		Object:  models.ObjectChatCompletionChunk,
		Created: e.createdAt(),
		Model:   e.model,
		Choices: choices,
	}
}

// DeltaChunk builds a chunk with a single choice holding delta and no finish reason.
func (e *Envelope) DeltaChunk(delta models.ChunkDelta) models.ChatCompletionChunk {
	return e.Chunk(models.ChunkChoice{Index: 0, Delta: delta})
}

// Forward re-envelopes an upstream chunk, keeping its choices untouched.
func (e *Envelope) Forward(upstream *models.ChatCompletionChunk) models.ChatCompletionChunk {
	return e.Chunk(upstream.Choices...)
}

// LengthChunk reports that the budget ran out before any answer could be produced.
func (e *Envelope) LengthChunk() models.ChatCompletionChunk {
	reason := models.FinishReasonLength
	empty := ""
	return e.Chunk(models.ChunkChoice{
		Index:        0,
		Delta:        models.ChunkDelta{Content: &empty},
		FinishReason: &reason,
	})
}

// UsageChunk carries merged usage and an empty choice list.
func (e *Envelope) UsageChunk(usage models.Usage) models.ChatCompletionChunk {
	chunk := e.Chunk()
	chunk.Usage = &usage
	return chunk
}

// OpeningDelta starts the assistant turn; inline mode also opens the think block.
func OpeningDelta(mode models.RenderingMode) models.ChunkDelta {
	delta := models.ChunkDelta{Role: models.RoleAssistant}
	if mode != models.RenderSeparateField {
		delta.Content = stringPtr(ThinkStart)
	}
	return delta
}

// ReasoningDelta carries a piece of reasoning text in the field mode selects.
func ReasoningDelta(mode models.RenderingMode, text string) models.ChunkDelta {
	if mode == models.RenderSeparateField {
		return models.ChunkDelta{ReasoningContent: stringPtr(text)}
	}
	return models.ChunkDelta{Content: stringPtr(text)}
}

// ThinkingEndDelta closes the think block. It reports false in separate-field mode, where
// there is nothing to close.
func ThinkingEndDelta(mode models.RenderingMode) (models.ChunkDelta, bool) {
	if mode == models.RenderSeparateField {
		return models.ChunkDelta{}, false
	}
	return models.ChunkDelta{Content: stringPtr(ThinkEnd)}, true
}

func stringPtr(s string) *string {
	return &s
}
