package translator

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"adaptive-reasoner/internal/models"
)

func baseRequest() models.ChatCompletionRequest {
	maxTokens := 500
	return models.ChatCompletionRequest{
		Model:     "adaptive",
		Messages:  models.Messages{models.UserMessage{Content: models.TextContent("why?")}},
		MaxTokens: &maxTokens,
		Stop:      []string{"END"},
		Extra:     map[string]json.RawMessage{"temperature": json.RawMessage(`0.3`)},
	}
}

func lastAssistantContent(t *testing.T, req models.ChatCompletionRequest) string {
	t.Helper()
	require.NotEmpty(t, req.Messages)
	msg, ok := req.Messages[len(req.Messages)-1].(models.AssistantMessage)
	require.True(t, ok, "last message should be an assistant turn")
	require.NotNil(t, msg.Content)
	return *msg.Content
}

func TestReasoningRequest(t *testing.T) {
	req := baseRequest()
	out := ReasoningRequest(req, 64, false)

	assert.Len(t, out.Messages, 2)
	assert.Equal(t, ThinkStart, lastAssistantContent(t, out))
	assert.Equal(t, []string{ThinkEnd}, out.Stop)
	require.NotNil(t, out.MaxTokens)
	assert.Equal(t, 64, *out.MaxTokens)
	assert.False(t, out.IsStream())
	assert.Nil(t, out.StreamOptions)
	assert.Equal(t, json.RawMessage(`0.3`), out.Extra["temperature"])

	assert.Len(t, req.Messages, 1, "input request must stay untouched")
	assert.Equal(t, []string{"END"}, req.Stop)
	assert.Equal(t, 500, *req.MaxTokens)
}

func TestReasoningRequest_StreamingAsksForUsage(t *testing.T) {
	out := ReasoningRequest(baseRequest(), 64, true)
	assert.True(t, out.IsStream())
	assert.True(t, out.IncludeUsage())

	body, err := json.Marshal(out)
	require.NoError(t, err)
	assert.True(t, gjson.GetBytes(body, "stream_options.include_usage").Bool())
	assert.Equal(t, "assistant", gjson.GetBytes(body, "messages.1.role").String())
	assert.Equal(t, ThinkStart, gjson.GetBytes(body, "messages.1.content").String())
}

func TestAnswerRequest(t *testing.T) {
	out := AnswerRequest(baseRequest(), "step one", 436, false)

	assert.Equal(t, "<think>step one</think>", lastAssistantContent(t, out))
	assert.Equal(t, []string{"END"}, out.Stop)
	assert.Equal(t, 436, *out.MaxTokens)
}

func TestCutoffSuffix(t *testing.T) {
	assert.Equal(t, "...\n\nRight, this is taking too long... Time to write the answer.\n", CutoffSuffix())
}

func TestMergeCompletion_InlineMarkers(t *testing.T) {
	reasoning := &models.ChatCompletion{ID: "r1", Object: "chat.completion", Created: 42}
	out := MergeCompletion(reasoning, "adaptive", models.RenderInlineMarkers, Outcome{
		Reasoning:       "thought",
		Answer:          "42",
		FinishReason:    models.FinishReasonStop,
		PromptTokens:    10,
		ReasoningTokens: 80,
		AnswerTokens:    90,
	})

	assert.Equal(t, "r1", out.ID)
	assert.Equal(t, int64(42), out.Created)
	assert.Equal(t, "adaptive", out.Model)
	require.Len(t, out.Choices, 1)
	assert.Equal(t, "<think>thought</think>42", *out.Choices[0].Message.Content)
	assert.Nil(t, out.Choices[0].Message.ReasoningContent)
	assert.Equal(t, models.Usage{PromptTokens: 10, CompletionTokens: 170, TotalTokens: 180}, out.Usage)
}

func TestMergeCompletion_SeparateField(t *testing.T) {
	out := MergeCompletion(&models.ChatCompletion{ID: "r1"}, "adaptive", models.RenderSeparateField, Outcome{
		Reasoning:    "thought",
		Answer:       "42",
		FinishReason: models.FinishReasonStop,
	})

	msg := out.Choices[0].Message
	require.NotNil(t, msg.ReasoningContent)
	assert.Equal(t, "thought", *msg.ReasoningContent)
	assert.Equal(t, "42", *msg.Content)
	assert.Equal(t, models.ObjectChatCompletion, out.Object)
}

func TestEnvelope_PinsPerPhase(t *testing.T) {
	env := NewEnvelope("adaptive")
	env.Observe(&models.ChatCompletionChunk{ID: "a", Created: 1})
	env.Observe(&models.ChatCompletionChunk{ID: "b", Created: 2})

	chunk := env.DeltaChunk(ReasoningDelta(models.RenderInlineMarkers, "x"))
	assert.Equal(t, "a", chunk.ID)
	assert.Equal(t, int64(1), chunk.Created)
	assert.Equal(t, "adaptive", chunk.Model)
	assert.Equal(t, models.ObjectChatCompletionChunk, chunk.Object)

	env.StartPhase()
	env.Observe(&models.ChatCompletionChunk{ID: "c", Created: 3})
	assert.Equal(t, "c", env.LengthChunk().ID)
}

func TestEnvelope_FallbackIDWithoutUpstreamEvents(t *testing.T) {
	env := NewEnvelope("adaptive")
	env.now = func() time.Time { return time.Unix(1700000000, 0) }

	chunk := env.UsageChunk(models.NewUsage(1, 2))
	assert.True(t, strings.HasPrefix(chunk.ID, "chatcmpl-"))
	assert.Equal(t, int64(1700000000), chunk.Created)
	assert.NotNil(t, chunk.Choices)
	assert.Empty(t, chunk.Choices)
	assert.Equal(t, 3, chunk.Usage.TotalTokens)

	assert.Equal(t, chunk.ID, env.LengthChunk().ID)
}

func TestDeltas(t *testing.T) {
	opening := OpeningDelta(models.RenderInlineMarkers)
	assert.Equal(t, models.RoleAssistant, opening.Role)
	assert.Equal(t, ThinkStart, *opening.Content)

	opening = OpeningDelta(models.RenderSeparateField)
	assert.Equal(t, models.RoleAssistant, opening.Role)
	assert.Nil(t, opening.Content)

	assert.Equal(t, "r", *ReasoningDelta(models.RenderSeparateField, "r").ReasoningContent)
	assert.Equal(t, "r", *ReasoningDelta(models.RenderInlineMarkers, "r").Content)

	end, ok := ThinkingEndDelta(models.RenderInlineMarkers)
	assert.True(t, ok)
	assert.Equal(t, ThinkEnd, *end.Content)

	_, ok = ThinkingEndDelta(models.RenderSeparateField)
	assert.False(t, ok)
}

func TestLengthChunk(t *testing.T) {
	chunk := NewEnvelope("adaptive").LengthChunk()
	require.Len(t, chunk.Choices, 1)
	require.NotNil(t, chunk.Choices[0].FinishReason)
	assert.Equal(t, models.FinishReasonLength, *chunk.Choices[0].FinishReason)
	assert.Equal(t, "", *chunk.Choices[0].Delta.Content)
}
