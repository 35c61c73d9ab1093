package models

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/tidwall/sjson"
)

// DefaultMaxTokens is the overall completion allowance assumed when a client omits max_tokens.
const DefaultMaxTokens = 1024 * 1024

const (
	ObjectChatCompletion      = "chat.completion"
	ObjectChatCompletionChunk = "chat.completion.chunk"
)

// FinishReason reports why the model stopped producing tokens.
type FinishReason string

const (
	FinishReasonStop      FinishReason = "stop"
	FinishReasonLength    FinishReason = "length"
	FinishReasonToolCalls FinishReason = "tool_calls"
)

// RenderingMode selects where reasoning text is placed in client-facing output.
type RenderingMode string

const (
	// RenderInlineMarkers places reasoning inside content, wrapped in think markers.
	RenderInlineMarkers RenderingMode = "inline_markers"
	// RenderSeparateField places reasoning in the reasoning_content field.
	RenderSeparateField RenderingMode = "separate_field"
)

// Valid reports whether m is a known rendering mode.
func (m RenderingMode) Valid() bool {
	return m == RenderInlineMarkers || m == RenderSeparateField
}

// Usage records token accounting information.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// NewUsage builds a usage block whose total is prompt + completion.
func NewUsage(prompt, completion int) Usage {
	return Usage{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      prompt + completion,
	}
}

// StreamOptions mirrors the OpenAI stream_options object.
type StreamOptions struct {
	IncludeUsage *bool `json:"include_usage,omitempty"`
}

// Route is the resolved upstream destination for a logical model name.
type Route struct {
	Name            string
	ModelName       string
	APIURL          string
	APIKey          string
	ReasoningBudget int
	RenderingMode   RenderingMode
	Extra           map[string]json.RawMessage
}

// reservedRequestFields are the top-level keys owned by ChatCompletionRequest itself.
var reservedRequestFields = map[string]struct{}{
	"model":          {},
	"messages":       {},
	"max_tokens":     {},
	"stop":           {},
	"stream":         {},
	"stream_options": {},
	"tools":          {},
	"tool_choice":    {},
}

// IsReservedField reports whether key is a request field the gateway controls.
func IsReservedField(key string) bool {
	_, ok := reservedRequestFields[key]
	return ok
}

// ChatCompletionRequest models the OpenAI chat/completions request payload.
// Unknown top-level fields are kept in Extra and re-emitted verbatim.
type ChatCompletionRequest struct {
	Model         string
	Messages      Messages
	MaxTokens     *int
	Stop          []string
	Stream        *bool
	StreamOptions *StreamOptions
	Tools         json.RawMessage
	ToolChoice    json.RawMessage
	Extra         map[string]json.RawMessage
}

type requestWire struct {
	Model         string          `json:"model"`
	Messages      Messages        `json:"messages"`
	MaxTokens     *int            `json:"max_tokens,omitempty"`
	Stop          json.RawMessage `json:"stop,omitempty"`
	Stream        *bool           `json:"stream,omitempty"`
	StreamOptions *StreamOptions  `json:"stream_options,omitempty"`
	Tools         json.RawMessage `json:"tools,omitempty"`
	ToolChoice    json.RawMessage `json:"tool_choice,omitempty"`
}

// UnmarshalJSON decodes the known fields and captures everything else in Extra.
func (r *ChatCompletionRequest) UnmarshalJSON(data []byte) error {
	var raw requestWire
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode chat request: %w", err)
	}

	stop, err := parseStop(raw.Stop)
	if err != nil {
		return err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("decode chat request: %w", err)
	}

	r.Model = strings.TrimSpace(raw.Model)
	r.Messages = raw.Messages
	r.MaxTokens = raw.MaxTokens
	r.Stop = stop
	r.Stream = raw.Stream
	r.StreamOptions = raw.StreamOptions
	r.Tools = nullToNil(raw.Tools)
	r.ToolChoice = nullToNil(raw.ToolChoice)
	r.Extra = nil

	for key, value := range fields {
		if IsReservedField(key) {
			continue
		}
		if r.Extra == nil {
			r.Extra = make(map[string]json.RawMessage)
		}
		r.Extra[key] = value
	}
	return nil
}

// MarshalJSON emits the known fields followed by the Extra passthrough fields.
func (r ChatCompletionRequest) MarshalJSON() ([]byte, error) {
	wire := requestWire{
		Model:         r.Model,
		Messages:      r.Messages,
		MaxTokens:     r.MaxTokens,
		Stream:        r.Stream,
		StreamOptions: r.StreamOptions,
		Tools:         r.Tools,
		ToolChoice:    r.ToolChoice,
	}
	if wire.Messages == nil {
		wire.Messages = Messages{}
	}
	if len(r.Stop) > 0 {
		stop, err := json.Marshal(r.Stop)
		if err != nil {
			return nil, fmt.Errorf("encode stop: %w", err)
		}
		wire.Stop = stop
	}

	body, err := json.Marshal(wire)
	if err != nil {
		return nil, err
	}
	return MergeFields(body, r.Extra, false)
}

// MergeFields sets each field of extra on the top-level JSON object body.
// Keys already present in body are only replaced when override is true.
func MergeFields(body []byte, extra map[string]json.RawMessage, override bool) ([]byte, error) {
	if len(extra) == 0 {
		return body, nil
	}

	var present map[string]json.RawMessage
	if !override {
		if err := json.Unmarshal(body, &present); err != nil {
			return nil, fmt.Errorf("inspect body: %w", err)
		}
	}

	keys := make([]string, 0, len(extra))
	for key := range extra {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var err error
	for _, key := range keys {
		if _, exists := present[key]; exists {
			continue
		}
		body, err = sjson.SetRawBytes(body, escapePathKey(key), extra[key])
		if err != nil {
			return nil, fmt.Errorf("merge field %q: %w", key, err)
		}
	}
	return body, nil
}

// escapePathKey escapes sjson path metacharacters so key addresses a single top-level member.
func escapePathKey(key string) string {
	var b strings.Builder
	for _, r := range key {
		switch r {
		case '.', '*', '?', '|', '#', '@', '!', ':', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Clone returns a copy that can be modified without affecting r.
func (r ChatCompletionRequest) Clone() ChatCompletionRequest {
	out := r
	out.Messages = append(Messages(nil), r.Messages...)
	if r.MaxTokens != nil {
		v := *r.MaxTokens
		out.MaxTokens = &v
	}
	if r.Stop != nil {
		out.Stop = append([]string(nil), r.Stop...)
	}
	if r.Stream != nil {
		v := *r.Stream
		out.Stream = &v
	}
	if r.StreamOptions != nil {
		opts := *r.StreamOptions
		if opts.IncludeUsage != nil {
			v := *opts.IncludeUsage
			opts.IncludeUsage = &v
		}
		out.StreamOptions = &opts
	}
	if r.Extra != nil {
		out.Extra = make(map[string]json.RawMessage, len(r.Extra))
		for k, v := range r.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

// IsStream reports whether the client asked for a streamed response.
func (r ChatCompletionRequest) IsStream() bool {
	return r.Stream != nil && *r.Stream
}

// IncludeUsage reports whether the client asked for a trailing usage chunk.
func (r ChatCompletionRequest) IncludeUsage() bool {
	return r.StreamOptions != nil && r.StreamOptions.IncludeUsage != nil && *r.StreamOptions.IncludeUsage
}

// MaxTokensOr returns max_tokens, or def when the client left it unset.
func (r ChatCompletionRequest) MaxTokensOr(def int) int {
	if r.MaxTokens == nil {
		return def
	}
	return *r.MaxTokens
}

func parseStop(raw json.RawMessage) ([]string, error) {
	raw = nullToNil(raw)
	if len(raw) == 0 {
		return nil, nil
	}

	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		if single == "" {
			return nil, nil
		}
		return []string{single}, nil
	}

	var multi []string
	if err := json.Unmarshal(raw, &multi); err != nil {
		return nil, fmt.Errorf("decode chat request: stop must be a string or a list of strings")
	}
	return multi, nil
}

func nullToNil(raw json.RawMessage) json.RawMessage {
	if strings.TrimSpace(string(raw)) == "null" {
		return nil
	}
	return raw
}

// ChatCompletion is a complete, non-streamed chat response.
type ChatCompletion struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// Choice is a single choice of a ChatCompletion.
type Choice struct {
	Index        int              `json:"index"`
	Message      AssistantMessage `json:"message"`
	Logprobs     json.RawMessage  `json:"logprobs,omitempty"`
	FinishReason FinishReason     `json:"finish_reason"`
}

// ChatCompletionChunk is one server-sent event of a streamed chat response.
type ChatCompletionChunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []ChunkChoice `json:"choices"`
	Usage   *Usage        `json:"usage,omitempty"`
}

// ChunkChoice is a single choice of a ChatCompletionChunk.
type ChunkChoice struct {
	Index        int             `json:"index"`
	Delta        ChunkDelta      `json:"delta"`
	Logprobs     json.RawMessage `json:"logprobs,omitempty"`
	FinishReason *FinishReason   `json:"finish_reason"`
}

// ChunkDelta is the incremental message content carried by a chunk choice.
type ChunkDelta struct {
	Role             Role              `json:"role,omitempty"`
	ReasoningContent *string           `json:"reasoning_content,omitempty"`
	Content          *string           `json:"content,omitempty"`
	ToolCalls        []json.RawMessage `json:"tool_calls,omitempty"`
}

// FirstChoice returns the first choice of the chunk, if any.
func (c *ChatCompletionChunk) FirstChoice() (ChunkChoice, bool) {
	if c == nil || len(c.Choices) == 0 {
		return ChunkChoice{}, false
	}
	return c.Choices[0], true
}

// ModelList is the response of the model listing endpoint.
type ModelList struct {
	Object string      `json:"object"`
	Data   []ModelInfo `json:"data"`
}

// ModelInfo describes a logical model exposed by the gateway.
type ModelInfo struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}
