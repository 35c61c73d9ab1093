package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one conversational message. The set of implementations is closed:
// SystemMessage, UserMessage, AssistantMessage and ToolMessage.
type Message interface {
	Role() Role
	isMessage()
}

// SystemMessage carries operator instructions.
type SystemMessage struct {
	Content MessageContent
	Name    string
}

// UserMessage carries end-user input.
type UserMessage struct {
	Content MessageContent
	Name    string
}

// AssistantMessage carries model output, optionally split into reasoning and answer.
type AssistantMessage struct {
	ReasoningContent *string
	Content          *string
	ToolCalls        []json.RawMessage
	Name             string
}

// ToolMessage carries the result of a tool invocation.
type ToolMessage struct {
	ToolCallID string
	Content    MessageContent
}

func (SystemMessage) Role() Role    { return RoleSystem }
func (UserMessage) Role() Role      { return RoleUser }
func (AssistantMessage) Role() Role { return RoleAssistant }
func (ToolMessage) Role() Role      { return RoleTool }

func (SystemMessage) isMessage()    {}
func (UserMessage) isMessage()      {}
func (AssistantMessage) isMessage() {}
func (ToolMessage) isMessage()      {}

// NewAssistantText builds an assistant message whose content is text.
func NewAssistantText(text string) AssistantMessage {
	return AssistantMessage{Content: &text}
}

type textMessageWire struct {
	Role    Role           `json:"role"`
	Content MessageContent `json:"content"`
	Name    string         `json:"name,omitempty"`
}

func (m SystemMessage) MarshalJSON() ([]byte, error) {
	return json.Marshal(textMessageWire{Role: RoleSystem, Content: m.Content, Name: m.Name})
}

func (m *SystemMessage) UnmarshalJSON(data []byte) error {
	var w textMessageWire
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("decode system message: %w", err)
	}
	m.Content, m.Name = w.Content, w.Name
	return nil
}

func (m UserMessage) MarshalJSON() ([]byte, error) {
	return json.Marshal(textMessageWire{Role: RoleUser, Content: m.Content, Name: m.Name})
}

func (m *UserMessage) UnmarshalJSON(data []byte) error {
	var w textMessageWire
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("decode user message: %w", err)
	}
	m.Content, m.Name = w.Content, w.Name
	return nil
}

type assistantMessageWire struct {
	Role             Role              `json:"role"`
	ReasoningContent *string           `json:"reasoning_content,omitempty"`
	Content          *string           `json:"content,omitempty"`
	ToolCalls        []json.RawMessage `json:"tool_calls,omitempty"`
	Name             string            `json:"name,omitempty"`
}

func (m AssistantMessage) MarshalJSON() ([]byte, error) {
	return json.Marshal(assistantMessageWire{
		Role:             RoleAssistant,
		ReasoningContent: m.ReasoningContent,
		Content:          m.Content,
		ToolCalls:        m.ToolCalls,
		Name:             m.Name,
	})
}

func (m *AssistantMessage) UnmarshalJSON(data []byte) error {
	var w assistantMessageWire
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("decode assistant message: %w", err)
	}
	m.ReasoningContent = w.ReasoningContent
	m.Content = w.Content
	m.ToolCalls = w.ToolCalls
	m.Name = w.Name
	return nil
}

type toolMessageWire struct {
	Role       Role           `json:"role"`
	ToolCallID string         `json:"tool_call_id"`
	Content    MessageContent `json:"content"`
}

func (m ToolMessage) MarshalJSON() ([]byte, error) {
	return json.Marshal(toolMessageWire{Role: RoleTool, ToolCallID: m.ToolCallID, Content: m.Content})
}

func (m *ToolMessage) UnmarshalJSON(data []byte) error {
	var w toolMessageWire
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("decode tool message: %w", err)
	}
	m.ToolCallID, m.Content = w.ToolCallID, w.Content
	return nil
}

// Messages is an ordered conversation that decodes each element by its role.
type Messages []Message

// UnmarshalJSON dispatches every element on its "role" field.
func (ms *Messages) UnmarshalJSON(data []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return fmt.Errorf("decode messages: %w", err)
	}

	out := make(Messages, 0, len(raws))
	for i, raw := range raws {
		msg, err := UnmarshalMessage(raw)
		if err != nil {
			return fmt.Errorf("message[%d]: %w", i, err)
		}
		out = append(out, msg)
	}
	*ms = out
	return nil
}

// UnmarshalMessage decodes a single message into its role-specific type.
func UnmarshalMessage(data []byte) (Message, error) {
	var probe struct {
		Role Role `json:"role"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}

	switch Role(strings.TrimSpace(string(probe.Role))) {
	case RoleSystem:
		var m SystemMessage
		err := json.Unmarshal(data, &m)
		return m, err
	case RoleUser:
		var m UserMessage
		err := json.Unmarshal(data, &m)
		return m, err
	case RoleAssistant:
		var m AssistantMessage
		err := json.Unmarshal(data, &m)
		return m, err
	case RoleTool:
		var m ToolMessage
		err := json.Unmarshal(data, &m)
		return m, err
	default:
		return nil, fmt.Errorf("unsupported message role %q", probe.Role)
	}
}

// MessageContent is either plain text or an ordered list of typed parts.
type MessageContent struct {
	Text  string
	Parts []ContentPart
}

// TextContent wraps s as plain-text content.
func TextContent(s string) MessageContent {
	return MessageContent{Text: s}
}

// IsParts reports whether the content uses the structured parts form.
func (c MessageContent) IsParts() bool {
	return c.Parts != nil
}

// String returns the plain text, or the concatenated text parts.
func (c MessageContent) String() string {
	if !c.IsParts() {
		return c.Text
	}
	var b strings.Builder
	for _, part := range c.Parts {
		if part.Type == ContentPartText {
			b.WriteString(part.Text)
		}
	}
	return b.String()
}

func (c MessageContent) MarshalJSON() ([]byte, error) {
	if c.IsParts() {
		return json.Marshal(c.Parts)
	}
	return json.Marshal(c.Text)
}

func (c *MessageContent) UnmarshalJSON(data []byte) error {
	if strings.TrimSpace(string(data)) == "null" {
		*c = MessageContent{}
		return nil
	}

	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		*c = MessageContent{Text: text}
		return nil
	}

	var parts []ContentPart
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("content must be a string or a list of parts: %w", err)
	}
	if parts == nil {
		parts = []ContentPart{}
	}
	*c = MessageContent{Parts: parts}
	return nil
}

const (
	ContentPartText     = "text"
	ContentPartImageURL = "image_url"
)

// ContentPart is a single typed element of structured message content.
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// UnmarshalJSON validates the part type against the supported kinds.
func (p *ContentPart) UnmarshalJSON(data []byte) error {
	type alias ContentPart
	var raw alias
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch raw.Type {
	case ContentPartText:
	case ContentPartImageURL:
		if raw.ImageURL == nil {
			return fmt.Errorf("content part %q requires image_url", raw.Type)
		}
	default:
		return fmt.Errorf("content part type %q not supported", raw.Type)
	}
	*p = ContentPart(raw)
	return nil
}

// ImageURL references an image supplied to a multimodal model.
type ImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}
