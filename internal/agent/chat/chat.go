package chat

import (
	"encoding/json"
	"strings"
)

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
	// RoleCorrection marks a corrective instruction injected by the
	// grounding guardrail. It is carried like user input on the wire but
	// must never be mistaken for genuine user text.
	RoleCorrection Role = "correction"
)

// CorrectionMarker prefixes every corrective instruction so downstream
// steps can recognize injected messages by content alone.
const CorrectionMarker = "[SYSTEM:"

// Block is one piece of structured message content.
type Block struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Content holds message content that arrives either as a plain string or
// as a list of typed blocks, depending on the model backend.
type Content struct {
	text   string
	blocks []Block
}

// NewText builds plain string content.
func NewText(s string) Content {
	return Content{text: s}
}

// NewBlocks builds block-list content.
func NewBlocks(blocks ...Block) Content {
	if blocks == nil {
		blocks = []Block{}
	}
	return Content{blocks: blocks}
}

// Text normalizes content to a plain string. Block lists are reduced to
// their text blocks joined by newlines, matching how the rest of the
// pipeline (trace, grounding check) consumes content.
func (c Content) Text() string {
	if c.blocks == nil {
		return c.text
	}
	parts := make([]string, 0, len(c.blocks))
	for _, b := range c.blocks {
		if b.Type == "text" {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// MarshalJSON writes the original shape: a JSON string for plain content,
// a JSON array for block content.
func (c Content) MarshalJSON() ([]byte, error) {
	if c.blocks != nil {
		return json.Marshal(c.blocks)
	}
	return json.Marshal(c.text)
}

// UnmarshalJSON accepts a JSON string, or an array whose items are either
// bare strings or {"type","text"} objects.
func (c *Content) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*c = Content{text: s}
		return nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	blocks := make([]Block, 0, len(raw))
	for _, item := range raw {
		var str string
		if err := json.Unmarshal(item, &str); err == nil {
			blocks = append(blocks, Block{Type: "text", Text: str})
			continue
		}
		var b Block
		if err := json.Unmarshal(item, &b); err != nil {
			return err
		}
		blocks = append(blocks, b)
	}
	*c = Content{blocks: blocks}
	return nil
}

// ToolCall is a single tool invocation requested by the model.
type ToolCall struct {
	ID   string                 `json:"id,omitempty"`
	Name string                 `json:"name"`
	Args map[string]interface{} `json:"args"`
}

// Message is one turn in a conversation thread. Messages are append-only
// and never mutated once added to a thread.
type Message struct {
	Role       Role       `json:"role"`
	Content    Content    `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolName   string     `json:"tool_name,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// Text returns the message content normalized to a plain string.
func (m Message) Text() string {
	return m.Content.Text()
}

// UserAuthored reports whether the message sits in the user slot of the
// conversation, which includes injected corrections.
func (m Message) UserAuthored() bool {
	return m.Role == RoleUser || m.Role == RoleCorrection
}

// UserMessage builds a plain user message.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: NewText(text)}
}

// AssistantMessage builds a plain assistant message.
func AssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Content: NewText(text)}
}

// ToolMessage builds a tool-result message carrying the originating tool
// name and the call it answers.
func ToolMessage(toolName, callID, payload string) Message {
	return Message{Role: RoleTool, Content: NewText(payload), ToolName: toolName, ToolCallID: callID}
}

// CorrectionMessage builds a guardrail correction. The text is expected to
// carry the correction marker prefix.
func CorrectionMessage(text string) Message {
	return Message{Role: RoleCorrection, Content: NewText(text)}
}

// ToolDeclaration describes one callable tool offered to the model.
type ToolDeclaration struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
}
