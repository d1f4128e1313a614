package completion

import (
	"encoding/json"
	"fmt"
)

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one turn of a conversation. It is implemented only by
// SystemMessage, UserMessage, AssistantMessage and ToolMessage. Pointers
// to them also satisfy it; a Client copies those into values when they
// are added.
type Message interface {
	json.Marshaler

	// Role returns the canonical role of the variant.
	Role() Role

	// Validate reports whether the message carries the fields its role
	// requires.
	Validate() error

	isMessage()
}

// SystemMessage sets the behavior of the assistant.
type SystemMessage struct {
	Content    string
	Name       string
	RoleLabel  string
	ToolCallID string
}

// UserMessage is input from the end user.
type UserMessage struct {
	Content    string
	Name       string
	RoleLabel  string
	ToolCallID string
}

// AssistantMessage is a reply from the model, possibly requesting tool calls.
type AssistantMessage struct {
	Content    string
	Name       string
	RoleLabel  string
	ToolCalls  []ToolCall
	ToolCallID string
}

// ToolMessage carries the result of a tool call back to the model.
type ToolMessage struct {
	Content    string
	Name       string
	RoleLabel  string
	ToolCallID string
}

// ToolCall is a function invocation requested by the assistant.
type ToolCall struct {
	ID       string       `json:"id,omitempty"`
	Type     string       `json:"type,omitempty"`
	Function FunctionCall `json:"function"`
}

// FunctionCall names the function to call. Arguments is the JSON-encoded
// argument object exactly as produced by the model.
type FunctionCall struct {
	Arguments string `json:"arguments,omitempty"`
	Name      string `json:"name,omitempty"`
}

// wireMessage is the encoded form shared by all variants. Absent fields are
// dropped, never sent as null.
type wireMessage struct {
	Content    string     `json:"content,omitempty"`
	Name       string     `json:"name,omitempty"`
	Role       string     `json:"role,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

func (SystemMessage) Role() Role    { return RoleSystem }
func (UserMessage) Role() Role      { return RoleUser }
func (AssistantMessage) Role() Role { return RoleAssistant }
func (ToolMessage) Role() Role      { return RoleTool }

func (SystemMessage) isMessage()    {}
func (UserMessage) isMessage()      {}
func (AssistantMessage) isMessage() {}
func (ToolMessage) isMessage()      {}

func (m SystemMessage) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireMessage{
		Content:    m.Content,
		Name:       m.Name,
		Role:       roleLabel(m.RoleLabel, RoleSystem),
		ToolCallID: m.ToolCallID,
	})
}

func (m UserMessage) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireMessage{
		Content:    m.Content,
		Name:       m.Name,
		Role:       roleLabel(m.RoleLabel, RoleUser),
		ToolCallID: m.ToolCallID,
	})
}

func (m AssistantMessage) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireMessage{
		Content:    m.Content,
		Name:       m.Name,
		Role:       roleLabel(m.RoleLabel, RoleAssistant),
		ToolCalls:  m.ToolCalls,
		ToolCallID: m.ToolCallID,
	})
}

func (m ToolMessage) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireMessage{
		Content:    m.Content,
		Name:       m.Name,
		Role:       roleLabel(m.RoleLabel, RoleTool),
		ToolCallID: m.ToolCallID,
	})
}

func (m SystemMessage) Validate() error {
	if err := checkLabel(m.RoleLabel, RoleSystem); err != nil {
		return err
	}
	if m.Content == "" {
		return fmt.Errorf("%w: system message requires content", ErrInvalidMessage)
	}
	return nil
}

func (m UserMessage) Validate() error {
	if err := checkLabel(m.RoleLabel, RoleUser); err != nil {
		return err
	}
	if m.Content == "" {
		return fmt.Errorf("%w: user message requires content", ErrInvalidMessage)
	}
	return nil
}

func (m AssistantMessage) Validate() error {
	if err := checkLabel(m.RoleLabel, RoleAssistant); err != nil {
		return err
	}
	if m.Content == "" && len(m.ToolCalls) == 0 {
		return fmt.Errorf("%w: assistant message requires content or tool calls", ErrInvalidMessage)
	}
	for i, tc := range m.ToolCalls {
		if tc.Function.Name == "" {
			return fmt.Errorf("%w: assistant tool_calls[%d] has no function name", ErrInvalidMessage, i)
		}
	}
	return nil
}

func (m ToolMessage) Validate() error {
	if err := checkLabel(m.RoleLabel, RoleTool); err != nil {
		return err
	}
	if m.ToolCallID == "" {
		return fmt.Errorf("%w: tool message requires tool_call_id", ErrInvalidMessage)
	}
	if m.Content == "" {
		return fmt.Errorf("%w: tool message requires content", ErrInvalidMessage)
	}
	return nil
}

func roleLabel(label string, role Role) string {
	if label != "" {
		return label
	}
	return string(role)
}

// checkLabel rejects a role label that contradicts the variant, which would
// make the encoded message decode as a different variant.
func checkLabel(label string, role Role) error {
	if label != "" && label != string(role) {
		return fmt.Errorf("%w: role label %q on %s message", ErrInvalidMessage, label, role)
	}
	return nil
}

// DecodeMessage reconstructs a message variant from its encoded form,
// selecting the variant by the "role" key.
func DecodeMessage(data []byte) (Message, error) {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decoding message: %w", err)
	}

	switch Role(w.Role) {
	case RoleSystem:
		return SystemMessage{Content: w.Content, Name: w.Name, ToolCallID: w.ToolCallID}, nil
	case RoleUser:
		return UserMessage{Content: w.Content, Name: w.Name, ToolCallID: w.ToolCallID}, nil
	case RoleAssistant:
		return AssistantMessage{Content: w.Content, Name: w.Name, ToolCalls: w.ToolCalls, ToolCallID: w.ToolCallID}, nil
	case RoleTool:
		return ToolMessage{Content: w.Content, Name: w.Name, ToolCallID: w.ToolCallID}, nil
	default:
		return nil, fmt.Errorf("decoding message: unknown role %q", w.Role)
	}
}

// UnmarshalMessages decodes a JSON array of messages.
func UnmarshalMessages(data []byte) ([]Message, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decoding messages: %w", err)
	}
	msgs := make([]Message, 0, len(raw))
	for i, r := range raw {
		m, err := DecodeMessage(r)
		if err != nil {
			return nil, fmt.Errorf("messages[%d]: %w", i, err)
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// CloneMessages returns a copy of msgs that shares no memory with the input.
// Pointer variants are copied into values; a nil pointer becomes nil.
func CloneMessages(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		m = derefMessage(m)
		if am, ok := m.(AssistantMessage); ok && am.ToolCalls != nil {
			am.ToolCalls = append([]ToolCall(nil), am.ToolCalls...)
			m = am
		}
		out[i] = m
	}
	return out
}

func derefMessage(m Message) Message {
	switch v := m.(type) {
	case *SystemMessage:
		if v == nil {
			return nil
		}
		return *v
	case *UserMessage:
		if v == nil {
			return nil
		}
		return *v
	case *AssistantMessage:
		if v == nil {
			return nil
		}
		return *v
	case *ToolMessage:
		if v == nil {
			return nil
		}
		return *v
	}
	return m
}
