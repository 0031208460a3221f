package chat

import (
	"fmt"
	"strings"
)

// Role identifies message author type.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// ToolCall is a model-emitted ability invocation request.
type ToolCall struct {
	// ID is unique within the message that carries the call.
	ID   string
	Name string
	Args map[string]any
}

// ToolResult answers one earlier ToolCall within the same run.
type ToolResult struct {
	CallID string
	Name   string
	// Payload is a human-readable string or a JSON-serializable value.
	Payload any
}

// Part is a tagged variant over text, tool-call and tool-result content.
// Exactly one field is set.
type Part struct {
	Text       string
	ToolCall   *ToolCall
	ToolResult *ToolResult
}

// Message is one conversational turn.
type Message struct {
	Role  Role
	Parts []Part
}

// Text creates a plain text message.
func Text(role Role, text string) Message {
	return Message{Role: role, Parts: []Part{{Text: text}}}
}

// ToolResultMessage wraps one ability result as a user-role message,
// one message per result.
func ToolResultMessage(call ToolCall, payload any) Message {
	return Message{
		Role: RoleUser,
		Parts: []Part{{
			ToolResult: &ToolResult{CallID: call.ID, Name: call.Name, Payload: payload},
		}},
	}
}

// TextContent joins text parts in order.
func (m Message) TextContent() string {
	parts := make([]string, 0, len(m.Parts))
	for _, p := range m.Parts {
		if strings.TrimSpace(p.Text) != "" {
			parts = append(parts, p.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// HasToolCalls reports whether the message carries at least one tool call.
func (m Message) HasToolCalls() bool {
	for _, p := range m.Parts {
		if p.ToolCall != nil {
			return true
		}
	}
	return false
}

// ToolCalls returns tool-call parts in part order.
func (m Message) ToolCalls() []ToolCall {
	out := make([]ToolCall, 0, len(m.Parts))
	for _, p := range m.Parts {
		if p.ToolCall != nil {
			out = append(out, *p.ToolCall)
		}
	}
	return out
}

// Validate checks role/part-kind consistency: model messages carry text
// and/or tool calls, user messages carry text and/or tool results.
func (m Message) Validate() error {
	switch m.Role {
	case RoleUser, RoleModel:
	default:
		return fmt.Errorf("chat: unknown role %q", string(m.Role))
	}
	if len(m.Parts) == 0 {
		return fmt.Errorf("chat: message has no parts")
	}
	for i, p := range m.Parts {
		set := 0
		if p.Text != "" {
			set++
		}
		if p.ToolCall != nil {
			set++
		}
		if p.ToolResult != nil {
			set++
		}
		if set != 1 {
			return fmt.Errorf("chat: part %d must carry exactly one kind", i)
		}
		if p.ToolCall != nil && m.Role != RoleModel {
			return fmt.Errorf("chat: part %d: tool call on %q message", i, string(m.Role))
		}
		if p.ToolResult != nil && m.Role != RoleUser {
			return fmt.Errorf("chat: part %d: tool result on %q message", i, string(m.Role))
		}
	}
	return nil
}
