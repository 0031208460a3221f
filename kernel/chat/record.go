package chat

import (
	"fmt"
)

// Plain-data message codec. Stored and inbound history entries are untrusted:
// entries that fail shape validation are dropped, never fatal.

// ToMap converts a message into a plain-data record suitable for JSON
// transport and session storage.
func (m Message) ToMap() map[string]any {
	parts := make([]any, 0, len(m.Parts))
	for _, p := range m.Parts {
		switch {
		case p.ToolCall != nil:
			parts = append(parts, map[string]any{
				"tool_call": map[string]any{
					"id":   p.ToolCall.ID,
					"name": p.ToolCall.Name,
					"args": p.ToolCall.Args,
				},
			})
		case p.ToolResult != nil:
			parts = append(parts, map[string]any{
				"tool_result": map[string]any{
					"call_id": p.ToolResult.CallID,
					"name":    p.ToolResult.Name,
					"payload": p.ToolResult.Payload,
				},
			})
		default:
			parts = append(parts, map[string]any{"text": p.Text})
		}
	}
	return map[string]any{
		"role":  string(m.Role),
		"parts": parts,
	}
}

// MessageFromMap reconstructs and validates one message from a plain-data
// record.
func MessageFromMap(raw map[string]any) (Message, error) {
	role, _ := raw["role"].(string)
	rawParts, ok := raw["parts"].([]any)
	if !ok {
		return Message{}, fmt.Errorf("chat: record has no parts")
	}
	msg := Message{Role: Role(role), Parts: make([]Part, 0, len(rawParts))}
	for i, one := range rawParts {
		entry, ok := one.(map[string]any)
		if !ok {
			return Message{}, fmt.Errorf("chat: part %d is not an object", i)
		}
		part, err := partFromMap(entry)
		if err != nil {
			return Message{}, fmt.Errorf("chat: part %d: %w", i, err)
		}
		msg.Parts = append(msg.Parts, part)
	}
	if err := msg.Validate(); err != nil {
		return Message{}, err
	}
	return msg, nil
}

func partFromMap(entry map[string]any) (Part, error) {
	if text, ok := entry["text"].(string); ok {
		return Part{Text: text}, nil
	}
	if rawCall, ok := entry["tool_call"].(map[string]any); ok {
		name, _ := rawCall["name"].(string)
		if name == "" {
			return Part{}, fmt.Errorf("tool call has no name")
		}
		id, _ := rawCall["id"].(string)
		args, _ := rawCall["args"].(map[string]any)
		return Part{ToolCall: &ToolCall{ID: id, Name: name, Args: args}}, nil
	}
	if rawResult, ok := entry["tool_result"].(map[string]any); ok {
		name, _ := rawResult["name"].(string)
		callID, _ := rawResult["call_id"].(string)
		if name == "" && callID == "" {
			return Part{}, fmt.Errorf("tool result has no name or call id")
		}
		return Part{ToolResult: &ToolResult{
			CallID:  callID,
			Name:    name,
			Payload: rawResult["payload"],
		}}, nil
	}
	return Part{}, fmt.Errorf("unknown part kind")
}

// HistoryFromMaps converts untrusted plain-data records into validated
// messages. Malformed entries are skipped; valid entries keep their order.
// The number of dropped entries is returned for caller-side logging.
func HistoryFromMaps(raw []map[string]any) ([]Message, int) {
	out := make([]Message, 0, len(raw))
	dropped := 0
	for _, one := range raw {
		msg, err := MessageFromMap(one)
		if err != nil {
			dropped++
			continue
		}
		out = append(out, msg)
	}
	return out, dropped
}

// HistoryToMaps converts messages into plain-data records in order.
func HistoryToMaps(history []Message) []map[string]any {
	out := make([]map[string]any, 0, len(history))
	for _, m := range history {
		out = append(out, m.ToMap())
	}
	return out
}
