package engine

import (
	"context"
	"fmt"

	"github.com/perchlabs/wrenbot/kernel/chat"
	"github.com/perchlabs/wrenbot/kernel/gateway"
)

// scriptedGenerator replays canned responses in order and records every
// request it sees.
type scriptedGenerator struct {
	responses []chat.Message
	requests  []*gateway.Request
}

func (g *scriptedGenerator) Name() string {
	return "scripted"
}

func (g *scriptedGenerator) Generate(ctx context.Context, req *gateway.Request) (*gateway.Response, error) {
	g.requests = append(g.requests, req)
	if len(g.responses) == 0 {
		return nil, fmt.Errorf("scripted generator: out of responses")
	}
	next := g.responses[0]
	g.responses = g.responses[1:]
	return &gateway.Response{Message: next, Model: "scripted", Provider: "test"}, nil
}

// loopingGenerator always requests another tool call; it never converges.
type loopingGenerator struct {
	calls int
}

func (g *loopingGenerator) Name() string {
	return "looping"
}

func (g *loopingGenerator) Generate(ctx context.Context, req *gateway.Request) (*gateway.Response, error) {
	g.calls++
	return &gateway.Response{
		Message: chat.Message{Role: chat.RoleModel, Parts: []chat.Part{
			{Text: fmt.Sprintf("still working (%d)", g.calls)},
			{ToolCall: &chat.ToolCall{
				ID:   fmt.Sprintf("c%d", g.calls),
				Name: "wrenbot/search-posts",
				Args: map[string]any{"search": "hello"},
			}},
		}},
	}, nil
}

func modelText(text string) chat.Message {
	return chat.Text(chat.RoleModel, text)
}

func modelToolCalls(text string, calls ...chat.ToolCall) chat.Message {
	msg := chat.Message{Role: chat.RoleModel}
	if text != "" {
		msg.Parts = append(msg.Parts, chat.Part{Text: text})
	}
	for i := range calls {
		call := calls[i]
		msg.Parts = append(msg.Parts, chat.Part{ToolCall: &call})
	}
	return msg
}
