// Package gateway is the only component that crosses the trust boundary to
// the external generation service. Everything above it speaks chat.Message.
package gateway

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/perchlabs/wrenbot/kernel/ability"
	"github.com/perchlabs/wrenbot/kernel/chat"
)

// ErrUnavailable indicates the generation client is not configured. The
// orchestrator checks this before any turn-loop work begins.
var ErrUnavailable = errors.New("gateway: generation client unavailable")

// Declaration describes one ability for model planning.
type Declaration struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Request is the provider-agnostic generation request.
type Request struct {
	SystemInstruction string
	// History is prior context, oldest first. Prompt is the message the
	// model answers.
	History   []chat.Message
	Prompt    chat.Message
	Abilities []Declaration
}

// Usage reports token usage, best-effort.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Response is the provider-agnostic generation response.
type Response struct {
	Message  chat.Message
	Usage    Usage
	Model    string
	Provider string
}

// Generator is the external generation service abstraction.
type Generator interface {
	Name() string
	Generate(context.Context, *Request) (*Response, error)
}

// Gateway wraps a Generator behind the prompt-builder contract and bounds
// every call with a timeout.
type Gateway struct {
	gen     Generator
	timeout time.Duration
}

func New(gen Generator, timeout time.Duration) *Gateway {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Gateway{gen: gen, timeout: timeout}
}

// Available reports whether the underlying service is initialized.
func (g *Gateway) Available() bool {
	return g != nil && g.gen != nil
}

// Prompt starts a generation request for one message.
func (g *Gateway) Prompt(msg chat.Message) *Builder {
	return &Builder{gw: g, prompt: msg}
}

// Builder accumulates one generation request.
type Builder struct {
	gw          *Gateway
	prompt      chat.Message
	history     []chat.Message
	instruction string
	abilities   []Declaration
}

func (b *Builder) WithHistory(messages ...chat.Message) *Builder {
	b.history = append(b.history, messages...)
	return b
}

func (b *Builder) UsingSystemInstruction(instruction string) *Builder {
	b.instruction = instruction
	return b
}

func (b *Builder) UsingAbilities(declarations ...Declaration) *Builder {
	b.abilities = append(b.abilities, declarations...)
	return b
}

// GenerateResult submits the request. It fails deterministically with
// ErrUnavailable when no generation client is configured.
func (b *Builder) GenerateResult(ctx context.Context) (*Result, error) {
	if !b.gw.Available() {
		return nil, ErrUnavailable
	}
	ctx, cancel := context.WithTimeout(ctx, b.gw.timeout)
	defer cancel()
	resp, err := b.gw.gen.Generate(ctx, &Request{
		SystemInstruction: b.instruction,
		History:           b.history,
		Prompt:            b.prompt,
		Abilities:         b.abilities,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrUnavailable
		}
		return nil, err
	}
	if resp == nil {
		return nil, errors.New("gateway: empty generation response")
	}
	return &Result{resp: resp}, nil
}

// Result is one completed generation.
type Result struct {
	resp *Response
}

func (r *Result) ToMessage() chat.Message {
	return r.resp.Message
}

func (r *Result) ToText() string {
	return strings.TrimSpace(r.resp.Message.TextContent())
}

// HasToolCalls reports whether a generated message requests ability calls.
func HasToolCalls(msg chat.Message) bool {
	return msg.HasToolCalls()
}

// Declarations converts abilities into model-visible declarations.
func Declarations(abilities []ability.Ability) []Declaration {
	out := make([]Declaration, 0, len(abilities))
	for _, a := range abilities {
		if a == nil {
			continue
		}
		out = append(out, Declaration{
			Name:        a.Name(),
			Description: a.Description(),
			Parameters:  a.InputSchema(),
		})
	}
	return out
}
