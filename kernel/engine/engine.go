// Package engine drives the bounded tool-calling conversation loop: it
// alternates model generation and ability execution until the model settles
// on a plain-text answer or the turn budget runs out.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/perchlabs/wrenbot/kernel/ability"
	"github.com/perchlabs/wrenbot/kernel/chat"
	"github.com/perchlabs/wrenbot/kernel/gateway"
	"github.com/perchlabs/wrenbot/kernel/identity"
	"github.com/perchlabs/wrenbot/kernel/permission"
)

const (
	// DefaultMaxTurns bounds generation-after-tool-execution cycles. It
	// exists to cap cost and stop call/response oscillation when the model
	// never converges to a plain-text answer.
	DefaultMaxTurns = 5

	defaultAbilityTimeout = 30 * time.Second
)

// Config configures the engine.
type Config struct {
	Gateway  *gateway.Gateway
	Registry *ability.Registry
	// MaxTurns defaults to DefaultMaxTurns when zero.
	MaxTurns int
	// AbilityTimeout bounds one ability execution.
	AbilityTimeout time.Duration
	Logger         *slog.Logger
}

// Engine orchestrates one conversation run at a time per call; it holds no
// per-run state and is safe for concurrent use.
type Engine struct {
	gw             *gateway.Gateway
	registry       *ability.Registry
	maxTurns       int
	abilityTimeout time.Duration
	log            *slog.Logger
}

func New(cfg Config) (*Engine, error) {
	if cfg.Gateway == nil {
		return nil, fmt.Errorf("engine: gateway is required")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("engine: registry is required")
	}
	maxTurns := cfg.MaxTurns
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	abilityTimeout := cfg.AbilityTimeout
	if abilityTimeout <= 0 {
		abilityTimeout = defaultAbilityTimeout
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		gw:             cfg.Gateway,
		registry:       cfg.Registry,
		maxTurns:       maxTurns,
		abilityTimeout: abilityTimeout,
		log:            log,
	}, nil
}

// ChatRequest is one orchestration run input. History is copied in; the
// caller keeps ownership of persistence.
type ChatRequest struct {
	Message string
	History []chat.Message
	// Identity is the acting principal. Nil falls back to the
	// administrator identity, which is audit-logged.
	Identity *identity.Identity
	// PostID, when set, is injected into the system instructions as the
	// object the user is currently viewing.
	PostID int64
}

// ChatResult is one orchestration run output.
type ChatResult struct {
	Response        string
	ActionPerformed bool
	History         []chat.Message
}

// ProcessChat runs the bounded turn loop. Generation calls and ability
// executions are awaited in strict sequence; ability errors never abort the
// run, they become tool-result payloads the model can react to.
func (e *Engine) ProcessChat(ctx context.Context, req ChatRequest) (*ChatResult, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, ErrEmptyPrompt
	}
	if !e.gw.Available() {
		return nil, ErrGatewayUnavailable
	}

	actingIdentity := e.resolveIdentity(req.Identity)
	allowed, decisions := permission.AllowedFor(actingIdentity, e.registry.ListAll())
	e.log.Debug("abilities filtered",
		"identity", actingIdentity.Name,
		"decisions", decisionSummary(decisions),
	)

	allowedByName := make(map[string]ability.Ability, len(allowed))
	for _, a := range allowed {
		allowedByName[a.Name()] = a
	}
	declarations := gateway.Declarations(allowed)
	instruction := systemInstruction(allowed, req.PostID)

	history := append([]chat.Message(nil), req.History...)
	prompt := chat.Text(chat.RoleUser, req.Message)

	result, err := e.gw.Prompt(prompt).
		WithHistory(history...).
		UsingSystemInstruction(instruction).
		UsingAbilities(declarations...).
		GenerateResult(ctx)
	if err != nil {
		return nil, e.gatewayError(err)
	}
	history = append(history, prompt)
	response := result.ToMessage()

	turns := 0
	actionPerformed := false

	for {
		if !gateway.HasToolCalls(response) || turns >= e.maxTurns {
			// Turn-budget exhaustion is not an error; the last
			// generated text is still the answer.
			history = append(history, response)
			break
		}
		turns++
		history = append(history, response)

		results := e.executeCalls(ctx, response, allowedByName)
		if len(results) == 0 {
			// Every call was filtered out; terminating here is a
			// policy outcome, not a failure.
			break
		}
		actionPerformed = true
		history = append(history, results...)

		// The last tool result becomes the next prompt; the other
		// results ride along as history context.
		next := history[len(history)-1]
		prior := history[:len(history)-1]

		result, err = e.gw.Prompt(next).
			WithHistory(prior...).
			UsingSystemInstruction(instruction).
			UsingAbilities(declarations...).
			GenerateResult(ctx)
		if err != nil {
			return nil, e.gatewayError(err)
		}
		response = result.ToMessage()
	}

	return &ChatResult{
		Response:        result.ToText(),
		ActionPerformed: actionPerformed,
		History:         history,
	}, nil
}

// resolveIdentity applies the administrator fallback for anonymous runs.
// Ability execution needs a principal for permission evaluation even on
// channels without authentication, so this broadens scope and must leave an
// audit trail every time it fires.
func (e *Engine) resolveIdentity(id *identity.Identity) identity.Identity {
	if id != nil {
		return *id
	}
	admin := identity.Administrator()
	e.log.Warn("no authenticated identity; falling back to administrator principal",
		"identity", admin.Name,
	)
	return admin
}

// executeCalls runs every permitted tool call of one response in part order.
// Out-of-scope calls are skipped, never executed. Each result becomes its
// own user-role message.
func (e *Engine) executeCalls(ctx context.Context, response chat.Message, allowed map[string]ability.Ability) []chat.Message {
	var results []chat.Message
	for _, call := range response.ToolCalls() {
		a, ok := allowed[call.Name]
		if !ok {
			e.log.Warn("skipping tool call outside permitted set", "ability", call.Name)
			continue
		}
		payload := e.executeOne(ctx, a, call)
		results = append(results, chat.ToolResultMessage(call, payload))
	}
	return results
}

func (e *Engine) executeOne(ctx context.Context, a ability.Ability, call chat.ToolCall) any {
	execCtx, cancel := context.WithTimeout(ctx, e.abilityTimeout)
	defer cancel()

	start := time.Now()
	payload, err := a.Execute(execCtx, call.Args)
	if err != nil {
		e.log.Warn("ability execution failed",
			"ability", call.Name,
			"elapsed", time.Since(start),
			"err", err,
		)
		return fmt.Sprintf("Error executing %s: %v", call.Name, err)
	}
	e.log.Info("ability executed", "ability", call.Name, "elapsed", time.Since(start))
	return payload
}

func (e *Engine) gatewayError(err error) error {
	if err == gateway.ErrUnavailable {
		return ErrGatewayUnavailable
	}
	return fmt.Errorf("engine: generation failed: %w", err)
}

func systemInstruction(allowed []ability.Ability, postID int64) string {
	var b strings.Builder
	b.WriteString("You are Wrenbot, a powerful site assistant. ")
	b.WriteString("You HAVE ACCESS to tools (abilities) that allow you to manage the site. ")
	if len(allowed) > 0 {
		names := make([]string, 0, len(allowed))
		for _, a := range allowed {
			names = append(names, a.Name())
		}
		b.WriteString("Your available tools are: " + strings.Join(names, ", ") + ". ")
	}
	b.WriteString("NEVER say you cannot create or edit posts; instead, always check your available tools and use them. ")
	if postID > 0 {
		fmt.Fprintf(&b, "The user is currently viewing/editing post ID %d. ", postID)
	}
	b.WriteString("Use your abilities to fulfill the user's request. ")
	b.WriteString("For example, use 'wrenbot/create-post' to create a new post. ")
	b.WriteString("If you need a post ID but don't have it, use the 'wrenbot/search-posts' ability to find it by title. ")
	b.WriteString("IMPORTANT: When you call a function, the result will be provided to you in the next turn. ")
	b.WriteString("Use that result to confirm the action to the user.")
	return b.String()
}

func decisionSummary(decisions []permission.Decision) string {
	parts := make([]string, 0, len(decisions))
	for _, d := range decisions {
		parts = append(parts, d.String())
	}
	return strings.Join(parts, ", ")
}
