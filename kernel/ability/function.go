package ability

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/perchlabs/wrenbot/kernel/identity"
)

// Handler is a typed function ability handler.
type Handler[TArgs any] func(context.Context, TArgs) (any, error)

// Config describes one function-backed ability.
type Config struct {
	Name        string
	Label       string
	Description string
	// CanInvoke gates the ability on the acting identity. Nil denies all.
	CanInvoke func(identity.Identity) bool
}

type functionAbility[TArgs any] struct {
	cfg     Config
	schema  map[string]any
	handler Handler[TArgs]
}

// NewFunction creates a typed function-backed ability. The input schema is
// derived from TArgs.
func NewFunction[TArgs any](cfg Config, handler Handler[TArgs]) (Ability, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("ability: name is required")
	}
	if handler == nil {
		return nil, fmt.Errorf("ability: handler is nil")
	}
	return &functionAbility[TArgs]{
		cfg:     cfg,
		schema:  schemaForType[TArgs](),
		handler: handler,
	}, nil
}

func (a *functionAbility[TArgs]) Name() string        { return a.cfg.Name }
func (a *functionAbility[TArgs]) Label() string       { return a.cfg.Label }
func (a *functionAbility[TArgs]) Description() string { return a.cfg.Description }

func (a *functionAbility[TArgs]) InputSchema() map[string]any {
	return a.schema
}

func (a *functionAbility[TArgs]) CanInvoke(id identity.Identity) bool {
	if a.cfg.CanInvoke == nil {
		return false
	}
	return a.cfg.CanInvoke(id)
}

func (a *functionAbility[TArgs]) Execute(ctx context.Context, args map[string]any) (any, error) {
	if err := ValidateArgs(a.schema, args); err != nil {
		return nil, fmt.Errorf("ability: %q: %w", a.cfg.Name, err)
	}
	var typedArgs TArgs
	if err := convertViaJSON(args, &typedArgs); err != nil {
		return nil, fmt.Errorf("ability: decode args for %q: %w", a.cfg.Name, err)
	}
	return a.handler(ctx, typedArgs)
}

func convertViaJSON(in any, out any) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
