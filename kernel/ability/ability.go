package ability

import (
	"context"

	"github.com/perchlabs/wrenbot/kernel/identity"
)

// Ability is a named, schema-described, permission-gated operation exposed
// to the model. Implementations are registered once at startup and must be
// safe for concurrent use afterwards.
type Ability interface {
	// Name is globally unique and namespaced, e.g. "wrenbot/create-post".
	Name() string
	// Label is the short human-readable name.
	Label() string
	Description() string
	// InputSchema is a JSON-Schema-like object schema for Execute arguments.
	InputSchema() map[string]any
	// CanInvoke reports whether the acting identity may invoke the ability.
	CanInvoke(identity.Identity) bool
	// Execute runs the operation. The returned payload is a human-readable
	// string or a JSON-serializable value.
	Execute(context.Context, map[string]any) (any, error)
}
