package engine

import "errors"

var (
	// ErrEmptyPrompt is a user error, surfaced verbatim by channel adapters.
	ErrEmptyPrompt = errors.New("engine: message is empty")
	// ErrGatewayUnavailable is configuration-fatal and surfaced as a
	// generic service error. It is checked before any turn-loop work.
	ErrGatewayUnavailable = errors.New("engine: generation service unavailable")
)
