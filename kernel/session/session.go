// Package session persists per-channel conversation history with a bounded
// window and an idle expiry.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/perchlabs/wrenbot/kernel/chat"
)

const (
	// MaxMessages caps a stored history window. Older messages fall off
	// the front so the window never grows past the cap.
	MaxMessages = 20

	// TTL is how long an idle history survives before a load treats the
	// conversation as fresh.
	TTL = time.Hour
)

// Key derives the history key for a chat channel.
func Key(chatID int64) string {
	return fmt.Sprintf("history_%d", chatID)
}

// Store provides history persistence. LoadHistory returns an empty history
// (not an error) for unknown or expired keys.
type Store interface {
	LoadHistory(ctx context.Context, key string) ([]chat.Message, error)
	SaveHistory(ctx context.Context, key string, history []chat.Message) error
}

// Trim bounds a history to the newest MaxMessages entries.
func Trim(history []chat.Message) []chat.Message {
	if len(history) <= MaxMessages {
		return history
	}
	return history[len(history)-MaxMessages:]
}
