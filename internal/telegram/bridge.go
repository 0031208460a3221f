// Package telegram bridges webhook updates into conversation runs and sends
// the answers back through the bot API.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/perchlabs/wrenbot/kernel/engine"
	"github.com/perchlabs/wrenbot/kernel/session"
	"github.com/perchlabs/wrenbot/kernel/session/sqlitestore"
)

// MaxMessageRunes is the per-message send limit. Telegram caps messages at
// 4096 characters; staying under it leaves headroom for encoding overhead.
const MaxMessageRunes = 4000

const welcomeReply = "Hi! I'm Wrenbot, your site assistant. How can I help you today?"

// ChatEngine runs one conversation turn loop.
type ChatEngine interface {
	ProcessChat(ctx context.Context, req engine.ChatRequest) (*engine.ChatResult, error)
}

// Sender delivers messages to a chat.
type Sender interface {
	SendMessage(chatID int64, text string) error
}

// AccessStore persists pairing state for senders outside the static
// allow-list.
type AccessStore interface {
	AllowedSenders(ctx context.Context) ([]int64, error)
	AddAllowedSender(ctx context.Context, senderID int64) error
	RecordPending(ctx context.Context, p sqlitestore.Pending) error
}

// Config assembles a Bridge.
type Config struct {
	Engine   ChatEngine
	Sender   Sender
	Sessions session.Store
	Access   AccessStore
	// AllowedUsers holds "@username" or numeric-id entries. Empty means
	// every sender is allowed.
	AllowedUsers []string
	// PairingMode auto-authorizes unknown senders instead of parking
	// them as pending connections.
	PairingMode bool
	Logger      *slog.Logger
}

// Bridge handles one Telegram update at a time per chat; messages for
// distinct chats proceed concurrently.
type Bridge struct {
	engine   ChatEngine
	sender   Sender
	sessions session.Store
	access   AccessStore
	allowed  []string
	pairing  bool
	log      *slog.Logger

	mu     sync.Mutex
	leases map[int64]*sync.Mutex
}

func NewBridge(cfg Config) (*Bridge, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("telegram: engine is required")
	}
	if cfg.Sender == nil {
		return nil, fmt.Errorf("telegram: sender is required")
	}
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("telegram: session store is required")
	}
	if cfg.Access == nil {
		return nil, fmt.Errorf("telegram: access store is required")
	}
	allowed := make([]string, 0, len(cfg.AllowedUsers))
	for _, entry := range cfg.AllowedUsers {
		entry = strings.TrimSpace(entry)
		if entry != "" {
			allowed = append(allowed, entry)
		}
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	if len(allowed) == 0 {
		log.Warn("telegram allow-list is empty; all senders are admitted until one is approved")
	}
	return &Bridge{
		engine:   cfg.Engine,
		sender:   cfg.Sender,
		sessions: cfg.Sessions,
		access:   cfg.Access,
		allowed:  allowed,
		pairing:  cfg.PairingMode,
		log:      log,
		leases:   make(map[int64]*sync.Mutex),
	}, nil
}

// HandleUpdate processes one webhook update. Delivery failures are logged,
// never returned: a webhook retry would replay the whole conversation turn.
func (b *Bridge) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.Text == "" {
		return
	}
	chatID := msg.Chat.ID

	if strings.HasPrefix(msg.Text, "/start") {
		b.send(chatID, welcomeReply)
		return
	}

	if !b.isAllowed(ctx, msg.From) {
		if msg.From == nil {
			b.log.Warn("ignoring message without sender identity", "chat", chatID)
			return
		}
		if b.pairing {
			if err := b.access.AddAllowedSender(ctx, msg.From.ID); err != nil {
				b.log.Warn("pairing authorization failed", "sender", msg.From.ID, "err", err)
			} else {
				b.log.Info("pairing mode authorized sender", "sender", msg.From.ID)
			}
		} else {
			if err := b.access.RecordPending(ctx, sqlitestore.Pending{
				SenderID:  msg.From.ID,
				Username:  msg.From.UserName,
				FirstName: msg.From.FirstName,
				LastName:  msg.From.LastName,
			}); err != nil {
				b.log.Warn("recording pending connection failed", "sender", msg.From.ID, "err", err)
			}
			b.send(chatID, fmt.Sprintf(
				"Hi! I'm Wrenbot. You are not authorized to use me yet. Please ask your administrator to approve your connection (ID: %d).",
				msg.From.ID,
			))
			return
		}
	}

	lease := b.lease(chatID)
	lease.Lock()
	defer lease.Unlock()

	key := session.Key(chatID)
	history, err := b.sessions.LoadHistory(ctx, key)
	if err != nil {
		b.log.Warn("loading history failed; starting fresh", "chat", chatID, "err", err)
		history = nil
	}

	result, err := b.engine.ProcessChat(ctx, engine.ChatRequest{
		Message: msg.Text,
		History: history,
		// Identity stays nil: the channel has no site principal, so
		// the run falls back to the administrator.
	})
	if err != nil {
		b.send(chatID, "Error: "+err.Error())
		return
	}

	b.send(chatID, result.Response)

	if err := b.sessions.SaveHistory(ctx, key, result.History); err != nil {
		b.log.Warn("saving history failed", "chat", chatID, "err", err)
	}
}

// isAllowed checks the static allow-list plus dynamically approved senders.
// An empty allow-list admits everyone; once any entry exists, a message
// without sender identity is denied.
func (b *Bridge) isAllowed(ctx context.Context, from *tgbotapi.User) bool {
	approved, err := b.access.AllowedSenders(ctx)
	if err != nil {
		b.log.Warn("loading approved senders failed", "err", err)
	}
	if len(b.allowed) == 0 && len(approved) == 0 {
		return true
	}
	if from == nil {
		return false
	}
	for _, id := range approved {
		if id == from.ID {
			return true
		}
	}
	username := ""
	if from.UserName != "" {
		username = "@" + from.UserName
	}
	senderID := strconv.FormatInt(from.ID, 10)
	for _, entry := range b.allowed {
		if entry == username || entry == senderID {
			return true
		}
	}
	return false
}

func (b *Bridge) lease(chatID int64) *sync.Mutex {
	b.mu.Lock()
	defer b.mu.Unlock()
	l, ok := b.leases[chatID]
	if !ok {
		l = &sync.Mutex{}
		b.leases[chatID] = l
	}
	return l
}

func (b *Bridge) send(chatID int64, text string) {
	for _, chunk := range splitMessage(text, MaxMessageRunes) {
		if err := b.sender.SendMessage(chatID, chunk); err != nil {
			b.log.Warn("sending message failed", "chat", chatID, "err", err)
		}
	}
}

// splitMessage chunks text on rune boundaries so multibyte characters never
// straddle two messages.
func splitMessage(text string, limit int) []string {
	runes := []rune(text)
	if len(runes) <= limit {
		return []string{text}
	}
	var out []string
	for len(runes) > limit {
		out = append(out, string(runes[:limit]))
		runes = runes[limit:]
	}
	if len(runes) > 0 {
		out = append(out, string(runes))
	}
	return out
}
