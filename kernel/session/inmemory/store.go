package inmemory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/perchlabs/wrenbot/kernel/chat"
	"github.com/perchlabs/wrenbot/kernel/session"
)

type entry struct {
	history []chat.Message
	savedAt time.Time
}

// Store is a thread-safe in-memory history store. Expiry is evaluated lazily
// on load.
type Store struct {
	mu   sync.RWMutex
	data map[string]*entry
	now  func() time.Time
}

func New() *Store {
	return &Store{data: make(map[string]*entry), now: time.Now}
}

func (s *Store) LoadHistory(ctx context.Context, key string) ([]chat.Message, error) {
	_ = ctx
	if key == "" {
		return nil, fmt.Errorf("session: key is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.data[key]
	if !ok {
		return nil, nil
	}
	if s.now().Sub(e.savedAt) > session.TTL {
		delete(s.data, key)
		return nil, nil
	}
	return append([]chat.Message(nil), e.history...), nil
}

func (s *Store) SaveHistory(ctx context.Context, key string, history []chat.Message) error {
	_ = ctx
	if key == "" {
		return fmt.Errorf("session: key is required")
	}
	trimmed := session.Trim(history)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = &entry{
		history: append([]chat.Message(nil), trimmed...),
		savedAt: s.now(),
	}
	return nil
}
