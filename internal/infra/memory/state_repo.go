package memory

import (
	"context"
	"sync"
	"time"

	"telegram-api-relay/internal/domain"
	"telegram-api-relay/internal/domain/ports/repository"
)

var _ repository.StateRepository = (*StateRepo)(nil)

type stateEntry struct {
	state     repository.ConversationState
	expiresAt time.Time
}

// StateRepo holds pending menu choices with a fixed ttl.
type StateRepo struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[int64]stateEntry
}

func NewStateRepo(ttl time.Duration) *StateRepo {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &StateRepo{ttl: ttl, now: time.Now, entries: make(map[int64]stateEntry)}
}

func (s *StateRepo) SetState(_ context.Context, tgID int64, state *repository.ConversationState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := repository.ConversationState{Step: state.Step, Data: make(map[string]string, len(state.Data))}
	for k, v := range state.Data {
		cp.Data[k] = v
	}
	s.entries[tgID] = stateEntry{state: cp, expiresAt: s.now().Add(s.ttl)}
	return nil
}

func (s *StateRepo) GetState(_ context.Context, tgID int64) (*repository.ConversationState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[tgID]
	if !ok || !s.now().Before(e.expiresAt) {
		delete(s.entries, tgID)
		return nil, domain.ErrNotFound
	}
	st := e.state
	return &st, nil
}

func (s *StateRepo) ClearState(_ context.Context, tgID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, tgID)
	return nil
}

func (s *StateRepo) Sweep(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, e := range s.entries {
		if !now.Before(e.expiresAt) {
			delete(s.entries, id)
			n++
		}
	}
	return n, nil
}
