package binding

import (
	"context"
	"sync"

	"github.com/Proton-105/tasklink-bot/internal/domain"
)

// MemoryStore keeps bindings in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	byUser map[int64]domain.Binding
	byChat map[int64]int64
	names  map[int64]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byUser: make(map[int64]domain.Binding),
		byChat: make(map[int64]int64),
		names:  make(map[int64]string),
	}
}

// SetAccountName records the account name reported by AccountName.
func (s *MemoryStore) SetAccountName(userID int64, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.names[userID] = name
}

func (s *MemoryStore) GetByUser(_ context.Context, userID int64) (domain.Binding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.byUser[userID]
	if !ok {
		return domain.Binding{}, errNotBound("user", userID)
	}
	return b, nil
}

func (s *MemoryStore) GetByChat(_ context.Context, chatID int64) (domain.Binding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	userID, ok := s.byChat[chatID]
	if !ok {
		return domain.Binding{}, errNotBound("chat", chatID)
	}
	return s.byUser[userID], nil
}

func (s *MemoryStore) Bind(_ context.Context, b domain.Binding) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if owner, ok := s.byChat[b.ChatID]; ok && owner != b.UserID {
		return errConflict(b.ChatID)
	}

	if prev, ok := s.byUser[b.UserID]; ok {
		delete(s.byChat, prev.ChatID)
	}
	s.byUser[b.UserID] = b
	s.byChat[b.ChatID] = b.UserID
	return nil
}

func (s *MemoryStore) UnbindUser(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.byUser[userID]; ok {
		delete(s.byChat, prev.ChatID)
		delete(s.byUser, userID)
	}
	return nil
}

func (s *MemoryStore) UnbindChat(_ context.Context, chatID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	userID, ok := s.byChat[chatID]
	if !ok {
		return 0, nil
	}
	delete(s.byChat, chatID)
	delete(s.byUser, userID)
	return userID, nil
}

func (s *MemoryStore) AccountName(_ context.Context, userID int64) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if name, ok := s.names[userID]; ok && name != "" {
		return name, nil
	}
	return fallbackName(userID), nil
}
