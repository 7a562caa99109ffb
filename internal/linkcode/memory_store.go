package linkcode

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps link codes in process memory.
type MemoryStore struct {
	mu       sync.Mutex
	byCode   map[string]Entry
	byUser   map[int64]string
	ttl      time.Duration
	now      func() time.Time
	generate Generator
}

// MemoryOption customizes a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock overrides the time source.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) { s.now = now }
}

// WithGenerator overrides code generation.
func WithGenerator(g Generator) MemoryOption {
	return func(s *MemoryStore) { s.generate = g }
}

// NewMemoryStore creates a store whose codes live for ttl.
func NewMemoryStore(ttl time.Duration, opts ...MemoryOption) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &MemoryStore{
		byCode:   make(map[string]Entry),
		byUser:   make(map[int64]string),
		ttl:      ttl,
		now:      time.Now,
		generate: RandomCode,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) Issue(_ context.Context, userID int64) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.byUser[userID]; ok {
		delete(s.byCode, old)
		delete(s.byUser, userID)
	}

	now := s.now()
	for attempt := 0; attempt < maxIssueAttempts; attempt++ {
		code, err := s.generate()
		if err != nil {
			return Entry{}, err
		}

		if existing, taken := s.byCode[code]; taken {
			if !now.After(existing.ExpiresAt) {
				continue
			}
			delete(s.byUser, existing.UserID)
		}

		entry := Entry{Code: code, UserID: userID, ExpiresAt: now.Add(s.ttl)}
		s.byCode[code] = entry
		s.byUser[userID] = code
		return entry, nil
	}

	return Entry{}, errExhausted()
}

func (s *MemoryStore) Consume(_ context.Context, code string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.byCode[code]
	if !ok {
		return 0, errNotFound()
	}

	s.evictLocked(entry)
	if s.now().After(entry.ExpiresAt) {
		return 0, errExpired()
	}
	return entry.UserID, nil
}

func (s *MemoryStore) Sweep(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for _, entry := range s.byCode {
		if now.After(entry.ExpiresAt) {
			s.evictLocked(entry)
			removed++
		}
	}
	return removed, nil
}

func (s *MemoryStore) Len(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byCode), nil
}

func (s *MemoryStore) evictLocked(entry Entry) {
	delete(s.byCode, entry.Code)
	if s.byUser[entry.UserID] == entry.Code {
		delete(s.byUser, entry.UserID)
	}
}
