package auth

import (
	"context"
	"sync"
)

// MemoryStorage keeps users in process memory.
type MemoryStorage struct {
	mu      sync.RWMutex
	byEmail map[string]*User
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{byEmail: make(map[string]*User)}
}

func (s *MemoryStorage) CreateUser(_ context.Context, user *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byEmail[user.Email]; ok {
		return ErrEmailAlreadyExists
	}
	u := *user
	s.byEmail[user.Email] = &u
	return nil
}

func (s *MemoryStorage) GetUserByEmail(_ context.Context, email string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byEmail[email]
	if !ok {
		return nil, ErrUserNotFound
	}
	out := *u
	return &out, nil
}
