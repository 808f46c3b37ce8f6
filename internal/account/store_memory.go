package account

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"provisioner/internal/sentinel"
)

// InMemoryStore stores accounts in memory for tests and local development.
type InMemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]*Account // keyed by oauth_sub
}

// NewInMemory constructs an empty in-memory account store.
func NewInMemory() *InMemoryStore {
	return &InMemoryStore{accounts: make(map[string]*Account)}
}

func (s *InMemoryStore) FindByOAuthSub(_ context.Context, oauthSub string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if acct, ok := s.accounts[oauthSub]; ok {
		return acct, nil
	}
	return nil, fmt.Errorf("account not found: %w", sentinel.ErrNotFound)
}

func (s *InMemoryStore) FindByEmail(_ context.Context, email string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, acct := range s.accounts {
		if strings.EqualFold(acct.Email, email) {
			return acct, nil
		}
	}
	return nil, fmt.Errorf("account not found: %w", sentinel.ErrNotFound)
}

// Insert adds an account, enforcing uniqueness on oauth_sub and email under
// a single lock so the check-then-act is atomic within this store.
func (s *InMemoryStore) Insert(_ context.Context, acct Account) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[acct.OAuthSub]; ok {
		return nil, fmt.Errorf("account %q: %w", acct.OAuthSub, sentinel.ErrAlreadyExists)
	}
	for _, existing := range s.accounts {
		if strings.EqualFold(existing.Email, acct.Email) {
			return nil, fmt.Errorf("account email %q: %w", acct.Email, sentinel.ErrAlreadyExists)
		}
	}

	s.accounts[acct.OAuthSub] = &acct
	return &acct, nil
}
