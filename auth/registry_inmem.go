package auth

import (
	"context"
	"sync"
	"time"
)

type sessionRegistry struct {
	mu       sync.Mutex
	ttl      time.Duration
	now      func() time.Time
	sessions map[string]Session
}

// NewSessionRegistry returns an in-process Registry. Sessions live for ttl.
func NewSessionRegistry(ttl time.Duration) Registry {
	return &sessionRegistry{ttl: ttl, now: time.Now, sessions: map[string]Session{}}
}

func (r *sessionRegistry) Create(_ context.Context, accountID string) (string, error) {
	token, err := newSessionToken()
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[hashToken(token)] = Session{AccountID: accountID, ExpiresAt: r.now().Add(r.ttl)}
	return token, nil
}

func (r *sessionRegistry) Resolve(_ context.Context, token string) (string, error) {
	key := hashToken(token)

	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[key]
	if !ok {
		return "", ErrSessionNotFound
	}
	if s.IsExpiredAt(r.now()) {
		delete(r.sessions, key)
		return "", ErrSessionNotFound
	}
	return s.AccountID, nil
}

func (r *sessionRegistry) Destroy(_ context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, hashToken(token))
	return nil
}
