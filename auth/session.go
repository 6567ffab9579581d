package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/samber/oops"
)

const (
	// StoreTTL is how long the backing store keeps a session entry.
	StoreTTL = 260 * time.Second
	// CookieMaxAge is the lifetime of the session cookie on the client.
	CookieMaxAge = 8 * time.Hour

	sessionTokenBytes = 32
)

var ErrSessionNotFound = errors.New("session not found")

// Registry maps opaque session tokens to account ids.
type Registry interface {
	// Create starts a session for accountID and returns its token.
	Create(ctx context.Context, accountID string) (string, error)
	// Resolve returns the account id a live session belongs to, or
	// ErrSessionNotFound.
	Resolve(ctx context.Context, token string) (string, error)
	// Destroy ends a session. Destroying an unknown token is not an error.
	Destroy(ctx context.Context, token string) error
}

// Session is the record a registry keeps for a token. Only the token's hash
// is persisted.
type Session struct {
	AccountID string    `json:"account_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IsExpiredAt reports whether the session is no longer valid at t.
func (s Session) IsExpiredAt(t time.Time) bool {
	return !t.Before(s.ExpiresAt)
}

// EffectiveLifetime is the shorter of the store TTL and the cookie max age.
// A session cannot outlive either of them.
func EffectiveLifetime(storeTTL, cookieMaxAge time.Duration) time.Duration {
	return min(storeTTL, cookieMaxAge)
}

func newSessionToken() (string, error) {
	b := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", oops.In("session").With("requested_bytes", sessionTokenBytes).Wrap(err)
	}
	return hex.EncodeToString(b), nil
}

func hashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}
