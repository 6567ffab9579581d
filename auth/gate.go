package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/samber/oops"
)

var ErrUnauthorized = errors.New("not authorized")

// AccountChecker reports whether an account still exists.
type AccountChecker interface {
	AccountExists(ctx context.Context, id string) (bool, error)
}

// Identity is what the gate attaches to an authenticated request.
type Identity struct {
	AccountID string
	Token     string
}

type identityKey struct{}

// IdentityFromContext returns the identity stored by RequireAuth.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// Gate resolves a request's session to an existing account.
type Gate struct {
	cookies  *CookieCodec
	sessions Registry
	accounts AccountChecker
}

func NewGate(cookies *CookieCodec, sessions Registry, accounts AccountChecker) *Gate {
	return &Gate{cookies: cookies, sessions: sessions, accounts: accounts}
}

// Authenticate returns the identity behind r's session token. It fails with
// ErrUnauthorized when the token is missing, unknown or expired, or when the
// account it points to no longer exists.
func (g *Gate) Authenticate(r *http.Request) (Identity, error) {
	ctx := r.Context()

	token, err := g.cookies.TokenFromRequest(r)
	if err != nil {
		return Identity{}, ErrUnauthorized
	}

	accountID, err := g.sessions.Resolve(ctx, token)
	if errors.Is(err, ErrSessionNotFound) {
		return Identity{}, ErrUnauthorized
	}
	if err != nil {
		return Identity{}, oops.In("gate").Wrapf(err, "resolving session")
	}

	// a session can outlive its account
	ok, err := g.accounts.AccountExists(ctx, accountID)
	if err != nil {
		return Identity{}, oops.In("gate").With("account_id", accountID).Wrapf(err, "checking account")
	}
	if !ok {
		return Identity{}, ErrUnauthorized
	}

	return Identity{AccountID: accountID, Token: token}, nil
}

// RequireAuth only lets authenticated requests reach next.
func (g *Gate) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := g.Authenticate(r)
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			if errors.Is(err, ErrUnauthorized) {
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]string{"code": "NOT_AUTHORIZED", "message": err.Error()})
				return
			}
			slog.ErrorContext(r.Context(), "authentication failed", "error", err)
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(map[string]string{"code": "INTERNAL_ERROR", "message": "internal error"})
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}
