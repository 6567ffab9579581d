package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAccounts struct {
	existing map[string]bool
	err      error
}

func (f fakeAccounts) AccountExists(_ context.Context, id string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.existing[id], nil
}

type failingRegistry struct{ Registry }

func (failingRegistry) Resolve(context.Context, string) (string, error) {
	return "", errors.New("connection reset")
}

type gateFixture struct {
	gate     *Gate
	cookies  *CookieCodec
	sessions Registry
}

func newGateFixture(accounts AccountChecker) *gateFixture {
	f := &gateFixture{
		cookies:  NewCookieCodec(cookieSecret, CookieMaxAge, false),
		sessions: NewSessionRegistry(StoreTTL),
	}
	f.gate = NewGate(f.cookies, f.sessions, accounts)
	return f
}

func (f *gateFixture) login(t *testing.T, accountID string) (*http.Cookie, string) {
	t.Helper()
	token, err := f.sessions.Create(context.Background(), accountID)
	require.NoError(t, err)
	c, err := f.cookies.Cookie(token)
	require.NoError(t, err)
	return c, token
}

func TestGate_Authenticate(t *testing.T) {
	f := newGateFixture(fakeAccounts{existing: map[string]bool{"acc-1": true}})
	c, token := f.login(t, "acc-1")

	id, err := f.gate.Authenticate(requestWithCookie(c))

	require.NoError(t, err)
	assert.Equal(t, Identity{AccountID: "acc-1", Token: token}, id)
}

func TestGate_Unauthorized(t *testing.T) {
	f := newGateFixture(fakeAccounts{existing: map[string]bool{"acc-1": true}})

	live, _ := f.login(t, "acc-1")
	orphan, _ := f.login(t, "deleted")
	loggedOut, token := f.login(t, "acc-1")
	require.NoError(t, f.sessions.Destroy(context.Background(), token))
	unknown, err := f.cookies.Cookie("never-issued")
	require.NoError(t, err)

	tests := []struct {
		name   string
		cookie *http.Cookie
	}{
		{"no token", nil},
		{"garbage token", &http.Cookie{Name: SessionCookieName, Value: live.Value[:10]}},
		{"unknown session", unknown},
		{"destroyed session", loggedOut},
		{"account gone", orphan},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.gate.Authenticate(requestWithCookie(tt.cookie))
			assert.ErrorIs(t, err, ErrUnauthorized)
		})
	}
}

func TestGate_InfrastructureErrors(t *testing.T) {
	t.Run("account lookup", func(t *testing.T) {
		f := newGateFixture(fakeAccounts{err: errors.New("store down")})
		c, _ := f.login(t, "acc-1")

		_, err := f.gate.Authenticate(requestWithCookie(c))

		assert.Error(t, err)
		assert.NotErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("session lookup", func(t *testing.T) {
		f := newGateFixture(fakeAccounts{})
		c, _ := f.login(t, "acc-1")
		gate := NewGate(f.cookies, failingRegistry{f.sessions}, fakeAccounts{})

		_, err := gate.Authenticate(requestWithCookie(c))

		assert.Error(t, err)
		assert.NotErrorIs(t, err, ErrUnauthorized)
	})
}

func TestGate_RequireAuth(t *testing.T) {
	var reached Identity
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached, _ = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	t.Run("passes identity to next", func(t *testing.T) {
		f := newGateFixture(fakeAccounts{existing: map[string]bool{"acc-1": true}})
		c, token := f.login(t, "acc-1")
		w := httptest.NewRecorder()

		f.gate.RequireAuth(next).ServeHTTP(w, requestWithCookie(c))

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, Identity{AccountID: "acc-1", Token: token}, reached)
	})

	t.Run("rejects without calling next", func(t *testing.T) {
		reached = Identity{}
		f := newGateFixture(fakeAccounts{})
		w := httptest.NewRecorder()

		f.gate.RequireAuth(next).ServeHTTP(w, requestWithCookie(nil))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, Identity{}, reached)

		var body map[string]string
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		assert.Equal(t, "NOT_AUTHORIZED", body["code"])
	})

	t.Run("hides internal errors", func(t *testing.T) {
		reached = Identity{}
		f := newGateFixture(fakeAccounts{err: errors.New("store down")})
		c, _ := f.login(t, "acc-1")
		w := httptest.NewRecorder()

		f.gate.RequireAuth(next).ServeHTTP(w, requestWithCookie(c))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.NotContains(t, w.Body.String(), "store down")
		assert.Equal(t, Identity{}, reached)
	})
}

func TestIdentityFromContext(t *testing.T) {
	_, ok := IdentityFromContext(context.Background())
	assert.False(t, ok)

	ctx := WithIdentity(context.Background(), Identity{AccountID: "acc-1"})
	id, ok := IdentityFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, "acc-1", id.AccountID)
}
