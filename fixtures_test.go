package accounts

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"github.com/jimiolaniyan/goaccounts/auth"
)

var testSecret = []byte("test-secret-test-secret-test-secret")

type testEnv struct {
	accounts Repository
	hasher   auth.Hasher
	sessions auth.Registry
	svc      *service
	cookies  *auth.CookieCodec
	gate     *auth.Gate
	router   http.Handler
}

func newTestEnv() *testEnv {
	return newTestEnvWithSessions(auth.NewSessionRegistry(auth.StoreTTL))
}

func newTestEnvWithSessions(sessions auth.Registry) *testEnv {
	env := &testEnv{
		accounts: NewAccountRepository(),
		hasher:   auth.NewBcryptHasher(bcrypt.MinCost, 0),
		sessions: sessions,
		cookies:  auth.NewCookieCodec(testSecret, auth.CookieMaxAge, false),
	}
	env.svc = NewService(env.accounts, env.hasher, env.sessions, discardLogger()).(*service)
	env.gate = auth.NewGate(env.cookies, env.sessions, env.svc)
	env.router = NewRouter(env.svc, env.gate, env.cookies, nil)
	return env
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// brokenRegistry fails every write, as an unreachable session store would.
type brokenRegistry struct{}

var errRegistryDown = errors.New("registry down")

func (brokenRegistry) Create(context.Context, string) (string, error) { return "", errRegistryDown }
func (brokenRegistry) Resolve(context.Context, string) (string, error) {
	return "", auth.ErrSessionNotFound
}
func (brokenRegistry) Destroy(context.Context, string) error { return errRegistryDown }

// brokenRepository fails every call with an infrastructure error.
type brokenRepository struct{}

var errStoreDown = errors.New("connection refused")

func (brokenRepository) Insert(context.Context, string, string) (*Account, error) {
	return nil, errStoreDown
}
func (brokenRepository) FindByID(context.Context, ID) (*Account, error) { return nil, errStoreDown }
func (brokenRepository) FindByName(context.Context, string) (*Account, error) {
	return nil, errStoreDown
}
func (brokenRepository) Update(context.Context, ID, Fields) (*Account, error) {
	return nil, errStoreDown
}
func (brokenRepository) FindAll(context.Context) ([]*Account, error) { return nil, errStoreDown }

func strPtr(s string) *string { return &s }
