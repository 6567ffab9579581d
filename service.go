package accounts

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/samber/oops"

	"github.com/jimiolaniyan/goaccounts/auth"
)

type Service interface {
	Signup(ctx context.Context, req credentialsRequest) (AccountInfo, string, error)
	Login(ctx context.Context, req credentialsRequest) (AccountInfo, string, error)
	Logout(ctx context.Context, token string) error
	ListAccounts(ctx context.Context) ([]AccountInfo, error)
	GetAccount(ctx context.Context, id string) (AccountInfo, error)
	ReplaceAccount(ctx context.Context, id string, req credentialsRequest) (AccountInfo, error)
	UpdateAccount(ctx context.Context, id string, req updateAccountRequest) (AccountInfo, error)
	AccountExists(ctx context.Context, id string) (bool, error)
}

type service struct {
	accounts Repository
	hasher   auth.Hasher
	sessions auth.Registry
	logger   *slog.Logger
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// updateAccountRequest carries a partial update; absent JSON keys stay nil.
type updateAccountRequest struct {
	Username *string `json:"username"`
	Password *string `json:"password"`
}

func NewService(accounts Repository, hasher auth.Hasher, sessions auth.Registry, logger *slog.Logger) Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &service{accounts: accounts, hasher: hasher, sessions: sessions, logger: logger}
}

// Signup creates an account and starts a session for it. When the account is
// stored but the session cannot be created, the account is returned with an
// empty token and no error; the caller has to log in.
func (svc *service) Signup(ctx context.Context, req credentialsRequest) (AccountInfo, string, error) {
	if err := requireCredentials(req); err != nil {
		return AccountInfo{}, "", err
	}
	username, err := normalizeUsername(req.Username)
	if err != nil {
		return AccountInfo{}, "", err
	}
	if err := validatePassword(req.Password); err != nil {
		return AccountInfo{}, "", err
	}

	hash, err := svc.hasher.Hash(ctx, req.Password)
	if err != nil {
		return AccountInfo{}, "", err
	}

	acc, err := svc.accounts.Insert(ctx, username, hash)
	if err != nil {
		return AccountInfo{}, "", err
	}

	token, err := svc.sessions.Create(ctx, string(acc.ID))
	if err != nil {
		svc.logger.WarnContext(ctx, "account created without session", "account_id", acc.ID, "error", err)
		return newAccountInfo(acc), "", nil
	}

	return newAccountInfo(acc), token, nil
}

func (svc *service) Login(ctx context.Context, req credentialsRequest) (AccountInfo, string, error) {
	if err := requireCredentials(req); err != nil {
		return AccountInfo{}, "", err
	}

	acc, err := svc.accounts.FindByName(ctx, strings.TrimSpace(req.Username))
	if err != nil {
		return AccountInfo{}, "", err
	}

	ok, err := svc.hasher.Verify(ctx, req.Password, acc.PasswordHash)
	if err != nil {
		return AccountInfo{}, "", oops.In("service").With("account_id", acc.ID).Wrap(err)
	}
	if !ok {
		return AccountInfo{}, "", ErrWrongCredentials
	}

	token, err := svc.sessions.Create(ctx, string(acc.ID))
	if err != nil {
		return AccountInfo{}, "", oops.In("service").With("account_id", acc.ID).Wrapf(err, "creating session")
	}

	return newAccountInfo(acc), token, nil
}

func (svc *service) Logout(ctx context.Context, token string) error {
	return svc.sessions.Destroy(ctx, token)
}

func (svc *service) ListAccounts(ctx context.Context) ([]AccountInfo, error) {
	all, err := svc.accounts.FindAll(ctx)
	if err != nil {
		return nil, err
	}

	infos := make([]AccountInfo, 0, len(all))
	for _, a := range all {
		infos = append(infos, newAccountInfo(a))
	}
	return infos, nil
}

func (svc *service) GetAccount(ctx context.Context, id string) (AccountInfo, error) {
	acc, err := svc.accounts.FindByID(ctx, ID(id))
	if err != nil {
		return AccountInfo{}, err
	}
	return newAccountInfo(acc), nil
}

// ReplaceAccount overwrites both username and password.
func (svc *service) ReplaceAccount(ctx context.Context, id string, req credentialsRequest) (AccountInfo, error) {
	if err := requireCredentials(req); err != nil {
		return AccountInfo{}, err
	}
	return svc.UpdateAccount(ctx, id, updateAccountRequest{Username: &req.Username, Password: &req.Password})
}

// UpdateAccount writes only the fields present in req. A new password is
// always hashed before it reaches the store.
func (svc *service) UpdateAccount(ctx context.Context, id string, req updateAccountRequest) (AccountInfo, error) {
	if !IsValidID(id) {
		return AccountInfo{}, ErrInvalidID
	}

	var f Fields
	if req.Username != nil {
		u, err := normalizeUsername(*req.Username)
		if err != nil {
			return AccountInfo{}, err
		}
		f.Username = &u
	}
	if req.Password != nil {
		if err := validatePassword(*req.Password); err != nil {
			return AccountInfo{}, err
		}
		hash, err := svc.hasher.Hash(ctx, *req.Password)
		if err != nil {
			return AccountInfo{}, err
		}
		f.PasswordHash = &hash
	}

	if f.Username == nil && f.PasswordHash == nil {
		return svc.GetAccount(ctx, id)
	}

	acc, err := svc.accounts.Update(ctx, ID(id), f)
	if err != nil {
		return AccountInfo{}, err
	}
	return newAccountInfo(acc), nil
}

func (svc *service) AccountExists(ctx context.Context, id string) (bool, error) {
	_, err := svc.accounts.FindByID(ctx, ID(id))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrInvalidID):
		return false, nil
	default:
		return false, err
	}
}

func requireCredentials(req credentialsRequest) error {
	if req.Username == "" {
		return ErrMissingUsername
	}
	if req.Password == "" {
		return ErrMissingPassword
	}
	return nil
}
