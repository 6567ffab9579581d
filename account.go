package accounts

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/xid"
)

const (
	minUsernameLen = 2
	minPasswordLen = 6
	// bcrypt ignores anything past 72 bytes
	maxPasswordLen = 72
)

type Repository interface {
	Insert(ctx context.Context, username, passwordHash string) (*Account, error)
	FindByID(ctx context.Context, id ID) (*Account, error)
	FindByName(ctx context.Context, username string) (*Account, error)
	Update(ctx context.Context, id ID, f Fields) (*Account, error)
	FindAll(ctx context.Context) ([]*Account, error)
}

type ID string

type Account struct {
	ID           ID
	Username     string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Fields is a partial account update. Nil fields are left untouched.
type Fields struct {
	Username     *string
	PasswordHash *string
}

// AccountInfo is the only account representation that leaves the service.
type AccountInfo struct {
	ID       ID     `json:"id"`
	Username string `json:"username"`
}

var (
	ErrMissingUsername   = errors.New("username is required")
	ErrMissingPassword   = errors.New("password is required")
	ErrInvalidUsername   = errors.New("username must be at least 2 characters")
	ErrInvalidPassword   = errors.New("password must be between 6 and 72 characters")
	ErrEmptyPasswordHash = errors.New("password hash cannot be empty")
	ErrInvalidID         = errors.New("invalid user id")
	ErrNotFound          = errors.New("user not found")
	ErrExistingUsername  = errors.New("username in use")
	ErrWrongCredentials  = errors.New("wrong credentials")
)

func newAccountInfo(a *Account) AccountInfo {
	return AccountInfo{ID: a.ID, Username: a.Username}
}

// normalizeUsername trims username and checks its length.
func normalizeUsername(username string) (string, error) {
	u := strings.TrimSpace(username)
	if utf8.RuneCountInString(u) < minUsernameLen {
		return "", ErrInvalidUsername
	}
	return u, nil
}

func validatePassword(password string) error {
	if utf8.RuneCountInString(password) < minPasswordLen || len(password) > maxPasswordLen {
		return ErrInvalidPassword
	}
	return nil
}

// validateFields runs the store-level checks on the fields present in f and
// returns f with the username trimmed.
func validateFields(f Fields) (Fields, error) {
	if f.Username != nil {
		u, err := normalizeUsername(*f.Username)
		if err != nil {
			return Fields{}, err
		}
		f.Username = &u
	}
	if f.PasswordHash != nil && *f.PasswordHash == "" {
		return Fields{}, ErrEmptyPasswordHash
	}
	return f, nil
}

func nextID() ID {
	return ID(xid.New().String())
}

//IsValidID checks if a given id is valid based on the xid library definition of a valid id
// this method should change if we ever change our uid generation library
func IsValidID(id string) bool {
	_, err := xid.FromString(id)
	return err == nil
}
