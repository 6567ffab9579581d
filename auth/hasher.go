// Package auth holds the credential and session primitives of the account
// service: password hashing, the session registry, the signed session cookie
// and the gate that protects authenticated routes.
package auth

import (
	"context"
	"errors"
	"runtime"

	"github.com/samber/oops"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

// DefaultCost is the bcrypt work factor used for stored passwords.
const DefaultCost = 13

var (
	ErrHashing       = errors.New("error hashing password")
	ErrMalformedHash = errors.New("malformed password hash")
)

// Hasher turns plaintext passwords into stored hashes and checks candidates
// against them.
type Hasher interface {
	// Hash returns a salted one-way hash of password.
	Hash(ctx context.Context, password string) (string, error)

	// Verify returns (true, nil) on match and (false, nil) on mismatch.
	// An error is returned only when hash cannot be parsed.
	Verify(ctx context.Context, password, hash string) (bool, error)
}

// BcryptHasher is a Hasher backed by bcrypt. At most `workers` hash
// computations run at the same time; callers beyond that wait for a slot.
type BcryptHasher struct {
	cost    int
	workers *semaphore.Weighted
}

// NewBcryptHasher returns a hasher with the given cost. A workers value <= 0
// means one slot per available CPU.
func NewBcryptHasher(cost, workers int) *BcryptHasher {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &BcryptHasher{cost: cost, workers: semaphore.NewWeighted(int64(workers))}
}

func (h *BcryptHasher) Hash(ctx context.Context, password string) (string, error) {
	if err := h.workers.Acquire(ctx, 1); err != nil {
		return "", oops.In("hasher").Wrap(err)
	}
	defer h.workers.Release(1)

	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", oops.In("hasher").With("cost", h.cost).Wrapf(errors.Join(ErrHashing, err), "bcrypt")
	}
	return string(hash), nil
}

func (h *BcryptHasher) Verify(ctx context.Context, password, hash string) (bool, error) {
	if err := h.workers.Acquire(ctx, 1); err != nil {
		return false, oops.In("hasher").Wrap(err)
	}
	defer h.workers.Release(1)

	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, oops.In("hasher").Wrapf(errors.Join(ErrMalformedHash, err), "bcrypt compare")
	}
}
