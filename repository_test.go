package accounts

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runRepositoryTests checks the behaviour every Repository must have.
// newRepo must return an empty repository.
func runRepositoryTests(t *testing.T, newRepo func(t *testing.T) Repository) {
	ctx := context.Background()

	t.Run("Insert", func(t *testing.T) {
		repo := newRepo(t)
		before := time.Now().UTC().Add(-time.Second)

		acc, err := repo.Insert(ctx, "  alice ", "hash")
		require.NoError(t, err)

		assert.True(t, IsValidID(string(acc.ID)))
		assert.Equal(t, "alice", acc.Username)
		assert.Equal(t, "hash", acc.PasswordHash)
		assert.True(t, acc.CreatedAt.After(before))
		assert.Equal(t, acc.CreatedAt, acc.UpdatedAt)
	})

	t.Run("InsertValidation", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.Insert(ctx, "alice", "hash")
		require.NoError(t, err)

		tests := []struct {
			username, hash string
			wantErr        error
		}{
			{username: "a", hash: "hash", wantErr: ErrInvalidUsername},
			{username: "   b  ", hash: "hash", wantErr: ErrInvalidUsername},
			{username: "bob", hash: "", wantErr: ErrEmptyPasswordHash},
			{username: "alice", hash: "other", wantErr: ErrExistingUsername},
			{username: " alice ", hash: "other", wantErr: ErrExistingUsername},
		}

		for _, tt := range tests {
			acc, err := repo.Insert(ctx, tt.username, tt.hash)
			assert.ErrorIs(t, err, tt.wantErr, tt.username)
			assert.Nil(t, acc)
		}

		all, err := repo.FindAll(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("FindByID", func(t *testing.T) {
		repo := newRepo(t)
		acc, err := repo.Insert(ctx, "alice", "hash")
		require.NoError(t, err)

		found, err := repo.FindByID(ctx, acc.ID)
		require.NoError(t, err)
		assert.Equal(t, acc.ID, found.ID)
		assert.Equal(t, "alice", found.Username)

		_, err = repo.FindByID(ctx, "not-an-id")
		assert.ErrorIs(t, err, ErrInvalidID)

		_, err = repo.FindByID(ctx, nextID())
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("FindByName", func(t *testing.T) {
		repo := newRepo(t)
		acc, err := repo.Insert(ctx, "alice", "hash")
		require.NoError(t, err)

		found, err := repo.FindByName(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, acc.ID, found.ID)

		_, err = repo.FindByName(ctx, "bob")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Update", func(t *testing.T) {
		repo := newRepo(t)
		acc, err := repo.Insert(ctx, "alice", "hash")
		require.NoError(t, err)
		other, err := repo.Insert(ctx, "bob", "hash")
		require.NoError(t, err)

		updated, err := repo.Update(ctx, acc.ID, Fields{Username: strPtr(" carol ")})
		require.NoError(t, err)
		assert.Equal(t, "carol", updated.Username)
		assert.Equal(t, "hash", updated.PasswordHash, "absent fields are not written")
		assert.False(t, updated.UpdatedAt.Before(acc.UpdatedAt))

		updated, err = repo.Update(ctx, acc.ID, Fields{PasswordHash: strPtr("new-hash")})
		require.NoError(t, err)
		assert.Equal(t, "carol", updated.Username)
		assert.Equal(t, "new-hash", updated.PasswordHash)

		tests := []struct {
			id      ID
			f       Fields
			wantErr error
		}{
			{id: "bad", f: Fields{Username: strPtr("dave")}, wantErr: ErrInvalidID},
			{id: nextID(), f: Fields{Username: strPtr("dave")}, wantErr: ErrNotFound},
			{id: acc.ID, f: Fields{Username: strPtr("x")}, wantErr: ErrInvalidUsername},
			{id: acc.ID, f: Fields{PasswordHash: strPtr("")}, wantErr: ErrEmptyPasswordHash},
			{id: other.ID, f: Fields{Username: strPtr("carol")}, wantErr: ErrExistingUsername},
		}
		for _, tt := range tests {
			_, err := repo.Update(ctx, tt.id, tt.f)
			assert.ErrorIs(t, err, tt.wantErr)
		}

		same, err := repo.Update(ctx, other.ID, Fields{Username: strPtr("bob")})
		require.NoError(t, err, "keeping your own username is not a conflict")
		assert.Equal(t, "bob", same.Username)
	})

	t.Run("FindAllInInsertionOrder", func(t *testing.T) {
		repo := newRepo(t)
		names := []string{"u1", "u2", "u3", "u4"}
		for _, n := range names {
			_, err := repo.Insert(ctx, n, "hash")
			require.NoError(t, err)
		}

		all, err := repo.FindAll(ctx)
		require.NoError(t, err)
		require.Len(t, all, len(names))
		for i, a := range all {
			assert.Equal(t, names[i], a.Username)
		}
	})

	t.Run("ConcurrentInsertsOfSameUsername", func(t *testing.T) {
		repo := newRepo(t)

		var wg sync.WaitGroup
		errs := make(chan error, 8)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := repo.Insert(ctx, "racer", "hash")
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)

		succeeded := 0
		for err := range errs {
			if err == nil {
				succeeded++
				continue
			}
			assert.ErrorIs(t, err, ErrExistingUsername)
		}
		assert.Equal(t, 1, succeeded)
	})
}

func TestInMemoryRepository(t *testing.T) {
	runRepositoryTests(t, func(*testing.T) Repository { return NewAccountRepository() })
}

func TestInMemoryRepository_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewAccountRepository()

	acc, err := repo.Insert(ctx, "alice", "hash")
	require.NoError(t, err)
	acc.Username = "mallory"

	found, err := repo.FindByID(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", found.Username)
}
