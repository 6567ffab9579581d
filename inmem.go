package accounts

import (
	"context"
	"sync"
	"time"
)

type accountRepository struct {
	mu       sync.RWMutex
	accounts map[ID]*Account
	order    []ID
}

func NewAccountRepository() Repository {
	return &accountRepository{accounts: map[ID]*Account{}}
}

func (repo *accountRepository) Insert(_ context.Context, username, passwordHash string) (*Account, error) {
	f, err := validateFields(Fields{Username: &username, PasswordHash: &passwordHash})
	if err != nil {
		return nil, err
	}

	repo.mu.Lock()
	defer repo.mu.Unlock()

	if repo.findByName(*f.Username) != nil {
		return nil, ErrExistingUsername
	}

	now := time.Now().UTC()
	acc := &Account{ID: nextID(), Username: *f.Username, PasswordHash: passwordHash, CreatedAt: now, UpdatedAt: now}
	repo.accounts[acc.ID] = acc
	repo.order = append(repo.order, acc.ID)

	c := *acc
	return &c, nil
}

func (repo *accountRepository) FindByID(_ context.Context, id ID) (*Account, error) {
	if !IsValidID(string(id)) {
		return nil, ErrInvalidID
	}

	repo.mu.RLock()
	defer repo.mu.RUnlock()
	if a, ok := repo.accounts[id]; ok {
		c := *a
		return &c, nil
	}
	return nil, ErrNotFound
}

func (repo *accountRepository) FindByName(_ context.Context, username string) (*Account, error) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()
	if a := repo.findByName(username); a != nil {
		c := *a
		return &c, nil
	}
	return nil, ErrNotFound
}

func (repo *accountRepository) Update(_ context.Context, id ID, f Fields) (*Account, error) {
	if !IsValidID(string(id)) {
		return nil, ErrInvalidID
	}
	f, err := validateFields(f)
	if err != nil {
		return nil, err
	}

	repo.mu.Lock()
	defer repo.mu.Unlock()

	a, ok := repo.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	if f.Username != nil {
		if other := repo.findByName(*f.Username); other != nil && other.ID != id {
			return nil, ErrExistingUsername
		}
		a.Username = *f.Username
	}
	if f.PasswordHash != nil {
		a.PasswordHash = *f.PasswordHash
	}
	a.UpdatedAt = time.Now().UTC()

	c := *a
	return &c, nil
}

func (repo *accountRepository) FindAll(_ context.Context) ([]*Account, error) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()

	all := make([]*Account, 0, len(repo.order))
	for _, id := range repo.order {
		c := *repo.accounts[id]
		all = append(all, &c)
	}
	return all, nil
}

// findByName expects repo.mu to be held.
func (repo *accountRepository) findByName(username string) *Account {
	for _, a := range repo.accounts {
		if a.Username == username {
			return a
		}
	}
	return nil
}
