package repofakes

import (
	"sync"

	"github.com/google/uuid"

	"github.com/centrid/go-identity-server/accounts"
)

var _ accounts.Repo = (*FakeAccountRepo)(nil)

// FakeAccountRepo is an in-memory account directory for tests.
type FakeAccountRepo struct {
	lock        sync.RWMutex
	accounts    map[string]*accounts.Account
	usernameIds map[string]string
	passwords   map[string]string // account id -> bcrypt hash
}

func NewFakeAccountRepo() *FakeAccountRepo {
	return &FakeAccountRepo{
		accounts:    make(map[string]*accounts.Account),
		usernameIds: make(map[string]string),
		passwords:   make(map[string]string),
	}
}

// Upsert stores an account; a missing ID is filled in.
func (r *FakeAccountRepo) Upsert(account *accounts.Account) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if account.ID == "" {
		account.ID = uuid.New().String()
	}
	r.accounts[account.ID] = account
	r.usernameIds[account.Username] = account.ID
	return nil
}

// SetPassword stores a bcrypt hash for the account.
func (r *FakeAccountRepo) SetPassword(accountID, password string) error {
	hash, err := accounts.HashPassword(password)
	if err != nil {
		return err
	}

	r.lock.Lock()
	defer r.lock.Unlock()
	r.passwords[accountID] = hash
	return nil
}

func (r *FakeAccountRepo) GetByID(id string) (*accounts.Account, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	account, ok := r.accounts[id]
	if !ok {
		return nil, accounts.ErrAccountNotFound
	}
	return account, nil
}

func (r *FakeAccountRepo) GetByUsername(username string) (*accounts.Account, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	id, ok := r.usernameIds[username]
	if !ok {
		return nil, accounts.ErrAccountNotFound
	}
	return r.accounts[id], nil
}

// Verify implements accounts.PasswordVerifier.
func (r *FakeAccountRepo) Verify(accountID, password string) bool {
	r.lock.RLock()
	hash, ok := r.passwords[accountID]
	r.lock.RUnlock()

	return ok && accounts.CheckPasswordHash(password, hash)
}
