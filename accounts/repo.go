package accounts

import "errors"

// ErrAccountNotFound is returned when no account matches the lookup.
var ErrAccountNotFound = errors.New("account not found")

// Repo is the read-only account lookup service.
type Repo interface {
	// GetByID returns the account with the given primary key.
	GetByID(id string) (*Account, error)

	// GetByUsername returns the account with the given login name.
	GetByUsername(username string) (*Account, error)
}
