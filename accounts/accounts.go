// Package accounts exposes the read-only account directory consumed by the
// session and authorization subsystems.
package accounts

import "golang.org/x/crypto/bcrypt"

// Account is a principal in the directory.
type Account struct {
	ID         string
	Username   string
	Name       string
	Email      string
	Mobile     string
	Avatar     string
	Admin      bool
	Supervisor bool
	Enabled    bool
	Deleted    bool
}

// Active reports whether the account may authenticate.
func (a *Account) Active() bool {
	return a.Enabled && !a.Deleted
}

// PasswordVerifier answers whether a plaintext password matches an account's
// stored credential. The identity core only ever consumes the boolean.
type PasswordVerifier interface {
	Verify(accountID, password string) bool
}

// HashPassword hashes a password using bcrypt.
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

// CheckPasswordHash compares a plaintext password with a bcrypt hash.
func CheckPasswordHash(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
