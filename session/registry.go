package session

import "context"

// Registry is the authority-side record of live sessions. A token is only
// valid while its registry entry exists; logout, kick-out, and idle timeout
// all work by removing or expiring entries, independently of the token's
// signature.
type Registry interface {
	// Save records a freshly issued session. When limit is positive and the
	// account already holds that many live sessions on the same endpoint,
	// the oldest one is evicted first.
	Save(ctx context.Context, sess *Session, limit int) error

	// Verify reports whether the session (and, for derived sessions, its
	// source) is still live. A live session has its validity window slid
	// forward.
	Verify(ctx context.Context, sess *Session) (bool, error)

	// Invalidate removes a single session.
	Invalidate(ctx context.Context, sess *Session) error

	// Clear removes every session of the given account.
	Clear(ctx context.Context, tenant, accountID string) error
}
