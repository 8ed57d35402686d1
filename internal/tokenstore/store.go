package tokenstore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound means the credential is unknown, already consumed or expired;
// the store cannot tell these apart and callers must not care.
var ErrNotFound = errors.New("refresh token not found")

// Store maps an opaque refresh credential to the owning user id with a TTL.
// Entries are only ever written whole and removed whole; rotation is
// delete-then-save, never an in-place update.
type Store interface {
	Save(ctx context.Context, token, userID string, ttl time.Duration) error
	Resolve(ctx context.Context, token string) (string, error)
	Delete(ctx context.Context, token string) error
}
