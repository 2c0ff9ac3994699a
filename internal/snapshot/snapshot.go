// Package snapshot keeps the frame that produced the most recent decode hit
// of each scan session, so the shopper can see what was read.
package snapshot

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned when a session has no stored snapshot.
var ErrNotFound = errors.New("snapshot not found")

type Store interface {
	Save(ctx context.Context, sessionID string, jpeg io.Reader) (storageKey string, err error)
	Latest(ctx context.Context, sessionID string) (io.ReadCloser, error)
	DeleteSession(ctx context.Context, sessionID string) error
}
