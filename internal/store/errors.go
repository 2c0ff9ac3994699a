package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/vbonduro/shopscan/internal/domain"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// wrapErr annotates err with op and, where it can be classified, with the
// matching domain sentinel.
func wrapErr(op string, err error) error {
	if kind := classify(err); kind != nil {
		return fmt.Errorf("failed to %s: %w: %w", op, kind, err)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

func classify(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return domain.ErrTimeout
	case errors.Is(err, context.Canceled):
		return domain.ErrCancelled
	}

	var se *sqlite.Error
	if !errors.As(err, &se) {
		return nil
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return domain.ErrConflict
	}
	switch se.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED, sqlite3.SQLITE_IOERR, sqlite3.SQLITE_CANTOPEN:
		return domain.ErrUnavailable
	case sqlite3.SQLITE_PERM, sqlite3.SQLITE_AUTH, sqlite3.SQLITE_READONLY:
		return domain.ErrPermissionDenied
	}
	return nil
}
