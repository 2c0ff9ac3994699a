package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/vbonduro/shopscan/internal/snapshot"
)

// LocalSnapshotStore writes snapshots as JPEG files, one directory per
// session, and remembers the newest key per session.
type LocalSnapshotStore struct {
	basePath string
	logger   *slog.Logger

	mu     sync.Mutex
	latest map[string]string
}

func NewLocalSnapshotStore(basePath string, logger *slog.Logger) (*LocalSnapshotStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	return &LocalSnapshotStore{basePath: basePath, logger: logger, latest: make(map[string]string)}, nil
}

func (s *LocalSnapshotStore) Save(ctx context.Context, sessionID string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	dir, err := s.safeJoin(sessionID)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create session directory: %w", err)
	}

	key := filepath.Join(sessionID, fmt.Sprintf("hit_%d.jpg", time.Now().UnixNano()))
	filePath := filepath.Join(s.basePath, key)

	f, err := os.Create(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		if cerr := f.Close(); cerr != nil {
			s.logger.Error("failed to close file after write error", "error", cerr)
		}
		if rerr := os.Remove(filePath); rerr != nil {
			s.logger.Error("failed to remove file after write error", "error", rerr)
		}
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	if err := f.Close(); err != nil {
		if rerr := os.Remove(filePath); rerr != nil {
			s.logger.Error("failed to remove file after close error", "error", rerr)
		}
		return "", fmt.Errorf("failed to close file: %w", err)
	}

	s.mu.Lock()
	previous := s.latest[sessionID]
	s.latest[sessionID] = key
	s.mu.Unlock()

	// Only the newest snapshot is ever served.
	if previous != "" {
		if err := os.Remove(filepath.Join(s.basePath, previous)); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("failed to remove previous snapshot", "key", previous, "error", err)
		}
	}
	return key, nil
}

func (s *LocalSnapshotStore) Latest(ctx context.Context, sessionID string) (io.ReadCloser, error) {
	s.mu.Lock()
	key, ok := s.latest[sessionID]
	s.mu.Unlock()
	if !ok {
		return nil, snapshot.ErrNotFound
	}

	filePath, err := s.safeJoin(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, snapshot.ErrNotFound
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return f, nil
}

func (s *LocalSnapshotStore) DeleteSession(ctx context.Context, sessionID string) error {
	dir, err := s.safeJoin(sessionID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.latest, sessionID)
	s.mu.Unlock()

	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to delete session snapshots: %w", err)
	}
	return nil
}

var errPathTraversal = errors.New("path traversal attempt")

// safeJoin resolves key relative to basePath and rejects directory traversal.
func (s *LocalSnapshotStore) safeJoin(key string) (string, error) {
	absBase, err := filepath.Abs(s.basePath)
	if err != nil {
		return "", fmt.Errorf("invalid base path: %w", err)
	}

	absPath, err := filepath.Abs(filepath.Join(s.basePath, key))
	if err != nil {
		return "", fmt.Errorf("invalid path: %w", err)
	}

	if !strings.HasPrefix(absPath, absBase+string(filepath.Separator)) {
		return "", errPathTraversal
	}
	return absPath, nil
}
