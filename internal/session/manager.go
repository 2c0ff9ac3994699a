package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/vbonduro/shopscan/internal/camera"
	"github.com/vbonduro/shopscan/internal/decode"
	"github.com/vbonduro/shopscan/internal/domain"
	"github.com/vbonduro/shopscan/internal/lookup"
	"github.com/vbonduro/shopscan/internal/snapshot"
)

const (
	BackendFeed = "feed"
	BackendGoCV = "gocv"
)

type Config struct {
	CameraBackend string
	CameraDevice  int
	CameraTimeout time.Duration
	Decode        decode.Options
	Debounce      time.Duration
	Lookup        lookup.Config
	IdleTimeout   time.Duration
}

// Options describe the client's camera when the feed backend is used.
type Options struct {
	Facing           camera.Facing `json:"facing"`
	ContinuousFocus  bool          `json:"continuous_focus"`
	PermissionDenied bool          `json:"permission_denied"`
}

var ErrSessionNotFound = fmt.Errorf("%w: scan session not found", domain.ErrNotFound)

// Manager is the registry of live scan sessions.
type Manager struct {
	cfg       Config
	catalog   lookup.Catalog
	snapshots snapshot.Store
	logger    *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager checks that the configured decode strategy and camera backend
// can be built so a bad deployment fails at start-up.
func NewManager(catalog lookup.Catalog, snapshots snapshot.Store, cfg Config, logger *slog.Logger) (*Manager, error) {
	switch cfg.CameraBackend {
	case "":
		cfg.CameraBackend = BackendFeed
	case BackendFeed, BackendGoCV:
	default:
		return nil, fmt.Errorf("unknown camera backend %q", cfg.CameraBackend)
	}

	probe, err := decode.New(cfg.Decode, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build decode strategy: %w", err)
	}
	closeStrategy(probe, logger)

	return &Manager{
		cfg:       cfg,
		catalog:   catalog,
		snapshots: snapshots,
		logger:    logger,
		sessions:  make(map[string]*Session),
	}, nil
}

// Create registers a new session and starts acquiring its camera. The
// returned session may still be starting.
func (m *Manager) Create(opts Options) (*Session, error) {
	device, feed, err := m.device(opts)
	if err != nil {
		return nil, err
	}
	strategy, err := decode.New(m.cfg.Decode, m.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build decode strategy: %w", err)
	}

	s := newSession(deps{
		device:    device,
		feed:      feed,
		strategy:  strategy,
		catalog:   m.catalog,
		snapshots: m.snapshots,
		cfg:       m.cfg,
		logger:    m.logger,
	})

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	s.start()
	m.logger.Info("scan session created", "session_id", s.ID, "backend", m.cfg.CameraBackend, "decoder", strategy.Kind)
	return s, nil
}

func (m *Manager) device(opts Options) (camera.Device, *camera.FeedDevice, error) {
	if m.cfg.CameraBackend == BackendGoCV {
		facing := opts.Facing
		if facing == camera.FacingAny {
			facing = camera.FacingEnvironment
		}
		d, err := camera.NewCaptureDevice(m.cfg.CameraDevice, facing, m.logger)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", domain.ErrDeviceUnavailable, err)
		}
		return d, nil, nil
	}
	feed := camera.NewFeedDevice(camera.FeedOptions{
		Facing:           opts.Facing,
		ContinuousFocus:  opts.ContinuousFocus,
		PermissionDenied: opts.PermissionDenied,
	})
	return feed, feed, nil
}

func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

func (m *Manager) Stop(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	s.Stop()
	return nil
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// StopAll stops every session concurrently and waits for them.
func (m *Manager) StopAll() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for id, s := range m.sessions {
		sessions = append(sessions, s)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			s.Stop()
		}(s)
	}
	wg.Wait()
}

// Reap stops sessions idle for longer than the configured timeout and
// returns how many it stopped.
func (m *Manager) Reap(now time.Time) int {
	if m.cfg.IdleTimeout <= 0 {
		return 0
	}

	m.mu.Lock()
	var idle []*Session
	for id, s := range m.sessions {
		if s.idleSince(now) > m.cfg.IdleTimeout {
			idle = append(idle, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range idle {
		m.logger.Info("reaping idle scan session", "session_id", s.ID)
		s.Stop()
	}
	return len(idle)
}

// Run reaps idle sessions until ctx is done, then stops all sessions.
func (m *Manager) Run(ctx context.Context) error {
	interval := m.cfg.IdleTimeout / 2
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.StopAll()
			return nil
		case now := <-ticker.C:
			m.Reap(now)
		}
	}
}

func closeStrategy(s *decode.Strategy, logger *slog.Logger) {
	if c, ok := s.Frame.(io.Closer); ok {
		if err := c.Close(); err != nil {
			logger.Error("failed to close decoder", "error", err)
		}
	}
}
