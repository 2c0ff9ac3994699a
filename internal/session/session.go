// Package session ties a camera, a scan loop, the lookup pipeline and a cart
// together into one scan session per shopper.
package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vbonduro/shopscan/internal/camera"
	"github.com/vbonduro/shopscan/internal/cart"
	"github.com/vbonduro/shopscan/internal/decode"
	"github.com/vbonduro/shopscan/internal/domain"
	"github.com/vbonduro/shopscan/internal/imaging"
	"github.com/vbonduro/shopscan/internal/lookup"
	"github.com/vbonduro/shopscan/internal/scan"
	"github.com/vbonduro/shopscan/internal/snapshot"
)

type Status string

const (
	StatusStarting Status = "starting"
	StatusReady    Status = "ready"
	StatusFailed   Status = "failed"
	StatusStopped  Status = "stopped"
)

var (
	ErrStopped = fmt.Errorf("%w: session stopped", domain.ErrConflict)
	ErrNoFeed  = fmt.Errorf("%w: session does not accept pushed frames", domain.ErrValidation)
	ErrBusy    = fmt.Errorf("%w: scanner is not accepting codes", domain.ErrConflict)
)

// Info is the externally visible state of a session.
type Info struct {
	ID        string    `json:"id"`
	Status    Status    `json:"status"`
	ScanState string    `json:"scan_state"`
	Decoder   string    `json:"decoder"`
	Facing    string    `json:"facing,omitempty"`
	Error     string    `json:"error,omitempty"`
	Prompt    *Prompt   `json:"prompt,omitempty"`
	Cart      cart.View `json:"cart"`
	CreatedAt time.Time `json:"created_at"`
}

type deps struct {
	device    camera.Device
	feed      *camera.FeedDevice
	strategy  *decode.Strategy
	catalog   lookup.Catalog
	snapshots snapshot.Store
	cfg       Config
	logger    *slog.Logger
}

type Session struct {
	ID        string
	CreatedAt time.Time

	cart      *cart.Cart
	feed      *camera.FeedDevice
	camera    *camera.Session
	loop      *scan.Loop
	strategy  *decode.Strategy
	pipeline  *lookup.Pipeline
	prompter  *Prompter
	snapshots snapshot.Store
	logger    *slog.Logger

	mu       sync.Mutex
	status   Status
	startErr error
	lastSeen time.Time
	cancel   context.CancelFunc
	started  chan struct{}
	stopOnce sync.Once
}

func newSession(d deps) *Session {
	id := uuid.NewString()
	logger := d.logger.With("session_id", id)

	s := &Session{
		ID:        id,
		CreatedAt: time.Now(),
		cart:      cart.New(),
		feed:      d.feed,
		camera:    camera.NewSession(d.device, d.cfg.CameraTimeout, logger),
		strategy:  d.strategy,
		prompter:  NewPrompter(logger),
		snapshots: d.snapshots,
		logger:    logger,
		status:    StatusStarting,
		lastSeen:  time.Now(),
		started:   make(chan struct{}),
	}
	s.pipeline = lookup.NewPipeline(d.catalog, s.prompter, s.prompter, s.cart, d.cfg.Lookup, logger)
	s.loop = scan.NewLoop(d.strategy, s.handleHit, scan.Options{Debounce: d.cfg.Debounce, Logger: logger})
	return s
}

// start acquires the camera in the background and starts scanning once the
// first frame arrives.
func (s *Session) start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	go func() {
		defer close(s.started)

		stream, err := s.camera.Start(ctx)
		if err != nil {
			s.fail(err)
			return
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.status == StatusStopped {
			return
		}
		if err := s.loop.Start(ctx, stream.Frames()); err != nil {
			s.status = StatusFailed
			s.startErr = err
			return
		}
		s.status = StatusReady
		s.logger.Info("scan session ready", "decoder", s.strategy.Kind)
		s.prompter.Publish(Event{Type: EventState, Data: s.infoLocked()})
	}()
}

func (s *Session) fail(err error) {
	s.mu.Lock()
	if s.status == StatusStopped {
		s.mu.Unlock()
		return
	}
	s.status = StatusFailed
	s.startErr = err
	s.mu.Unlock()

	s.logger.Warn("camera start failed", "error", err)
	s.prompter.Publish(Event{Type: EventError, Data: map[string]string{"message": CameraMessage(err)}})
}

// CameraMessage is the user-visible text for a camera start failure.
func CameraMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrPermissionDenied):
		return "Camera permission denied. Please allow camera access and try again."
	case errors.Is(err, domain.ErrTimeout):
		return "The camera did not start in time. Please try again."
	case errors.Is(err, domain.ErrDeviceUnavailable):
		return "No usable camera was found."
	case errors.Is(err, domain.ErrCancelled):
		return "Camera start was cancelled."
	default:
		return "Camera failed: " + err.Error()
	}
}

func (s *Session) handleHit(ctx context.Context, hit scan.Hit, resume func()) {
	s.prompter.Publish(Event{Type: EventDecoded, Data: decode.Result{Text: hit.Payload, Format: hit.Format}})
	if hit.Frame != nil {
		s.saveSnapshot(ctx, hit.Frame)
	}

	out := s.pipeline.Handle(ctx, hit.Payload, resume)
	if out.Kind == lookup.Added {
		s.publishCart()
	}
}

func (s *Session) saveSnapshot(ctx context.Context, img image.Image) {
	if s.snapshots == nil {
		return
	}
	data, err := imaging.EncodeJPEG(img)
	if err != nil {
		s.logger.Warn("failed to encode snapshot", "error", err)
		return
	}
	if _, err := s.snapshots.Save(ctx, s.ID, bytes.NewReader(data)); err != nil {
		s.logger.Warn("failed to save snapshot", "error", err)
	}
}

func (s *Session) publishCart() {
	s.prompter.Publish(Event{Type: EventCart, Data: s.cart.View()})
}

// Touch records client activity for idle expiry.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

func (s *Session) idleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastSeen)
}

func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.infoLocked()
}

func (s *Session) infoLocked() Info {
	info := Info{
		ID:        s.ID,
		Status:    s.status,
		ScanState: s.loop.State().String(),
		Decoder:   s.strategy.Kind,
		Cart:      s.cart.View(),
		CreatedAt: s.CreatedAt,
	}
	if c, ok := s.camera.Constraints(); ok {
		info.Facing = string(c.Facing)
		if info.Facing == "" {
			info.Facing = "any"
		}
	}
	if s.startErr != nil {
		info.Error = CameraMessage(s.startErr)
	}
	if p, ok := s.prompter.Pending(); ok {
		info.Prompt = &p
	}
	return info
}

// PushFrame hands a client-captured frame to the session's feed device.
func (s *Session) PushFrame(img image.Image) (uint64, error) {
	if s.feed == nil {
		return 0, ErrNoFeed
	}
	if s.stopped() {
		return 0, ErrStopped
	}
	s.Touch()
	return s.feed.Push(img)
}

// SubmitCode feeds a typed code through the scan gate. It fails with ErrBusy
// while a previous code is still being handled.
func (s *Session) SubmitCode(code string) error {
	if s.stopped() {
		return ErrStopped
	}
	s.Touch()
	if !s.loop.Submit(code) {
		return ErrBusy
	}
	return nil
}

func (s *Session) Decide(promptID string, d Decision) error {
	s.Touch()
	return s.prompter.Decide(promptID, d)
}

// Subscribe streams the session's events until the session stops or the
// returned cancel function is called.
func (s *Session) Subscribe() (<-chan Event, func()) {
	s.Touch()
	return s.prompter.Subscribe()
}

func (s *Session) Cart() cart.View {
	return s.cart.View()
}

func (s *Session) RemoveCartEntry(index int) (cart.Entry, error) {
	s.Touch()
	e, err := s.cart.Remove(index)
	if err != nil {
		return cart.Entry{}, err
	}
	s.publishCart()
	return e, nil
}

func (s *Session) ClearCart() {
	s.Touch()
	s.cart.Clear()
	s.publishCart()
}

// Snapshot returns the frame behind the most recent decode hit as JPEG.
func (s *Session) Snapshot(ctx context.Context) (io.ReadCloser, error) {
	if s.snapshots == nil {
		return nil, snapshot.ErrNotFound
	}
	return s.snapshots.Latest(ctx, s.ID)
}

func (s *Session) stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status == StatusStopped
}

// Stop tears the session down: pending prompts are cancelled, the scan loop
// and any in-flight lookup finish, and the camera is released. It is safe to
// call repeatedly.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.status = StatusStopped
		cancel := s.cancel
		s.mu.Unlock()

		if cancel != nil {
			cancel()
			<-s.started
		}
		s.prompter.Close()
		s.loop.Stop()
		if err := s.camera.Stop(); err != nil {
			s.logger.Error("failed to stop camera", "error", err)
		}
		closeStrategy(s.strategy, s.logger)
		if s.snapshots != nil {
			if err := s.snapshots.DeleteSession(context.Background(), s.ID); err != nil {
				s.logger.Warn("failed to delete snapshots", "error", err)
			}
		}
		s.logger.Info("scan session stopped", "cart_entries", s.cart.Len())
	})
}
