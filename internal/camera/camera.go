// Package camera acquires a video stream using a ladder of progressively
// looser constraints and hands its frames to the scan loop.
package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/vbonduro/shopscan/internal/domain"
)

type Facing string

const (
	FacingAny         Facing = ""
	FacingEnvironment Facing = "environment"
	FacingUser        Facing = "user"
)

// Constraints describe what a caller asks of a device.
type Constraints struct {
	Facing          Facing
	ContinuousFocus bool
	Width           int
	Height          int
}

// Tiers returns the acquisition ladder, strictest first.
func Tiers() []Constraints {
	return []Constraints{
		{Facing: FacingEnvironment, ContinuousFocus: true, Width: 1280, Height: 720},
		{Facing: FacingEnvironment},
		{Facing: FacingAny},
	}
}

type Frame struct {
	Image image.Image
	Seq   uint64
	At    time.Time
}

// Stream is an open camera stream. Ready is closed once the first frame is
// available. Frames is closed when the stream is closed.
type Stream interface {
	Ready() <-chan struct{}
	Frames() <-chan Frame
	Close() error
}

// Device opens streams. Open returns ErrOverconstrained when the device
// cannot satisfy c and domain.ErrPermissionDenied when access is refused.
type Device interface {
	Open(ctx context.Context, c Constraints) (Stream, error)
}

var ErrOverconstrained = errors.New("camera constraints cannot be satisfied")

// Session owns at most one stream at a time.
type Session struct {
	device  Device
	timeout time.Duration
	logger  *slog.Logger

	mu          sync.Mutex
	stream      Stream
	constraints Constraints
	cancel      context.CancelFunc
	gen         uint64
}

var ErrAcquiring = errors.New("camera acquisition already in progress")

func NewSession(device Device, timeout time.Duration, logger *slog.Logger) *Session {
	return &Session{device: device, timeout: timeout, logger: logger}
}

// Start walks the constraint tiers until a stream opens and delivers its
// first frame. A tier is abandoned only for capability or permission
// failures; any other device error ends acquisition. Calling Start on an
// active session returns the existing stream.
func (s *Session) Start(ctx context.Context) (Stream, error) {
	s.mu.Lock()
	if s.stream != nil {
		defer s.mu.Unlock()
		return s.stream, nil
	}
	if s.cancel != nil {
		s.mu.Unlock()
		return nil, ErrAcquiring
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	gen := s.gen
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.cancel = nil
		s.mu.Unlock()
		cancel()
	}()

	stream, c, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		if cerr := stream.Close(); cerr != nil {
			s.logger.Error("failed to close camera stream", "error", cerr)
		}
		return nil, fmt.Errorf("%w: camera stopped during acquisition", domain.ErrCancelled)
	}
	s.stream = stream
	s.constraints = c
	return stream, nil
}

func (s *Session) acquire(ctx context.Context) (Stream, Constraints, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	denied := false
	for i, c := range Tiers() {
		stream, err := s.device.Open(ctx, c)
		if err != nil {
			switch {
			case errors.Is(err, domain.ErrPermissionDenied):
				denied = true
			case errors.Is(err, ErrOverconstrained):
			case ctx.Err() != nil:
				return nil, Constraints{}, acquisitionAborted(ctx.Err())
			default:
				return nil, Constraints{}, fmt.Errorf("%w: %v", domain.ErrDeviceUnavailable, err)
			}
			s.logger.Debug("camera tier rejected", "tier", i, "facing", c.Facing, "error", err)
			continue
		}

		select {
		case <-stream.Ready():
		case <-ctx.Done():
			if cerr := stream.Close(); cerr != nil {
				s.logger.Error("failed to close camera stream", "error", cerr)
			}
			return nil, Constraints{}, acquisitionAborted(ctx.Err())
		}

		s.logger.Info("camera acquired", "tier", i, "facing", c.Facing, "continuous_focus", c.ContinuousFocus)
		return stream, c, nil
	}

	if denied {
		return nil, Constraints{}, fmt.Errorf("%w: camera access was refused", domain.ErrPermissionDenied)
	}
	return nil, Constraints{}, fmt.Errorf("%w: no camera satisfies any constraint set", domain.ErrDeviceUnavailable)
}

func acquisitionAborted(cause error) error {
	if errors.Is(cause, context.DeadlineExceeded) {
		return fmt.Errorf("%w: camera did not become ready", domain.ErrTimeout)
	}
	return fmt.Errorf("%w: camera acquisition stopped", domain.ErrCancelled)
}

// Stop releases the stream. It is safe to call repeatedly.
func (s *Session) Stop() error {
	s.mu.Lock()
	s.gen++
	if s.cancel != nil {
		s.cancel()
	}
	stream := s.stream
	s.stream = nil
	s.mu.Unlock()

	if stream == nil {
		return nil
	}
	if err := stream.Close(); err != nil {
		return fmt.Errorf("failed to close camera stream: %w", err)
	}
	return nil
}

func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stream != nil
}

// Constraints reports the tier the active stream was opened with.
func (s *Session) Constraints() (Constraints, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.constraints, s.stream != nil
}

// ErrCaptureUnsupported is returned when local capture was requested from a
// binary built without OpenCV.
var ErrCaptureUnsupported = errors.New("local capture requires a build with the gocv tag")
