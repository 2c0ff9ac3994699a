// Package scan drives decode attempts over camera frames and gates decode
// hits so that at most one payload is being handled at a time.
package scan

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/vbonduro/shopscan/internal/camera"
	"github.com/vbonduro/shopscan/internal/decode"
)

type State int

const (
	Idle State = iota
	Scanning
	Paused
)

func (s State) String() string {
	switch s {
	case Scanning:
		return "scanning"
	case Paused:
		return "paused"
	default:
		return "idle"
	}
}

// Hit is a decoded payload handed to the Handler. Frame is nil for manually
// entered codes.
type Hit struct {
	Payload string
	Format  string
	Frame   image.Image
}

// Handler processes a hit. The loop stays Paused until resume is called;
// resume may be called any number of times but only the first call counts.
type Handler func(ctx context.Context, hit Hit, resume func())

var ErrNotIdle = errors.New("scan loop already running")

type Options struct {
	// Debounce ignores a payload for this long after its previous cycle
	// completed. Zero disables it.
	Debounce time.Duration
	Logger   *slog.Logger
}

// Loop is the Idle/Scanning/Paused state machine.
type Loop struct {
	strategy *decode.Strategy
	handler  Handler
	logger   *slog.Logger
	debounce *debouncer

	mu     sync.Mutex
	state  State
	gen    uint64
	run    uint64
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewLoop(strategy *decode.Strategy, handler Handler, opts Options) *Loop {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		strategy: strategy,
		handler:  handler,
		logger:   logger,
		debounce: newDebouncer(opts.Debounce),
	}
}

func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Start moves the loop from Idle to Scanning and begins consuming frames.
// A frame-synchronous strategy makes exactly one decode attempt per frame
// received while Scanning; a continuous strategy decodes on its own and the
// loop only gates its results.
func (l *Loop) Start(ctx context.Context, frames <-chan camera.Frame) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != Idle {
		return ErrNotIdle
	}

	ctx, cancel := context.WithCancel(ctx)
	l.ctx = ctx
	l.cancel = cancel
	l.state = Scanning
	l.run++
	run := l.run

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer l.finish(run)
		if l.strategy.Continuous != nil {
			l.runContinuous(ctx, frames)
			return
		}
		l.runFrames(ctx, frames)
	}()
	return nil
}

func (l *Loop) runFrames(ctx context.Context, frames <-chan camera.Frame) {
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-frames:
			if !ok {
				return
			}
			if l.State() != Scanning {
				continue
			}
			res, err := l.strategy.Frame.Decode(ctx, f.Image)
			if err != nil {
				if !errors.Is(err, decode.ErrNoCode) && ctx.Err() == nil {
					l.logger.Debug("decode attempt failed", "seq", f.Seq, "error", err)
				}
				continue
			}
			l.dispatch(Hit{Payload: res.Text, Format: res.Format, Frame: f.Image})
		}
	}
}

func (l *Loop) runContinuous(ctx context.Context, frames <-chan camera.Frame) {
	err := l.strategy.Continuous.Run(ctx, frames, func(res decode.Result, f camera.Frame) {
		l.dispatch(Hit{Payload: res.Text, Format: res.Format, Frame: f.Image})
	})
	if err != nil && ctx.Err() == nil {
		l.logger.Error("continuous decoder stopped", "error", err)
	}
}

// finish returns the loop to Idle when its frame source ends on its own.
func (l *Loop) finish(run uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.run != run || l.state == Idle {
		return
	}
	l.state = Idle
	l.gen++
	l.cancel()
}

// FormatManual marks hits entered by hand rather than decoded.
const FormatManual = "MANUAL"

// Submit feeds a payload that did not come from the camera, such as a code
// typed by the user, through the same gate as decode hits. The debounce
// window does not apply to typed codes.
func (l *Loop) Submit(payload string) bool {
	return l.dispatch(Hit{Payload: payload, Format: FormatManual})
}

// dispatch pauses the loop and hands hit to the handler. It drops the hit
// unless the loop is Scanning.
func (l *Loop) dispatch(hit Hit) bool {
	l.mu.Lock()
	if l.state != Scanning || (hit.Format != FormatManual && l.debounce.suppressed(hit.Payload)) {
		l.mu.Unlock()
		return false
	}
	l.state = Paused
	l.gen++
	gen := l.gen
	ctx := l.ctx
	l.wg.Add(1)
	l.mu.Unlock()

	l.logger.Info("code decoded", "format", hit.Format)

	var once sync.Once
	resume := func() {
		once.Do(func() {
			l.mu.Lock()
			l.debounce.record(hit.Payload)
			l.mu.Unlock()
			l.Resume(gen)
		})
	}

	go func() {
		defer l.wg.Done()
		l.handler(ctx, hit, resume)
	}()
	return true
}

// Resume returns a Paused loop to Scanning. It is a no-op unless the loop is
// Paused at generation gen, so stale or repeated resumes have no effect.
func (l *Loop) Resume(gen uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != Paused || l.gen != gen {
		return false
	}
	l.state = Scanning
	return true
}

// Stop cancels the loop, waits for the frame goroutine and any in-flight
// handler, and leaves the loop Idle. No decode attempt starts after Stop
// returns.
func (l *Loop) Stop() {
	l.mu.Lock()
	if l.cancel != nil {
		l.cancel()
	}
	if l.state != Idle {
		l.state = Idle
		l.gen++
	}
	l.mu.Unlock()

	l.wg.Wait()
}
