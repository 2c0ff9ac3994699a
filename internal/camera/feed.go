package camera

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/vbonduro/shopscan/internal/domain"
)

// FeedOptions describe the camera a remote client reports having.
type FeedOptions struct {
	Facing          Facing
	ContinuousFocus bool
	// PermissionDenied is set when the client was refused camera access.
	PermissionDenied bool
}

// FeedDevice is a Device whose frames are pushed by a remote client, such as
// a browser posting captured video frames. Frames pushed before Open are
// buffered so a client may start sending immediately.
type FeedDevice struct {
	opts FeedOptions

	mu     sync.Mutex
	stream *frameStream
}

func NewFeedDevice(opts FeedOptions) *FeedDevice {
	return &FeedDevice{opts: opts, stream: newFrameStream(nil)}
}

func (d *FeedDevice) Open(ctx context.Context, c Constraints) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.opts.PermissionDenied {
		return nil, fmt.Errorf("%w: client refused camera access", domain.ErrPermissionDenied)
	}
	if c.Facing != FacingAny && c.Facing != d.opts.Facing {
		return nil, fmt.Errorf("%w: facing %q unavailable", ErrOverconstrained, c.Facing)
	}
	if c.ContinuousFocus && !d.opts.ContinuousFocus {
		return nil, fmt.Errorf("%w: continuous focus unsupported", ErrOverconstrained)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stream.isClosed() {
		d.stream = newFrameStream(nil)
	}
	return d.stream, nil
}

// Push delivers a frame and returns its sequence number.
func (d *FeedDevice) Push(img image.Image) (uint64, error) {
	if d.opts.PermissionDenied {
		return 0, fmt.Errorf("%w: client refused camera access", domain.ErrPermissionDenied)
	}
	d.mu.Lock()
	stream := d.stream
	d.mu.Unlock()
	return stream.push(img)
}
