package camera

import (
	"errors"
	"image"
	"sync"
	"time"
)

var ErrStreamClosed = errors.New("camera stream closed")

// frameStream is a Stream fed by push. It holds only the newest undelivered
// frame so a slow consumer never sees stale video.
type frameStream struct {
	frames    chan Frame
	ready     chan struct{}
	readyOnce sync.Once
	onClose   func()

	mu     sync.Mutex
	closed bool
	seq    uint64
}

func newFrameStream(onClose func()) *frameStream {
	return &frameStream{
		frames:  make(chan Frame, 1),
		ready:   make(chan struct{}),
		onClose: onClose,
	}
}

func (s *frameStream) Ready() <-chan struct{} { return s.ready }

func (s *frameStream) Frames() <-chan Frame { return s.frames }

func (s *frameStream) push(img image.Image) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrStreamClosed
	}
	s.seq++
	f := Frame{Image: img, Seq: s.seq, At: time.Now()}

	select {
	case s.frames <- f:
	default:
		// Drop the undelivered frame in favour of the new one.
		select {
		case <-s.frames:
		default:
		}
		s.frames <- f
	}
	s.readyOnce.Do(func() { close(s.ready) })
	return f.Seq, nil
}

func (s *frameStream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *frameStream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.frames)
	s.mu.Unlock()

	if s.onClose != nil {
		s.onClose()
	}
	return nil
}
