//go:build gocv

package camera

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// probeLimit bounds the device indexes tried when no index is configured.
const probeLimit = 6

// CaptureDevice reads frames from a locally attached camera through OpenCV.
// Local cameras do not report which way they face, so the facing is taken
// from configuration.
type CaptureDevice struct {
	index  int
	facing Facing
	logger *slog.Logger
}

func NewCaptureDevice(index int, facing Facing, logger *slog.Logger) (Device, error) {
	return &CaptureDevice{index: index, facing: facing, logger: logger}, nil
}

func (d *CaptureDevice) Open(ctx context.Context, c Constraints) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.Facing != FacingAny && c.Facing != d.facing {
		return nil, fmt.Errorf("%w: facing %q unavailable", ErrOverconstrained, c.Facing)
	}

	vc, index, err := d.openCapture()
	if err != nil {
		return nil, err
	}

	if c.Width > 0 && c.Height > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(c.Width))
		vc.Set(gocv.VideoCaptureFrameHeight, float64(c.Height))
	}
	if c.ContinuousFocus {
		vc.Set(gocv.VideoCaptureAutoFocus, 1)
		if vc.Get(gocv.VideoCaptureAutoFocus) != 1 {
			d.closeCapture(vc)
			return nil, fmt.Errorf("%w: device %d has no autofocus control", ErrOverconstrained, index)
		}
	}

	readCtx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	stream := newFrameStream(func() {
		cancel()
		wg.Wait()
		d.closeCapture(vc)
	})

	wg.Add(1)
	go func() {
		defer wg.Done()
		d.readLoop(readCtx, vc, stream)
	}()

	d.logger.Info("opened capture device", "index", index)
	return stream, nil
}

func (d *CaptureDevice) openCapture() (*gocv.VideoCapture, int, error) {
	if d.index >= 0 {
		vc, err := gocv.OpenVideoCapture(d.index)
		if err != nil || vc == nil || !vc.IsOpened() {
			if vc != nil {
				d.closeCapture(vc)
			}
			return nil, -1, fmt.Errorf("open capture device %d: %v", d.index, err)
		}
		return vc, d.index, nil
	}

	for i := 0; i < probeLimit; i++ {
		vc, err := gocv.OpenVideoCapture(i)
		if err != nil || vc == nil || !vc.IsOpened() {
			if vc != nil {
				d.closeCapture(vc)
			}
			continue
		}
		mat := gocv.NewMat()
		ok := vc.Read(&mat)
		empty := !ok || mat.Empty()
		_ = mat.Close()
		if empty {
			d.closeCapture(vc)
			continue
		}
		return vc, i, nil
	}
	return nil, -1, fmt.Errorf("no usable capture device found")
}

func (d *CaptureDevice) readLoop(ctx context.Context, vc *gocv.VideoCapture, stream *frameStream) {
	mat := gocv.NewMat()
	defer func() { _ = mat.Close() }()

	for ctx.Err() == nil {
		if ok := vc.Read(&mat); !ok || mat.Empty() {
			select {
			case <-ctx.Done():
				return
			case <-time.After(33 * time.Millisecond):
			}
			continue
		}
		img, err := mat.ToImage()
		if err != nil {
			d.logger.Debug("failed to convert frame", "error", err)
			continue
		}
		if _, err := stream.push(img); err != nil {
			return
		}
	}
}

func (d *CaptureDevice) closeCapture(vc *gocv.VideoCapture) {
	if err := vc.Close(); err != nil {
		d.logger.Error("failed to close capture device", "error", err)
	}
}
