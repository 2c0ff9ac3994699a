package decode

import (
	"context"
	"errors"
	"log/slog"

	"github.com/vbonduro/shopscan/internal/camera"
	"golang.org/x/sync/errgroup"
)

// Worker is a ContinuousDecoder. A sampler goroutine keeps only the newest
// camera frame and a decode goroutine works through samples as fast as the
// decoder allows, so decoding never stalls the camera.
type Worker struct {
	decoder FrameDecoder
	logger  *slog.Logger
}

func NewWorker(decoder FrameDecoder, logger *slog.Logger) *Worker {
	return &Worker{decoder: decoder, logger: logger}
}

func (w *Worker) Run(ctx context.Context, frames <-chan camera.Frame, onResult func(Result, camera.Frame)) error {
	g, ctx := errgroup.WithContext(ctx)
	samples := make(chan camera.Frame, 1)

	g.Go(func() error {
		defer close(samples)
		for {
			select {
			case <-ctx.Done():
				return nil
			case f, ok := <-frames:
				if !ok {
					return nil
				}
				select {
				case samples <- f:
				default:
					select {
					case <-samples:
					default:
					}
					samples <- f
				}
			}
		}
	})

	g.Go(func() error {
		for f := range samples {
			if ctx.Err() != nil {
				return nil
			}
			res, err := w.decoder.Decode(ctx, f.Image)
			if err != nil {
				if !errors.Is(err, ErrNoCode) && ctx.Err() == nil {
					w.logger.Debug("continuous decode failed", "seq", f.Seq, "error", err)
				}
				continue
			}
			onResult(res, f)
		}
		return nil
	})

	return g.Wait()
}
