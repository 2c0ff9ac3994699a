// Package decode turns camera frames into barcode payloads. Three strategies
// exist and one is chosen per deployment.
package decode

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"

	"github.com/vbonduro/shopscan/internal/camera"
	"github.com/vbonduro/shopscan/internal/imaging"
)

const (
	KindNative     = "native"
	KindBuffer     = "buffer"
	KindContinuous = "continuous"
)

// ErrNoCode reports a frame without a readable symbol. It is not a failure.
var ErrNoCode = errors.New("no code found in frame")

// ErrNativeUnavailable is returned when the native detector was requested
// from a binary built without OpenCV.
var ErrNativeUnavailable = errors.New("native detector requires a build with the gocv tag")

type Result struct {
	Text   string `json:"text"`
	Format string `json:"format"`
}

// FrameDecoder makes one decode attempt per call.
type FrameDecoder interface {
	Decode(ctx context.Context, img image.Image) (Result, error)
}

// ContinuousDecoder samples frames on its own schedule and reports every
// symbol it reads until ctx is done or frames is closed.
type ContinuousDecoder interface {
	Run(ctx context.Context, frames <-chan camera.Frame, onResult func(Result, camera.Frame)) error
}

// Strategy holds exactly one of Frame or Continuous.
type Strategy struct {
	Kind       string
	Frame      FrameDecoder
	Continuous ContinuousDecoder
}

type Options struct {
	Kind         string
	CropFraction float64
	MaxDimension int
}

// New builds the strategy named by opts.Kind.
func New(opts Options, logger *slog.Logger) (*Strategy, error) {
	if opts.MaxDimension <= 0 {
		opts.MaxDimension = imaging.MaxDimension
	}

	switch opts.Kind {
	case KindBuffer, "":
		return &Strategy{
			Kind:  KindBuffer,
			Frame: NewBufferDecoder(opts.CropFraction, opts.MaxDimension),
		}, nil
	case KindNative:
		d, err := newNativeDetector(opts)
		if err != nil {
			return nil, err
		}
		return &Strategy{Kind: KindNative, Frame: d}, nil
	case KindContinuous:
		qr := NewQRDecoder(opts.CropFraction, opts.MaxDimension)
		return &Strategy{
			Kind:       KindContinuous,
			Continuous: NewWorker(qr, logger),
		}, nil
	default:
		return nil, fmt.Errorf("unknown decode strategy %q", opts.Kind)
	}
}

// prepare crops to the centered region of interest and bounds the size
// handed to a decoder.
func prepare(img image.Image, cropFraction float64, maxDim int) image.Image {
	return imaging.Downscale(imaging.CropCenter(img, cropFraction), maxDim)
}
