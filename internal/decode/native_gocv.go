//go:build gocv

package decode

import (
	"context"
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// NativeDetector reads QR codes with the OpenCV detector and falls back to
// the zxing linear readers for one-dimensional symbols.
type NativeDetector struct {
	mu     sync.Mutex
	det    gocv.QRCodeDetector
	linear *BufferDecoder
}

func newNativeDetector(opts Options) (FrameDecoder, error) {
	return &NativeDetector{
		det:    gocv.NewQRCodeDetector(),
		linear: newLinearDecoder(opts.CropFraction, opts.MaxDimension),
	}, nil
}

func (d *NativeDetector) Decode(ctx context.Context, img image.Image) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	text, err := d.detectQR(img)
	if err != nil {
		return Result{}, err
	}
	if text != "" {
		return Result{Text: text, Format: formatQR}, nil
	}
	return d.linear.Decode(ctx, img)
}

func (d *NativeDetector) detectQR(img image.Image) (string, error) {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return "", fmt.Errorf("failed to convert frame: %w", err)
	}
	defer func() { _ = mat.Close() }()

	pts := gocv.NewMat()
	straight := gocv.NewMat()
	defer func() { _ = pts.Close() }()
	defer func() { _ = straight.Close() }()

	d.mu.Lock()
	defer d.mu.Unlock()
	return d.det.DetectAndDecode(mat, &pts, &straight), nil
}

func (d *NativeDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.det.Close()
}
