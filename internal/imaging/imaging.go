package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"net/http"

	"golang.org/x/image/draw"

	"github.com/vbonduro/shopscan/internal/domain"
)

// MaxDimension is the largest width or height handed to a decoder.
const MaxDimension = 1024

// JPEGQuality is the compression quality for stored snapshots.
const JPEGQuality = 85

// AllowedMIME lists the accepted frame formats.
var AllowedMIME = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
}

// MaxFrameSide bounds either dimension of an accepted frame. It is checked
// against the image header before any pixel data is decoded.
const MaxFrameSide = 4 * MaxDimension

var ErrUnsupportedFormat = errors.New("unsupported image format")

var ErrFrameTooLarge = fmt.Errorf("%w: frame dimensions exceed %dx%d", domain.ErrValidation, MaxFrameSide, MaxFrameSide)

// SniffMIME returns the detected MIME type of data and whether it is an
// accepted frame format. Client headers are never trusted.
func SniffMIME(data []byte) (string, bool) {
	detected := http.DetectContentType(data)
	return detected, AllowedMIME[detected]
}

// DecodeFrame validates data by sniffing its leading bytes and decodes it.
func DecodeFrame(data []byte) (image.Image, error) {
	detected, ok := SniffMIME(data)
	if !ok {
		return nil, fmt.Errorf("%w: %s (only JPEG and PNG accepted)", ErrUnsupportedFormat, detected)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding image header: %w", err)
	}
	if cfg.Width > MaxFrameSide || cfg.Height > MaxFrameSide {
		return nil, fmt.Errorf("%w: got %dx%d", ErrFrameTooLarge, cfg.Width, cfg.Height)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	return img, nil
}

// EncodeJPEG re-encodes img as JPEG.
func EncodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, fmt.Errorf("encoding JPEG: %w", err)
	}
	return buf.Bytes(), nil
}

// Downscale resizes img so neither dimension exceeds maxDim, preserving the
// aspect ratio. Images already within bounds are returned unchanged.
func Downscale(img image.Image, maxDim int) image.Image {
	bounds := img.Bounds()
	w := bounds.Dx()
	h := bounds.Dy()

	if maxDim <= 0 || (w <= maxDim && h <= maxDim) {
		return img
	}

	newW, newH := w, h
	if w > h {
		newW = maxDim
		newH = int(float64(h) * float64(maxDim) / float64(w))
	} else {
		newH = maxDim
		newW = int(float64(w) * float64(maxDim) / float64(h))
	}

	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}

// CropCenter returns the centered region of img covering fraction of each
// dimension, copied into a new image anchored at the origin. A fraction
// outside (0, 1) returns img unchanged.
func CropCenter(img image.Image, fraction float64) image.Image {
	if fraction <= 0 || fraction >= 1 {
		return img
	}

	bounds := img.Bounds()
	cw := int(float64(bounds.Dx()) * fraction)
	ch := int(float64(bounds.Dy()) * fraction)
	if cw < 1 || ch < 1 {
		return img
	}

	x0 := bounds.Min.X + (bounds.Dx()-cw)/2
	y0 := bounds.Min.Y + (bounds.Dy()-ch)/2

	dst := image.NewRGBA(image.Rect(0, 0, cw, ch))
	draw.Draw(dst, dst.Bounds(), img, image.Pt(x0, y0), draw.Src)
	return dst
}
