package decode

import (
	"context"
	"image"

	"github.com/liyue201/goqr"
)

const formatQR = "QR_CODE"

// QRDecoder recognizes QR codes only, trading symbology coverage for speed.
type QRDecoder struct {
	cropFraction float64
	maxDim       int
}

func NewQRDecoder(cropFraction float64, maxDim int) *QRDecoder {
	return &QRDecoder{cropFraction: cropFraction, maxDim: maxDim}
}

func (d *QRDecoder) Decode(ctx context.Context, img image.Image) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	codes, err := goqr.Recognize(prepare(img, d.cropFraction, d.maxDim))
	if err != nil || len(codes) == 0 {
		return Result{}, ErrNoCode
	}
	for _, c := range codes {
		if len(c.Payload) > 0 {
			return Result{Text: string(c.Payload), Format: formatQR}, nil
		}
	}
	return Result{}, ErrNoCode
}
