package decode

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/oned"
	"github.com/makiuchi-d/gozxing/qrcode"
)

// BufferDecoder decodes still frames in software with the zxing readers.
type BufferDecoder struct {
	cropFraction float64
	maxDim       int

	mu      sync.Mutex
	readers []gozxing.Reader
	hints   map[gozxing.DecodeHintType]interface{}
}

var linearFormats = []gozxing.BarcodeFormat{
	gozxing.BarcodeFormat_CODE_128,
	gozxing.BarcodeFormat_CODE_39,
	gozxing.BarcodeFormat_EAN_13,
	gozxing.BarcodeFormat_EAN_8,
	gozxing.BarcodeFormat_UPC_A,
	gozxing.BarcodeFormat_UPC_E,
	gozxing.BarcodeFormat_ITF,
}

func linearReaders() []gozxing.Reader {
	return []gozxing.Reader{
		oned.NewCode128Reader(),
		oned.NewCode39Reader(),
		oned.NewEAN13Reader(),
		oned.NewEAN8Reader(),
		oned.NewUPCAReader(),
		oned.NewUPCEReader(),
		oned.NewITFReader(),
	}
}

// NewBufferDecoder reads QR codes and the common linear symbologies.
func NewBufferDecoder(cropFraction float64, maxDim int) *BufferDecoder {
	readers := append([]gozxing.Reader{qrcode.NewQRCodeReader()}, linearReaders()...)
	formats := append([]gozxing.BarcodeFormat{gozxing.BarcodeFormat_QR_CODE}, linearFormats...)
	return newBufferDecoder(cropFraction, maxDim, readers, formats)
}

// newLinearDecoder reads linear symbologies only.
func newLinearDecoder(cropFraction float64, maxDim int) *BufferDecoder {
	return newBufferDecoder(cropFraction, maxDim, linearReaders(), linearFormats)
}

func newBufferDecoder(cropFraction float64, maxDim int, readers []gozxing.Reader, formats []gozxing.BarcodeFormat) *BufferDecoder {
	return &BufferDecoder{
		cropFraction: cropFraction,
		maxDim:       maxDim,
		readers:      readers,
		hints: map[gozxing.DecodeHintType]interface{}{
			gozxing.DecodeHintType_POSSIBLE_FORMATS: formats,
			gozxing.DecodeHintType_TRY_HARDER:       true,
		},
	}
}

func (d *BufferDecoder) Decode(ctx context.Context, img image.Image) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	bmp, err := gozxing.NewBinaryBitmapFromImage(prepare(img, d.cropFraction, d.maxDim))
	if err != nil {
		return Result{}, fmt.Errorf("failed to binarize frame: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for _, reader := range d.readers {
		res, err := reader.Decode(bmp, d.hints)
		reader.Reset()
		if err == nil && res != nil && res.GetText() != "" {
			return Result{Text: res.GetText(), Format: res.GetBarcodeFormat().String()}, nil
		}
	}
	return Result{}, ErrNoCode
}
