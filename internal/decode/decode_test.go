package decode

import (
	"context"
	"image"
	"image/draw"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vbonduro/shopscan/internal/camera"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// qrFrame renders text as a size x size QR code at `at` on a white canvas.
func qrFrame(t *testing.T, text string, canvas, size int, at image.Point) image.Image {
	t.Helper()
	bm, err := qrcode.NewQRCodeWriter().Encode(text, gozxing.BarcodeFormat_QR_CODE, size, size, nil)
	require.NoError(t, err)

	dst := image.NewRGBA(image.Rect(0, 0, canvas, canvas))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	draw.Draw(dst, image.Rect(at.X, at.Y, at.X+size, at.Y+size), bm, image.Point{}, draw.Src)
	return dst
}

func blankFrame() image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, 320, 240))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	return dst
}

func TestBufferDecoderBlankFrameIsMiss(t *testing.T) {
	d := NewBufferDecoder(0.6, 1024)
	_, err := d.Decode(context.Background(), blankFrame())
	assert.ErrorIs(t, err, ErrNoCode)
}

func TestBufferDecoderReadsCenteredQR(t *testing.T) {
	d := NewBufferDecoder(0.6, 1024)
	frame := qrFrame(t, "A1B2C3-XYZ789", 400, 200, image.Pt(100, 100))

	res, err := d.Decode(context.Background(), frame)
	require.NoError(t, err)
	assert.Equal(t, "A1B2C3-XYZ789", res.Text)
	assert.Equal(t, "QR_CODE", res.Format)
}

func TestBufferDecoderIgnoresCodesOutsideRegion(t *testing.T) {
	d := NewBufferDecoder(0.6, 1024)
	frame := qrFrame(t, "CORNER", 600, 150, image.Pt(0, 0))

	_, err := d.Decode(context.Background(), frame)
	assert.ErrorIs(t, err, ErrNoCode)
}

func TestBufferDecoderFullFrameWhenCropDisabled(t *testing.T) {
	d := NewBufferDecoder(0, 1024)
	frame := qrFrame(t, "CORNER", 600, 150, image.Pt(0, 0))

	res, err := d.Decode(context.Background(), frame)
	require.NoError(t, err)
	assert.Equal(t, "CORNER", res.Text)
}

func TestBufferDecoderHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewBufferDecoder(0.6, 1024).Decode(ctx, blankFrame())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestQRDecoderReadsCenteredQR(t *testing.T) {
	d := NewQRDecoder(0.6, 1024)
	frame := qrFrame(t, "SOAP-001", 400, 200, image.Pt(100, 100))

	res, err := d.Decode(context.Background(), frame)
	require.NoError(t, err)
	assert.Equal(t, "SOAP-001", res.Text)
}

func TestQRDecoderBlankFrameIsMiss(t *testing.T) {
	_, err := NewQRDecoder(0.6, 1024).Decode(context.Background(), blankFrame())
	assert.ErrorIs(t, err, ErrNoCode)
}

func TestNewSelectsStrategy(t *testing.T) {
	tests := []struct {
		kind           string
		wantKind       string
		wantContinuous bool
	}{
		{"", KindBuffer, false},
		{KindBuffer, KindBuffer, false},
		{KindContinuous, KindContinuous, true},
	}
	for _, tt := range tests {
		t.Run(tt.wantKind, func(t *testing.T) {
			s, err := New(Options{Kind: tt.kind, CropFraction: 0.6}, discardLogger())
			require.NoError(t, err)
			assert.Equal(t, tt.wantKind, s.Kind)
			if tt.wantContinuous {
				assert.NotNil(t, s.Continuous)
				assert.Nil(t, s.Frame)
			} else {
				assert.NotNil(t, s.Frame)
				assert.Nil(t, s.Continuous)
			}
		})
	}
}

func TestNewRejectsUnknownStrategy(t *testing.T) {
	_, err := New(Options{Kind: "telepathy"}, discardLogger())
	assert.Error(t, err)
}

// scriptedDecoder reports a hit for the configured frame sequence numbers.
type scriptedDecoder struct {
	mu    sync.Mutex
	hits  map[uint64]string
	calls int
}

func (d *scriptedDecoder) Decode(_ context.Context, img image.Image) (Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	seq := uint64(img.Bounds().Dx())
	if text, ok := d.hits[seq]; ok {
		return Result{Text: text, Format: formatQR}, nil
	}
	return Result{}, ErrNoCode
}

// seqFrame encodes the sequence number in the image width so the scripted
// decoder can recognise it.
func seqFrame(seq uint64) camera.Frame {
	return camera.Frame{Image: image.NewGray(image.Rect(0, 0, int(seq), 1)), Seq: seq}
}

func TestWorkerReportsHits(t *testing.T) {
	dec := &scriptedDecoder{hits: map[uint64]string{2: "TWO"}}
	w := NewWorker(dec, discardLogger())

	frames := make(chan camera.Frame)
	var mu sync.Mutex
	var got []string
	done := make(chan error, 1)
	go func() {
		done <- w.Run(context.Background(), frames, func(r Result, f camera.Frame) {
			mu.Lock()
			got = append(got, r.Text)
			mu.Unlock()
		})
	}()

	frames <- seqFrame(1)
	frames <- seqFrame(2)
	close(frames)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after frames closed")
	}

	mu.Lock()
	defer mu.Unlock()
	// Sampling may skip frames, but a reported hit is always the scripted one.
	for _, text := range got {
		assert.Equal(t, "TWO", text)
	}
}

func TestWorkerStopsOnCancel(t *testing.T) {
	w := NewWorker(&scriptedDecoder{}, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	frames := make(chan camera.Frame)

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, frames, func(Result, camera.Frame) {}) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after cancel")
	}
}

func TestWorkerDecodesEveryFrameWhenConsumerKeepsUp(t *testing.T) {
	dec := &scriptedDecoder{hits: map[uint64]string{3: "THREE"}}
	w := NewWorker(dec, discardLogger())

	frames := make(chan camera.Frame)
	hits := make(chan Result, 4)
	go func() {
		_ = w.Run(context.Background(), frames, func(r Result, _ camera.Frame) { hits <- r })
	}()
	defer close(frames)

	for seq := uint64(1); seq <= 3; seq++ {
		frames <- seqFrame(seq)
		time.Sleep(10 * time.Millisecond)
	}

	select {
	case r := <-hits:
		assert.Equal(t, "THREE", r.Text)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a hit for frame 3")
	}
}
