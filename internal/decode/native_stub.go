//go:build !gocv

package decode

func newNativeDetector(Options) (FrameDecoder, error) {
	return nil, ErrNativeUnavailable
}
