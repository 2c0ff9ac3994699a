//go:build !gocv

package camera

import "log/slog"

// NewCaptureDevice is only available in builds tagged gocv.
func NewCaptureDevice(index int, facing Facing, logger *slog.Logger) (Device, error) {
	return nil, ErrCaptureUnsupported
}
