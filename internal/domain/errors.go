package domain

import "errors"

var (
	ErrPermissionDenied  = errors.New("permission denied")
	ErrDeviceUnavailable = errors.New("camera unavailable")
	ErrNotFound          = errors.New("not found")
	ErrUnavailable       = errors.New("service unavailable")
	ErrTimeout           = errors.New("timed out")
	ErrValidation        = errors.New("invalid input")
	ErrCancelled         = errors.New("cancelled")
	ErrConflict          = errors.New("already exists")
)

// UnknownError carries a failure that does not map to any of the sentinel
// errors above.
type UnknownError struct {
	Message string
	Err     error
}

func (e *UnknownError) Error() string {
	return e.Message
}

func (e *UnknownError) Unwrap() error {
	return e.Err
}
