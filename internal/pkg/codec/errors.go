package codec

import "github.com/pkg/errors"

// ErrFrameTooLarge is returned when a length prefix exceeds the configured maximum.
var ErrFrameTooLarge = errors.New("frame too large")

// ErrEmptyFrame is returned for a zero length prefix.
var ErrEmptyFrame = errors.New("empty frame")

// ErrMalformedEnvelope is returned when a frame body is not a valid envelope.
var ErrMalformedEnvelope = errors.New("malformed envelope")

// FrameError reports a frame that cannot be decoded. The stream is out of sync
// after a FrameError, so the connection carrying it must be closed.
type FrameError struct {
	Err error
}

func (e *FrameError) Error() string {
	return "frame error: " + e.Err.Error()
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

func frameError(err error, msg string) error {
	return &FrameError{Err: errors.Wrap(err, msg)}
}
