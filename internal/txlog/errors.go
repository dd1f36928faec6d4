package txlog

import (
	"errors"
	"fmt"
)

var (
	// ErrNotYetAvailable is returned by Reader.Next when the next frame is not
	// completely present. It is the steady state of a tailed log, not a failure.
	ErrNotYetAvailable = errors.New("txlog: frame not yet available")

	// ErrMalformed is matched by every FrameError.
	ErrMalformed = errors.New("txlog: malformed frame")
)

// FrameError describes a frame that can never be decoded.
type FrameError struct {
	// Offset is the byte offset of the frame's first chunk.
	Offset int64

	// Reason describes what was wrong.
	Reason string
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("txlog: malformed frame at offset %d: %s", e.Offset, e.Reason)
}

// Is makes errors.Is(err, ErrMalformed) true for any FrameError.
func (e *FrameError) Is(target error) bool {
	return target == ErrMalformed
}

// IsMalformed reports whether err is (or wraps) a FrameError.
func IsMalformed(err error) bool {
	return errors.Is(err, ErrMalformed)
}
