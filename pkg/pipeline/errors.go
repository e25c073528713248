package pipeline

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrIncomplete indicates that more bytes are needed before the header can be parsed.
	ErrIncomplete = errors.New("playcore: source header incomplete")

	// ErrEmptyData indicates a zero-length source.
	ErrEmptyData = errors.New("playcore: empty data provided")

	// ErrTooShort indicates a source too short to carry a container signature.
	ErrTooShort = errors.New("playcore: data too short")

	// ErrUnknownFormat indicates that no container signature matched.
	ErrUnknownFormat = errors.New("playcore: unknown container format")

	// ErrUnsupportedCodec indicates that no decode path can handle a codec.
	ErrUnsupportedCodec = errors.New("playcore: unsupported codec")

	// ErrNotConfigured indicates a decode call on an unconfigured bridge.
	ErrNotConfigured = errors.New("playcore: decoder not configured")

	// ErrDisposed indicates use of a disposed component.
	ErrDisposed = errors.New("playcore: disposed")

	// ErrInvalidState indicates a command that is not valid in the current state.
	ErrInvalidState = errors.New("playcore: invalid state")

	// ErrNoTrack indicates a reference to a track that does not exist.
	ErrNoTrack = errors.New("playcore: no such track")

	// ErrNeedsWholeSource indicates that the source must be transcoded and
	// therefore has to be loaded completely.
	ErrNeedsWholeSource = errors.New("playcore: transcoding requires the complete source")
)

// FormatError reports an unparseable or fully unsupported source.
// It is fatal to the current load.
type FormatError struct {
	Op  string
	Err error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("format error: %s: %v", e.Op, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

// NewFormatError wraps err as a FormatError.
func NewFormatError(op string, err error) error {
	return &FormatError{Op: op, Err: err}
}

// DecodeError reports the failure of a single sample.
type DecodeError struct {
	TrackID uint32
	PTS     time.Duration
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode error: track %d at %v: %v", e.TrackID, e.PTS, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// InitializationError reports an unavailable decode service or presentation sink.
type InitializationError struct {
	Component string
	Err       error
}

func (e *InitializationError) Error() string {
	return fmt.Sprintf("initialization error: %s: %v", e.Component, e.Err)
}

func (e *InitializationError) Unwrap() error { return e.Err }

// SeekError reports a failed seek. RolledBack is true when the previous
// state was restored.
type SeekError struct {
	Target     time.Duration
	RolledBack bool
	Err        error
}

func (e *SeekError) Error() string {
	return fmt.Sprintf("seek error: target %v: %v", e.Target, e.Err)
}

func (e *SeekError) Unwrap() error { return e.Err }

// IsFormatError reports whether err is or wraps a FormatError.
func IsFormatError(err error) bool {
	var fe *FormatError
	return errors.As(err, &fe)
}
