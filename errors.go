package transcode

import (
	"errors"
	"fmt"
)

// ============================================================================
// Error Classification
// ============================================================================

// Common errors
var (
	// ErrNoVideoTrack is returned when the source container has no video stream.
	ErrNoVideoTrack = errors.New("no video track found")
	// ErrMuxerNotStarted is returned when a sample is written before Start.
	ErrMuxerNotStarted = errors.New("muxer not started")
	// ErrSinkOccupied is returned when a frame is published into a slot that
	// still holds an unconsumed frame.
	ErrSinkOccupied = errors.New("frame sink slot occupied")
	// ErrSinkClosed is returned when publishing after end-of-stream.
	ErrSinkClosed = errors.New("frame sink closed")
	// ErrSampleTooLarge is returned when a compressed sample does not fit the
	// caller's scratch buffer.
	ErrSampleTooLarge = errors.New("sample exceeds scratch buffer")
)

// ErrorKind classifies a transcode failure. The kind is assigned where the
// failure is detected and carried unchanged to the caller.
type ErrorKind int

const (
	// KindInvalidInput marks unusable sources: unreadable or unstageable
	// files, containers without a video track, zero-valued critical metadata.
	KindInvalidInput ErrorKind = iota
	// KindCompression marks codec, muxer, or pipeline failures while a run
	// is in flight. Partial output is deleted before the error surfaces.
	KindCompression
	// KindPostcondition marks a run that finished without error but left no
	// usable output file behind.
	KindPostcondition
	// KindUnexpected marks everything else.
	KindUnexpected
)

// String returns a human-readable name for the kind.
func (k ErrorKind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid input"
	case KindCompression:
		return "compression failure"
	case KindPostcondition:
		return "postcondition failure"
	case KindUnexpected:
		return "unexpected failure"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Error is the single error type returned by Transcoder.Transcode. Exactly
// one reaches the caller per invocation, classified at the point the
// failure was detected.
type Error struct {
	Kind ErrorKind
	Op   string // pipeline stage that detected the failure
	Err  error  // underlying cause, may be nil
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the classification of err. Errors that did not originate
// from this package report KindUnexpected.
func KindOf(err error) ErrorKind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return KindUnexpected
}
