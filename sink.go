package transcode

import "github.com/asticode/go-astiav"

// ============================================================================
// Decoder-to-Encoder Hand-off Surface
// ============================================================================

// RawFrame is an opaque decoded-frame token passed from decoder to encoder.
// The pixel data lives in codec-owned memory; ownership moves with the
// token, and whoever holds it last frees it.
type RawFrame struct {
	// PTS is the presentation timestamp in microseconds.
	PTS int64

	frame *astiav.Frame
}

// FrameSink is the hand-off surface between decoder output and encoder
// input: a single-slot producer/consumer pipe.
//
// The coordinator drains the slot between publishes, so Publish never
// waits; publishing into an occupied slot is a sequencing bug and fails
// loudly with ErrSinkOccupied.
type FrameSink interface {
	// Publish hands one decoded frame to the consumer. On success the sink
	// owns the frame.
	Publish(f RawFrame) error
	// SignalEnd tells the consumer that no further frames will arrive.
	SignalEnd()
	// Release drops any undelivered frame and closes the surface.
	Release()
}

// frameSlot is the FrameSink feeding the libav encoder. It is not safe for
// concurrent use; the pipeline drives producer and consumer from one
// goroutine.
type frameSlot struct {
	f     *RawFrame
	ended bool
}

func (s *frameSlot) Publish(f RawFrame) error {
	if s.ended {
		return ErrSinkClosed
	}
	if s.f != nil {
		return ErrSinkOccupied
	}
	held := f
	s.f = &held
	return nil
}

func (s *frameSlot) SignalEnd() { s.ended = true }

func (s *frameSlot) Release() {
	if s.f != nil && s.f.frame != nil {
		s.f.frame.Free()
	}
	s.f = nil
	s.ended = true
}

// take removes and returns the pending frame, if any. The caller assumes
// ownership of the frame.
func (s *frameSlot) take() (RawFrame, bool) {
	if s.f == nil {
		return RawFrame{}, false
	}
	f := *s.f
	s.f = nil
	return f, true
}

// drained reports whether the stream has ended and every published frame
// has been taken.
func (s *frameSlot) drained() bool { return s.ended && s.f == nil }
