package transcode

import "strings"

// ============================================================================
// Compressed Samples
// ============================================================================

// SampleFlags mark properties of one compressed sample.
type SampleFlags uint32

const (
	// SampleFlagKeyFrame marks a sync point.
	SampleFlagKeyFrame SampleFlags = 1 << iota
	// SampleFlagCodecConfig marks codec initialization data rather than media.
	// Config samples are consumed by the muxer at track registration and must
	// not be written as media.
	SampleFlagCodecConfig
	// SampleFlagEndOfStream marks the final, usually empty, sample of a stream.
	SampleFlagEndOfStream
)

// Has reports whether flag is set.
func (f SampleFlags) Has(flag SampleFlags) bool { return f&flag != 0 }

// String returns the set flags as a pipe-separated list.
func (f SampleFlags) String() string {
	var parts []string
	if f.Has(SampleFlagKeyFrame) {
		parts = append(parts, "key")
	}
	if f.Has(SampleFlagCodecConfig) {
		parts = append(parts, "config")
	}
	if f.Has(SampleFlagEndOfStream) {
		parts = append(parts, "eos")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// SampleInfo describes one compressed sample: its byte size, presentation
// timestamp, and flags. Timestamps are in microseconds throughout the
// package; demuxers and muxers convert at the container boundary.
type SampleInfo struct {
	Size  int
	PTS   int64
	Flags SampleFlags
}

// Sample couples payload bytes with their metadata. Data is borrowed from
// the producing codec and valid only until that producer is advanced again.
// Callers that need the bytes longer must copy them.
type Sample struct {
	Data  []byte
	PTS   int64
	Flags SampleFlags
}

// IsKeyFrame reports whether the sample is a sync point.
func (s Sample) IsKeyFrame() bool { return s.Flags.Has(SampleFlagKeyFrame) }

// IsEndOfStream reports whether the sample terminates its stream.
func (s Sample) IsEndOfStream() bool { return s.Flags.Has(SampleFlagEndOfStream) }
