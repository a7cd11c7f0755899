package transcode

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/asticode/go-astiav"
)

// ============================================================================
// Metadata Probe
// ============================================================================

// VideoInfo is an immutable snapshot of the source characteristics the
// pipeline plans around. Probe fills unknown optional fields with their
// documented defaults.
type VideoInfo struct {
	Width  int
	Height int
	// Duration of the container.
	Duration time.Duration
	// FrameRate in frames per second. 30 when the container does not say.
	FrameRate float64
	// Bitrate in bits per second. 0 when unknown.
	Bitrate int
	// Rotation in degrees, one of 0, 90, 180, 270. Other values normalize
	// to 0.
	Rotation int
}

// TotalFrames estimates the frame count from duration and frame rate.
// It returns 0 when the estimate is impossible.
func (v VideoInfo) TotalFrames() int64 {
	if v.Duration <= 0 || v.FrameRate <= 0 {
		return 0
	}
	return int64(v.Duration.Seconds() * v.FrameRate)
}

// defaultFrameRate stands in when the container reports no usable rate.
const defaultFrameRate = 30.0

// Probe extracts VideoInfo from the file at path. The probing handle is
// released before returning, on failure as well. A source with zero width,
// height, or duration is rejected as invalid input.
func Probe(path string) (VideoInfo, error) {
	fc := astiav.AllocFormatContext()
	if fc == nil {
		return VideoInfo{}, &Error{Kind: KindUnexpected, Op: "probe", Err: errors.New("alloc format context")}
	}
	if err := fc.OpenInput(path, nil, nil); err != nil {
		fc.Free()
		return VideoInfo{}, &Error{Kind: KindInvalidInput, Op: "probe", Err: fmt.Errorf("open %s: %w", path, err)}
	}
	defer fc.CloseInput()

	if err := fc.FindStreamInfo(nil); err != nil {
		return VideoInfo{}, &Error{Kind: KindInvalidInput, Op: "probe", Err: fmt.Errorf("find stream info: %w", err)}
	}

	info := VideoInfo{FrameRate: defaultFrameRate}
	for _, s := range fc.Streams() {
		par := s.CodecParameters()
		if par.MediaType() != astiav.MediaTypeVideo {
			continue
		}
		info.Width = par.Width()
		info.Height = par.Height()
		if r := s.AvgFrameRate(); r.Num() > 0 && r.Den() > 0 {
			info.FrameRate = float64(r.Num()) / float64(r.Den())
		}
		info.Rotation = rotationOf(s)
		if d := s.Duration(); d > 0 {
			info.Duration = time.Duration(tbToMicros(d, s.TimeBase())) * time.Microsecond
		}
		break
	}

	// Container-level values win over per-stream ones when present.
	if d := fc.Duration(); d > 0 {
		info.Duration = time.Duration(d) * time.Microsecond
	}
	if br := fc.BitRate(); br > 0 {
		info.Bitrate = int(br)
	}

	if err := info.validate(); err != nil {
		return VideoInfo{}, &Error{Kind: KindInvalidInput, Op: "probe", Err: err}
	}
	return info, nil
}

// validate rejects snapshots the pipeline cannot plan around.
func (v VideoInfo) validate() error {
	if v.Width <= 0 || v.Height <= 0 {
		return fmt.Errorf("video geometry %dx%d unusable", v.Width, v.Height)
	}
	if v.Duration <= 0 {
		return errors.New("container reports no duration")
	}
	return nil
}

// rotationOf reads the stream's rotate hint. Values outside the four
// quarter turns normalize to 0.
func rotationOf(s *astiav.Stream) int {
	e := s.Metadata().Get("rotate", nil, 0)
	if e == nil {
		return 0
	}
	deg, err := strconv.Atoi(e.Value())
	if err != nil {
		return 0
	}
	return normalizeRotation(deg)
}

// normalizeRotation maps a degree reading onto the four quarter turns,
// treating anything else as unrotated.
func normalizeRotation(deg int) int {
	deg = ((deg % 360) + 360) % 360
	switch deg {
	case 0, 90, 180, 270:
		return deg
	}
	return 0
}
