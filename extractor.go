package transcode

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/asticode/go-astiav"
)

// ============================================================================
// Demuxing
// ============================================================================

// TrackInfo identifies one elementary stream in a container.
type TrackInfo struct {
	Index    int
	Kind     TrackKind
	MimeType string
}

// TrackFormat carries the codec parameters of a track. The embedded stream
// handle stays owned by the extractor that produced the format and is only
// set for container-backed tracks.
type TrackFormat struct {
	TrackInfo
	Width     int
	Height    int
	FrameRate float64

	stream *astiav.Stream
}

// Extractor is a per-track demuxing cursor. One extractor serves one
// selected track; concurrent cursors over the same file each open their
// own extractor.
type Extractor interface {
	io.Closer
	// Tracks lists the container's streams in container order.
	Tracks() []TrackInfo
	// Select restricts ReadSample to the given track index.
	Select(index int) error
	// Format returns the codec parameters of the given track.
	Format(index int) (TrackFormat, error)
	// ReadSample copies the selected track's next compressed sample into
	// buf and advances the cursor. io.EOF marks stream end. A sample larger
	// than buf fails with ErrSampleTooLarge and is dropped.
	ReadSample(buf []byte) (SampleInfo, error)
}

// SelectTracks scans tracks in container order and picks the first video
// and the first audio track, classified by MIME prefix. A missing video
// track is an error; missing audio is reported by audio.Index == -1.
func SelectTracks(tracks []TrackInfo) (video, audio TrackInfo, err error) {
	video.Index = -1
	audio.Index = -1
	for _, t := range tracks {
		switch TrackKindOf(t.MimeType) {
		case TrackKindVideo:
			if video.Index < 0 {
				video = t
			}
		case TrackKindAudio:
			if audio.Index < 0 {
				audio = t
			}
		}
	}
	if video.Index < 0 {
		return video, audio, ErrNoVideoTrack
	}
	return video, audio, nil
}

// fileExtractor demuxes a local file through libavformat.
type fileExtractor struct {
	fc       *astiav.FormatContext
	pkt      *astiav.Packet
	tracks   []TrackInfo
	selected int
}

// openExtractor opens path for demuxing.
func openExtractor(path string) (*fileExtractor, error) {
	fc := astiav.AllocFormatContext()
	if fc == nil {
		return nil, errors.New("alloc format context")
	}
	if err := fc.OpenInput(path, nil, nil); err != nil {
		fc.Free()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if err := fc.FindStreamInfo(nil); err != nil {
		fc.CloseInput()
		return nil, fmt.Errorf("find stream info: %w", err)
	}

	x := &fileExtractor{fc: fc, pkt: astiav.AllocPacket(), selected: -1}
	for _, s := range fc.Streams() {
		par := s.CodecParameters()
		x.tracks = append(x.tracks, TrackInfo{
			Index:    s.Index(),
			Kind:     kindOfMediaType(par.MediaType()),
			MimeType: mimeTypeOf(par.MediaType(), par.CodecID()),
		})
	}
	return x, nil
}

func (x *fileExtractor) Tracks() []TrackInfo { return x.tracks }

func (x *fileExtractor) Select(index int) error {
	if index < 0 || index >= len(x.tracks) {
		return fmt.Errorf("select track %d: out of range", index)
	}
	x.selected = index
	return nil
}

func (x *fileExtractor) Format(index int) (TrackFormat, error) {
	streams := x.fc.Streams()
	if index < 0 || index >= len(streams) {
		return TrackFormat{}, fmt.Errorf("format of track %d: out of range", index)
	}
	s := streams[index]
	par := s.CodecParameters()
	f := TrackFormat{
		TrackInfo: x.tracks[index],
		Width:     par.Width(),
		Height:    par.Height(),
		stream:    s,
	}
	if r := s.AvgFrameRate(); r.Num() > 0 && r.Den() > 0 {
		f.FrameRate = float64(r.Num()) / float64(r.Den())
	}
	return f, nil
}

func (x *fileExtractor) ReadSample(buf []byte) (SampleInfo, error) {
	if x.selected < 0 {
		return SampleInfo{}, errors.New("read sample: no track selected")
	}
	for {
		if err := x.fc.ReadFrame(x.pkt); err != nil {
			if errors.Is(err, astiav.ErrEof) || errors.Is(err, io.EOF) {
				return SampleInfo{}, io.EOF
			}
			return SampleInfo{}, fmt.Errorf("read sample: %w", err)
		}
		if x.pkt.StreamIndex() != x.selected {
			x.pkt.Unref()
			continue
		}

		data := x.pkt.Data()
		if len(data) > len(buf) {
			size := len(data)
			x.pkt.Unref()
			return SampleInfo{}, fmt.Errorf("%w: sample %d bytes, scratch %d bytes", ErrSampleTooLarge, size, len(buf))
		}
		info := SampleInfo{
			Size: copy(buf, data),
			PTS:  x.samplePTS(),
		}
		if x.pkt.Flags().Has(astiav.PacketFlagKey) {
			info.Flags |= SampleFlagKeyFrame
		}
		x.pkt.Unref()
		return info, nil
	}
}

// samplePTS converts the current packet's timestamp to microseconds,
// falling back to the decode timestamp when the presentation one is unset.
func (x *fileExtractor) samplePTS() int64 {
	pts := x.pkt.Pts()
	if pts < 0 {
		pts = x.pkt.Dts()
	}
	if pts < 0 {
		return 0
	}
	return tbToMicros(pts, x.fc.Streams()[x.selected].TimeBase())
}

func (x *fileExtractor) Close() error {
	if x.pkt != nil {
		x.pkt.Free()
		x.pkt = nil
	}
	if x.fc != nil {
		x.fc.CloseInput()
		x.fc = nil
	}
	return nil
}

// tbToMicros rescales ts from the given time base to microseconds.
func tbToMicros(ts int64, tb astiav.Rational) int64 {
	if tb.Den() == 0 {
		return ts
	}
	return int64(math.Round(float64(ts) * float64(tb.Num()) * 1e6 / float64(tb.Den())))
}

// microsToTB rescales a microsecond timestamp to the given time base.
func microsToTB(us int64, tb astiav.Rational) int64 {
	if tb.Num() == 0 {
		return us
	}
	return int64(math.Round(float64(us) * float64(tb.Den()) / (float64(tb.Num()) * 1e6)))
}
