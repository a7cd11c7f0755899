package transcode

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/asticode/go-astiav"
	"github.com/hashicorp/go-hclog"
)

// ============================================================================
// MP4 Muxer
// ============================================================================

// Muxer writes compressed samples into the output container. Writes are
// gated: tracks are registered first, Start opens the writer, and
// WriteSample refuses samples with ErrMuxerNotStarted until then. Tracks
// cannot be added after Start.
type Muxer interface {
	io.Closer
	// AddVideoTrack registers the encoder's output stream and returns its
	// track index.
	AddVideoTrack(format OutputFormat) (int, error)
	// AddAudioTrack registers a passthrough copy of the given source track
	// and returns its track index.
	AddAudioTrack(format TrackFormat) (int, error)
	// SetOrientationHint records the display rotation to stamp on the video
	// track. Must be called before AddVideoTrack.
	SetOrientationHint(degrees int) error
	Start() error
	// WriteSample writes data with its metadata to the given track.
	WriteSample(track int, data []byte, info SampleInfo) error
	// Stop finalizes the container index. Without it the file is unplayable.
	Stop() error
}

// mp4Muxer writes an MP4 file through libavformat.
type mp4Muxer struct {
	oc     *astiav.FormatContext
	pb     *astiav.IOContext
	pkt    *astiav.Packet
	path   string
	logger hclog.Logger

	rotation int
	started  bool
	stopped  bool
}

func newMP4Muxer(path string, logger hclog.Logger) (*mp4Muxer, error) {
	oc, err := astiav.AllocOutputFormatContext(nil, "mp4", path)
	if err != nil {
		return nil, fmt.Errorf("alloc output context: %w", err)
	}
	if oc == nil {
		return nil, errors.New("alloc output context")
	}
	pb, err := astiav.OpenIOContext(path, astiav.NewIOContextFlags(astiav.IOContextFlagWrite), nil, nil)
	if err != nil {
		oc.Free()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	oc.SetPb(pb)

	return &mp4Muxer{
		oc:     oc,
		pb:     pb,
		pkt:    astiav.AllocPacket(),
		path:   path,
		logger: logger.Named("muxer"),
	}, nil
}

// globalHeader reports whether the container wants codec parameter sets in
// the track header instead of the bitstream. Encoders must know this
// before they open.
func (m *mp4Muxer) globalHeader() bool {
	return m.oc.OutputFormat().Flags().Has(astiav.IOFormatFlagGlobalheader)
}

func (m *mp4Muxer) SetOrientationHint(degrees int) error {
	switch degrees {
	case 0, 90, 180, 270:
		m.rotation = degrees
	default:
		m.logger.Debug("discarding orientation hint outside quarter turns", "degrees", degrees)
		m.rotation = 0
	}
	return nil
}

func (m *mp4Muxer) AddVideoTrack(format OutputFormat) (int, error) {
	if m.started {
		return 0, errors.New("add video track: muxer already started")
	}
	if format.enc == nil {
		return 0, errors.New("add video track: format carries no encoder context")
	}
	os := m.oc.NewStream(nil)
	if os == nil {
		return 0, errors.New("add video track: new stream")
	}
	if err := format.enc.ToCodecParameters(os.CodecParameters()); err != nil {
		return 0, fmt.Errorf("add video track: apply encoder parameters: %w", err)
	}
	os.SetTimeBase(format.enc.TimeBase())
	if m.rotation != 0 {
		if err := os.Metadata().Set("rotate", strconv.Itoa(m.rotation), 0); err != nil {
			m.logger.Debug("orientation hint not written", "error", err)
		}
	}
	return os.Index(), nil
}

func (m *mp4Muxer) AddAudioTrack(format TrackFormat) (int, error) {
	if m.started {
		return 0, errors.New("add audio track: muxer already started")
	}
	if format.stream == nil {
		return 0, errors.New("add audio track: format carries no stream handle")
	}
	os := m.oc.NewStream(nil)
	if os == nil {
		return 0, errors.New("add audio track: new stream")
	}
	if err := format.stream.CodecParameters().Copy(os.CodecParameters()); err != nil {
		return 0, fmt.Errorf("add audio track: copy codec parameters: %w", err)
	}
	os.SetTimeBase(format.stream.TimeBase())
	return os.Index(), nil
}

func (m *mp4Muxer) Start() error {
	if m.started {
		return errors.New("muxer already started")
	}
	if len(m.oc.Streams()) == 0 {
		return errors.New("start muxer: no tracks registered")
	}
	if err := m.oc.WriteHeader(nil); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	m.started = true
	return nil
}

func (m *mp4Muxer) WriteSample(track int, data []byte, info SampleInfo) error {
	if !m.started {
		return ErrMuxerNotStarted
	}
	streams := m.oc.Streams()
	if track < 0 || track >= len(streams) {
		return fmt.Errorf("write sample: no track %d", track)
	}
	if err := m.pkt.FromData(data); err != nil {
		return fmt.Errorf("write sample: packet from data: %w", err)
	}

	ts := microsToTB(info.PTS, streams[track].TimeBase())
	m.pkt.SetStreamIndex(track)
	m.pkt.SetPts(ts)
	m.pkt.SetDts(ts)
	if info.Flags.Has(SampleFlagKeyFrame) {
		m.pkt.SetFlags(m.pkt.Flags().Add(astiav.PacketFlagKey))
	}

	err := m.oc.WriteInterleavedFrame(m.pkt)
	m.pkt.Unref()
	if err != nil {
		return fmt.Errorf("write sample: %w", err)
	}
	return nil
}

func (m *mp4Muxer) Stop() error {
	if !m.started || m.stopped {
		return nil
	}
	m.stopped = true
	if err := m.oc.WriteTrailer(); err != nil {
		return fmt.Errorf("write trailer: %w", err)
	}
	return nil
}

func (m *mp4Muxer) Close() error {
	var errs []error
	if m.pkt != nil {
		m.pkt.Free()
		m.pkt = nil
	}
	if m.pb != nil {
		if err := m.pb.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close io context: %w", err))
		}
		m.pb.Free()
		m.pb = nil
	}
	if m.oc != nil {
		m.oc.Free()
		m.oc = nil
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}
