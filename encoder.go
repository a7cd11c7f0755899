package transcode

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/asticode/go-astiav"
	"github.com/hashicorp/go-hclog"
)

// ============================================================================
// Video Encoder
// ============================================================================

// PollKind tags an encoder poll result.
type PollKind int

const (
	// PollEmpty means nothing was available; try again next iteration.
	PollEmpty PollKind = iota
	// PollFormatReady means the output format is finalized and the muxer
	// may register the video track. Emitted exactly once, before any sample.
	PollFormatReady
	// PollSample delivers one compressed sample.
	PollSample
)

// String returns a human-readable name for the kind.
func (k PollKind) String() string {
	switch k {
	case PollFormatReady:
		return "format-ready"
	case PollSample:
		return "sample"
	default:
		return "empty"
	}
}

// PollResult is the tagged result of one non-blocking encoder poll.
type PollResult struct {
	Kind PollKind
	// Format is set when Kind is PollFormatReady.
	Format OutputFormat
	// Sample is set when Kind is PollSample. Sample.Data is borrowed and
	// valid only until the next Poll call.
	Sample Sample
}

// OutputFormat describes the encoder's finalized output stream.
type OutputFormat struct {
	MimeType string
	Width    int
	Height   int

	enc *astiav.CodecContext
}

// Encoder consumes raw frames from its input surface and produces
// compressed samples. Polling never blocks; production is driven entirely
// by frames arriving on the surface.
type Encoder interface {
	io.Closer
	// InputSurface returns the sink that decoded frames are rendered into.
	InputSurface() FrameSink
	Start() error
	// Poll returns at most one event per call.
	Poll() (PollResult, error)
	Stop() error
}

// EncoderConfig sizes and tunes the H.264 encoder.
type EncoderConfig struct {
	Width            int
	Height           int
	Bitrate          int
	FrameRate        int
	KeyFrameInterval time.Duration
	Profile          H264Profile
}

// videoEncoder drives libx264 through libavcodec.
//
// The codec context runs on a microsecond time base so frames keep their
// source timing; FrameRate is the nominal rate used for rate control and
// GOP sizing only. Frames the codec refuses park in a pending slot and are
// resent on the next poll, after output has drained.
type videoEncoder struct {
	ctx    *astiav.CodecContext
	sink   *frameSlot
	scaler *frameScaler
	pkt    *astiav.Packet
	cfg    EncoderConfig
	logger hclog.Logger

	started   bool
	announced bool
	flushSent bool
	finished  bool
	pending   *astiav.Frame
}

func newVideoEncoder(cfg EncoderConfig, globalHeader bool, logger hclog.Logger) (*videoEncoder, error) {
	codec := astiav.FindEncoder(astiav.CodecIDH264)
	if codec == nil {
		return nil, errors.New("h264 encoder not available")
	}
	ctx := astiav.AllocCodecContext(codec)
	if ctx == nil {
		return nil, errors.New("alloc codec context")
	}

	ctx.SetWidth(cfg.Width)
	ctx.SetHeight(cfg.Height)
	ctx.SetPixelFormat(astiav.PixelFormatYuv420P)
	ctx.SetTimeBase(astiav.NewRational(1, 1_000_000))
	ctx.SetFramerate(astiav.NewRational(cfg.FrameRate, 1))
	ctx.SetBitRate(int64(cfg.Bitrate))
	ctx.SetGopSize(int(cfg.KeyFrameInterval.Seconds() * float64(cfg.FrameRate)))
	if globalHeader {
		ctx.SetFlags(ctx.Flags().Add(astiav.CodecContextFlagGlobalHeader))
	}

	opts := astiav.NewDictionary()
	defer opts.Free()
	_ = opts.Set("profile", cfg.Profile.String(), 0)
	_ = opts.Set("preset", "medium", 0)
	if err := ctx.Open(codec, opts); err != nil {
		ctx.Free()
		return nil, fmt.Errorf("open encoder %dx%d @ %d bps: %w", cfg.Width, cfg.Height, cfg.Bitrate, err)
	}

	return &videoEncoder{
		ctx:    ctx,
		sink:   &frameSlot{},
		scaler: newFrameScaler(cfg.Width, cfg.Height, astiav.PixelFormatYuv420P),
		pkt:    astiav.AllocPacket(),
		cfg:    cfg,
		logger: logger.Named("encoder"),
	}, nil
}

func (e *videoEncoder) InputSurface() FrameSink { return e.sink }

func (e *videoEncoder) Start() error {
	e.started = true
	return nil
}

func (e *videoEncoder) Poll() (PollResult, error) {
	if !e.started {
		return PollResult{}, errors.New("encoder not started")
	}
	if e.finished {
		return PollResult{Kind: PollEmpty}, nil
	}

	// Keep the input surface drained on every poll so the single slot is
	// free again before the decoder's next release.
	if err := e.feed(); err != nil {
		return PollResult{}, err
	}

	if !e.announced {
		e.announced = true
		return PollResult{
			Kind: PollFormatReady,
			Format: OutputFormat{
				MimeType: "video/avc",
				Width:    e.cfg.Width,
				Height:   e.cfg.Height,
				enc:      e.ctx,
			},
		}, nil
	}

	// The previous poll's sample bytes die here.
	e.pkt.Unref()
	if err := e.ctx.ReceivePacket(e.pkt); err != nil {
		if errors.Is(err, astiav.ErrEof) {
			e.finished = true
			return PollResult{Kind: PollSample, Sample: Sample{Flags: SampleFlagEndOfStream}}, nil
		}
		if errors.Is(err, astiav.ErrEagain) {
			return PollResult{Kind: PollEmpty}, nil
		}
		return PollResult{}, fmt.Errorf("receive packet: %w", err)
	}

	s := Sample{Data: e.pkt.Data(), PTS: e.pkt.Pts()}
	if e.pkt.Flags().Has(astiav.PacketFlagKey) {
		s.Flags |= SampleFlagKeyFrame
	}
	return PollResult{Kind: PollSample, Sample: s}, nil
}

// feed moves frames from the input surface into the codec: first any
// parked frame, then the slot, then the flush once the surface drained.
func (e *videoEncoder) feed() error {
	if e.pending != nil {
		sent, err := e.send(e.pending)
		if err != nil {
			e.pending = nil
			return err
		}
		if !sent {
			return nil
		}
		e.pending = nil
	}

	if raw, ok := e.sink.take(); ok {
		frame, owned, err := e.scaler.convert(raw.frame)
		if err != nil {
			raw.frame.Free()
			return err
		}
		if owned {
			raw.frame.Free()
		}
		frame.SetPts(raw.PTS)
		if _, err := e.send(frame); err != nil {
			return err
		}
	}

	if e.sink.drained() && !e.flushSent {
		err := e.ctx.SendFrame(nil)
		switch {
		case err == nil:
			e.flushSent = true
		case errors.Is(err, astiav.ErrEagain):
			// retried on a later poll once output drains
		default:
			return fmt.Errorf("send flush frame: %w", err)
		}
	}
	return nil
}

// send submits frame to the codec. A refusal parks the frame; in every
// other case the frame is freed here.
func (e *videoEncoder) send(frame *astiav.Frame) (bool, error) {
	if err := e.ctx.SendFrame(frame); err != nil {
		if errors.Is(err, astiav.ErrEagain) {
			e.pending = frame
			return false, nil
		}
		frame.Free()
		return false, fmt.Errorf("send frame: %w", err)
	}
	frame.Free()
	return true, nil
}

func (e *videoEncoder) Stop() error {
	e.started = false
	return nil
}

func (e *videoEncoder) Close() error {
	if e.pending != nil {
		e.pending.Free()
		e.pending = nil
	}
	if e.pkt != nil {
		e.pkt.Free()
		e.pkt = nil
	}
	if e.scaler != nil {
		e.scaler.close()
	}
	if e.ctx != nil {
		e.ctx.Free()
		e.ctx = nil
	}
	return nil
}
