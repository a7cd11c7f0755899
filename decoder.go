package transcode

import (
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/asticode/go-astiav"
	"github.com/hashicorp/go-hclog"
)

// ============================================================================
// Video Decoder
// ============================================================================

// InputSlot is a writable decoder input buffer. The slot is valid until it
// is queued back; queueing transfers Data[:Size] to the decoder.
type InputSlot struct {
	Data []byte
}

// OutputFrame is a decoded frame pending release. A frame flagged
// end-of-stream carries no pixels.
type OutputFrame struct {
	// PTS is the presentation timestamp in microseconds.
	PTS   int64
	Flags SampleFlags

	frame *astiav.Frame
}

// Decoder turns compressed video samples into raw frames and hands them to
// a FrameSink. The shape mirrors an asynchronous codec queue: input slots
// are dequeued with a bounded wait, output frames are dequeued and then
// released either toward the sink (render) or back to the pool.
type Decoder interface {
	io.Closer
	Start() error
	// DequeueInput returns a writable input slot. ok is false when no slot
	// freed up within wait; that is a no-op for the caller, not an error.
	DequeueInput(wait time.Duration) (slot InputSlot, ok bool, err error)
	// QueueInput submits slot.Data[:info.Size] with its metadata. An
	// end-of-stream flagged submission closes the input side.
	QueueInput(slot InputSlot, info SampleInfo) error
	// DequeueOutput polls for the next decoded frame, waiting at most wait.
	// ok is false when nothing was ready in time.
	DequeueOutput(wait time.Duration) (frame OutputFrame, ok bool, err error)
	// ReleaseOutput returns frame to the decoder. With render set the frame
	// is first pushed into the sink.
	ReleaseOutput(frame OutputFrame, render bool) error
	Stop() error
}

// pendingKind tracks a submission the codec refused and the decoder must
// retry once output drains.
type pendingKind int

const (
	pendingNone pendingKind = iota
	pendingPacket
	pendingFlush
)

// streamDecoder decodes one elementary stream through libavcodec.
//
// libav codecs are synchronous: a refused packet only becomes sendable
// after output is received, so the bounded waits never actually sleep
// here. Refused submissions park in a pending slot and are retried at the
// next dequeue, which keeps sample hand-off lossless.
type streamDecoder struct {
	ctx     *astiav.CodecContext
	sink    FrameSink
	pkt     *astiav.Packet
	scratch []byte
	logger  hclog.Logger

	pending       pendingKind
	started       bool
	eofSeen       bool
	lastPTS       int64
	frameInterval int64
}

// minInputSlotSize keeps the input slot usable for low-resolution sources.
const minInputSlotSize = 1 << 20

// newStreamDecoder opens a decoder for the track described by format. The
// input slot is sized to the raw-frame bound of the track geometry; a
// compressed sample beyond that is treated as corrupt.
func newStreamDecoder(format TrackFormat, sink FrameSink, logger hclog.Logger) (*streamDecoder, error) {
	if format.stream == nil {
		return nil, errors.New("track format carries no stream handle")
	}
	par := format.stream.CodecParameters()
	codec := astiav.FindDecoder(par.CodecID())
	if codec == nil {
		return nil, fmt.Errorf("no decoder for %s", format.MimeType)
	}
	ctx := astiav.AllocCodecContext(codec)
	if ctx == nil {
		return nil, errors.New("alloc codec context")
	}
	if err := par.ToCodecContext(ctx); err != nil {
		ctx.Free()
		return nil, fmt.Errorf("apply codec parameters: %w", err)
	}
	if err := ctx.Open(codec, nil); err != nil {
		ctx.Free()
		return nil, fmt.Errorf("open decoder %s: %w", codec.Name(), err)
	}

	size := par.Width() * par.Height() * 3
	if size < minInputSlotSize {
		size = minInputSlotSize
	}

	rate := format.FrameRate
	if rate <= 0 {
		rate = defaultFrameRate
	}

	return &streamDecoder{
		ctx:           ctx,
		sink:          sink,
		pkt:           astiav.AllocPacket(),
		scratch:       make([]byte, size),
		logger:        logger.Named("decoder"),
		frameInterval: int64(math.Round(1e6 / rate)),
	}, nil
}

func (d *streamDecoder) Start() error {
	d.started = true
	return nil
}

func (d *streamDecoder) DequeueInput(wait time.Duration) (InputSlot, bool, error) {
	_ = wait
	if !d.started {
		return InputSlot{}, false, errors.New("decoder not started")
	}
	if err := d.retryPending(); err != nil {
		return InputSlot{}, false, err
	}
	if d.pending != pendingNone {
		return InputSlot{}, false, nil
	}
	return InputSlot{Data: d.scratch}, true, nil
}

func (d *streamDecoder) QueueInput(slot InputSlot, info SampleInfo) error {
	if !d.started {
		return errors.New("decoder not started")
	}
	if info.Flags.Has(SampleFlagEndOfStream) {
		return d.sendFlush()
	}

	if err := d.pkt.FromData(slot.Data[:info.Size]); err != nil {
		return fmt.Errorf("packet from data: %w", err)
	}
	d.pkt.SetPts(info.PTS)
	d.pkt.SetDts(info.PTS)
	if info.Flags.Has(SampleFlagKeyFrame) {
		d.pkt.SetFlags(d.pkt.Flags().Add(astiav.PacketFlagKey))
	}

	if err := d.ctx.SendPacket(d.pkt); err != nil {
		if errors.Is(err, astiav.ErrEagain) {
			d.pending = pendingPacket
			return nil
		}
		d.pkt.Unref()
		return fmt.Errorf("send packet: %w", err)
	}
	d.pkt.Unref()
	return nil
}

// sendFlush closes the decoder's input side. A refusal parks the flush for
// retry rather than losing it.
func (d *streamDecoder) sendFlush() error {
	err := d.ctx.SendPacket(nil)
	switch {
	case err == nil:
		d.pending = pendingNone
	case errors.Is(err, astiav.ErrEagain):
		d.pending = pendingFlush
	default:
		return fmt.Errorf("send flush packet: %w", err)
	}
	return nil
}

// retryPending resubmits whatever the codec previously refused.
func (d *streamDecoder) retryPending() error {
	switch d.pending {
	case pendingPacket:
		if err := d.ctx.SendPacket(d.pkt); err != nil {
			if errors.Is(err, astiav.ErrEagain) {
				return nil
			}
			d.pkt.Unref()
			d.pending = pendingNone
			return fmt.Errorf("send packet: %w", err)
		}
		d.pkt.Unref()
		d.pending = pendingNone
	case pendingFlush:
		return d.sendFlush()
	}
	return nil
}

func (d *streamDecoder) DequeueOutput(wait time.Duration) (OutputFrame, bool, error) {
	_ = wait
	if !d.started {
		return OutputFrame{}, false, errors.New("decoder not started")
	}
	if d.eofSeen {
		return OutputFrame{}, false, nil
	}
	if err := d.retryPending(); err != nil {
		return OutputFrame{}, false, err
	}

	f := astiav.AllocFrame()
	if err := d.ctx.ReceiveFrame(f); err != nil {
		f.Free()
		if errors.Is(err, astiav.ErrEof) {
			d.eofSeen = true
			return OutputFrame{Flags: SampleFlagEndOfStream}, true, nil
		}
		if errors.Is(err, astiav.ErrEagain) {
			return OutputFrame{}, false, nil
		}
		return OutputFrame{}, false, fmt.Errorf("receive frame: %w", err)
	}
	return OutputFrame{PTS: d.framePTS(f), frame: f}, true, nil
}

// framePTS returns the frame timestamp in microseconds, synthesizing a
// monotonic one when the codec did not propagate a timestamp.
func (d *streamDecoder) framePTS(f *astiav.Frame) int64 {
	pts := f.Pts()
	if pts < 0 || (d.lastPTS > 0 && pts <= d.lastPTS) {
		pts = d.lastPTS + d.frameInterval
	}
	d.lastPTS = pts
	return pts
}

func (d *streamDecoder) ReleaseOutput(frame OutputFrame, render bool) error {
	if frame.frame == nil {
		return nil
	}
	if !render {
		frame.frame.Free()
		return nil
	}
	if err := d.sink.Publish(RawFrame{PTS: frame.PTS, frame: frame.frame}); err != nil {
		frame.frame.Free()
		return fmt.Errorf("publish frame: %w", err)
	}
	return nil
}

func (d *streamDecoder) Stop() error {
	d.started = false
	return nil
}

func (d *streamDecoder) Close() error {
	if d.pkt != nil {
		d.pkt.Free()
		d.pkt = nil
	}
	if d.ctx != nil {
		d.ctx.Free()
		d.ctx = nil
	}
	return nil
}
