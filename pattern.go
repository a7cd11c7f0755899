package transcode

import (
	"fmt"
	"image"
	"io"
	"os"
	"time"

	"github.com/asticode/go-astiav"
	"github.com/hashicorp/go-hclog"
)

// ============================================================================
// Synthetic Test Clips
// ============================================================================

// ClipConfig describes a synthetic clip. Zero fields fall back to a 2s
// 1280x720 clip at 30 fps and 2 Mbps.
type ClipConfig struct {
	Width     int
	Height    int
	FrameRate int
	Duration  time.Duration
	Bitrate   int
}

func (c ClipConfig) withDefaults() ClipConfig {
	if c.Width <= 0 {
		c.Width = 1280
	}
	if c.Height <= 0 {
		c.Height = 720
	}
	if c.FrameRate <= 0 {
		c.FrameRate = 30
	}
	if c.Duration <= 0 {
		c.Duration = 2 * time.Second
	}
	if c.Bitrate <= 0 {
		c.Bitrate = 2_000_000
	}
	return c
}

// WriteTestClip renders a deterministic moving-gradient MP4 to path using
// the package's own encoder and muxer. Round-trip tests and the example
// program use it so neither needs binary fixtures. Requires a working
// libav build.
func WriteTestClip(path string, cfg ClipConfig) error {
	cfg = cfg.withDefaults()
	logger := hclog.NewNullLogger()

	muxer, err := newMP4Muxer(path, logger)
	if err != nil {
		return err
	}
	encoder, err := newVideoEncoder(EncoderConfig{
		Width:            cfg.Width,
		Height:           cfg.Height,
		Bitrate:          cfg.Bitrate,
		FrameRate:        cfg.FrameRate,
		KeyFrameInterval: time.Second,
		Profile:          H264ProfileBaseline,
	}, muxer.globalHeader(), logger)
	if err != nil {
		muxer.Close()
		os.Remove(path)
		return err
	}
	if err := encoder.Start(); err != nil {
		encoder.Close()
		muxer.Close()
		os.Remove(path)
		return err
	}
	sink := encoder.InputSurface()

	fail := func(err error) error {
		sink.Release()
		encoder.Close()
		muxer.Close()
		os.Remove(path)
		return err
	}

	track := -1
	started := false

	// drain pulls encoder output until it runs dry, io.EOF meaning the
	// stream completed.
	drain := func() error {
		for {
			res, err := encoder.Poll()
			if err != nil {
				return err
			}
			switch res.Kind {
			case PollEmpty:
				return nil
			case PollFormatReady:
				idx, err := muxer.AddVideoTrack(res.Format)
				if err != nil {
					return err
				}
				track = idx
				if err := muxer.Start(); err != nil {
					return err
				}
				started = true
			case PollSample:
				s := res.Sample
				if started && len(s.Data) > 0 && !s.Flags.Has(SampleFlagCodecConfig) {
					info := SampleInfo{Size: len(s.Data), PTS: s.PTS, Flags: s.Flags}
					if err := muxer.WriteSample(track, s.Data, info); err != nil {
						return err
					}
				}
				if s.Flags.Has(SampleFlagEndOfStream) {
					return io.EOF
				}
			}
		}
	}

	frames := int(cfg.Duration.Seconds() * float64(cfg.FrameRate))
	interval := int64(1_000_000 / cfg.FrameRate)
	for i := 0; i < frames; i++ {
		frame, err := patternFrame(cfg.Width, cfg.Height, i, int64(i)*interval)
		if err != nil {
			return fail(err)
		}
		if err := sink.Publish(RawFrame{PTS: int64(i) * interval, frame: frame}); err != nil {
			frame.Free()
			return fail(err)
		}
		if err := drain(); err != nil && err != io.EOF {
			return fail(err)
		}
	}

	sink.SignalEnd()
	for i := 0; ; i++ {
		err := drain()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fail(err)
		}
		if i > frames+64 {
			return fail(fmt.Errorf("encoder flush did not converge after %d polls", i))
		}
	}

	if err := muxer.Stop(); err != nil {
		return fail(err)
	}
	if err := encoder.Close(); err != nil {
		muxer.Close()
		return err
	}
	return muxer.Close()
}

// patternFrame renders one frame of a diagonal gradient that slides with
// the frame index, deterministic for a given (geometry, index) pair.
func patternFrame(width, height, index int, pts int64) (*astiav.Frame, error) {
	img := image.NewYCbCr(image.Rect(0, 0, width, height), image.YCbCrSubsampleRatio420)
	shift := index * 4
	for y := 0; y < height; y++ {
		row := y * img.YStride
		for x := 0; x < width; x++ {
			img.Y[row+x] = uint8((x + y + shift) & 0xff)
		}
	}
	for y := 0; y < (height+1)/2; y++ {
		row := y * img.CStride
		for x := 0; x < (width+1)/2; x++ {
			img.Cb[row+x] = uint8(128 + ((x + shift) & 0x3f))
			img.Cr[row+x] = uint8(128 - ((y + shift) & 0x3f))
		}
	}

	f := astiav.AllocFrame()
	f.SetWidth(width)
	f.SetHeight(height)
	f.SetPixelFormat(astiav.PixelFormatYuv420P)
	if err := f.AllocBuffer(1); err != nil {
		f.Free()
		return nil, fmt.Errorf("alloc frame buffer: %w", err)
	}
	if err := f.Data().FromImage(img); err != nil {
		f.Free()
		return nil, fmt.Errorf("fill frame: %w", err)
	}
	f.SetPts(pts)
	return f, nil
}
