package transcode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/hashicorp/go-hclog"
)

// ============================================================================
// Pipeline Coordinator
// ============================================================================

// ProgressFunc receives completion fractions in [0, 1]. It is invoked from
// the transcode worker goroutine once per decoded frame and must not block.
type ProgressFunc func(fraction float64)

// PipelineStats is a snapshot of run counters.
type PipelineStats struct {
	FramesDecoded uint64
	VideoSamples  uint64
	VideoBytes    uint64
	AudioSamples  uint64
	AudioBytes    uint64
	Iterations    uint64
	Duration      time.Duration
	SourceBytes   int64
	OutputBytes   int64
}

// pipelineState is the coordinator-local bookkeeping for one run.
type pipelineState struct {
	inputExhausted  bool
	decoderFinished bool
	encoderFinished bool
	audioFinished   bool

	muxerStarted bool
	videoTrack   int
	audioTrack   int

	frameCount  int64
	totalFrames int64
}

// pipelineConfig wires the coordinator's collaborators. audio is nil when
// the source has no audio track; audioFormat is only read when audio is
// set.
type pipelineConfig struct {
	video       Extractor
	audio       Extractor
	audioFormat TrackFormat
	decoder     Decoder
	encoder     Encoder
	sink        FrameSink
	muxer       Muxer
	info        VideoInfo
	onProgress  ProgressFunc
	opts        Options
	logger      hclog.Logger
}

// pipeline advances decoder, encoder, and audio passthrough cooperatively
// from a single goroutine. Nothing here is safe for concurrent use.
type pipeline struct {
	cfg          pipelineConfig
	st           pipelineState
	audioScratch []byte
	stats        PipelineStats
}

func newPipeline(cfg pipelineConfig) *pipeline {
	p := &pipeline{
		cfg: cfg,
		st: pipelineState{
			videoTrack:  -1,
			audioTrack:  -1,
			totalFrames: cfg.info.TotalFrames(),
		},
		audioScratch: make([]byte, cfg.opts.AudioScratchSize),
	}
	// No audio track means the audio half of the run is trivially done.
	if cfg.audio == nil {
		p.st.audioFinished = true
	}
	return p
}

// prepare registers what is known before the encoder announces its output
// format: the orientation hint and, when present, the audio track. The
// video track registration and the muxer start wait for the format event.
func (p *pipeline) prepare() error {
	if err := p.cfg.muxer.SetOrientationHint(p.cfg.info.Rotation); err != nil {
		return fmt.Errorf("set orientation hint: %w", err)
	}
	if p.cfg.audio != nil {
		idx, err := p.cfg.muxer.AddAudioTrack(p.cfg.audioFormat)
		if err != nil {
			return fmt.Errorf("register audio track: %w", err)
		}
		p.st.audioTrack = idx
	}
	if err := p.cfg.decoder.Start(); err != nil {
		return fmt.Errorf("start decoder: %w", err)
	}
	if err := p.cfg.encoder.Start(); err != nil {
		return fmt.Errorf("start encoder: %w", err)
	}
	return nil
}

// run drives all state machines until both the encoder and the audio
// passthrough report completion. Each iteration advances the stages in a
// fixed order: decoder input, decoder output, encoder output, audio.
func (p *pipeline) run(ctx context.Context) error {
	started := time.Now()
	defer func() { p.stats.Duration = time.Since(started) }()

	for !(p.st.encoderFinished && p.st.audioFinished) {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("transcode cancelled: %w", err)
		}
		p.stats.Iterations++

		if err := p.feedDecoder(); err != nil {
			return err
		}
		if err := p.drainDecoder(); err != nil {
			return err
		}
		if err := p.drainEncoder(); err != nil {
			return err
		}
		if err := p.copyAudio(); err != nil {
			return err
		}
	}

	p.cfg.logger.Debug("pipeline drained",
		"frames", p.stats.FramesDecoded,
		"videoSamples", p.stats.VideoSamples,
		"audioSamples", p.stats.AudioSamples,
		"iterations", p.stats.Iterations)
	return nil
}

// feedDecoder moves at most one compressed sample from the demuxer into
// the decoder. Stream end submits the end-of-stream marker instead.
func (p *pipeline) feedDecoder() error {
	if p.st.inputExhausted {
		return nil
	}
	slot, ok, err := p.cfg.decoder.DequeueInput(p.cfg.opts.DequeueTimeout)
	if err != nil {
		return fmt.Errorf("decoder input: %w", err)
	}
	if !ok {
		return nil
	}

	info, err := p.cfg.video.ReadSample(slot.Data)
	if errors.Is(err, io.EOF) {
		p.st.inputExhausted = true
		if err := p.cfg.decoder.QueueInput(slot, SampleInfo{Flags: SampleFlagEndOfStream}); err != nil {
			return fmt.Errorf("queue end of stream: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("read video sample: %w", err)
	}
	if err := p.cfg.decoder.QueueInput(slot, info); err != nil {
		return fmt.Errorf("queue video sample: %w", err)
	}
	return nil
}

// drainDecoder moves at most one decoded frame toward the encoder's input
// surface and accounts for progress.
func (p *pipeline) drainDecoder() error {
	if p.st.decoderFinished {
		return nil
	}
	frame, ok, err := p.cfg.decoder.DequeueOutput(p.cfg.opts.DequeueTimeout)
	if err != nil {
		return fmt.Errorf("decoder output: %w", err)
	}
	if !ok {
		return nil
	}

	if frame.Flags.Has(SampleFlagEndOfStream) {
		if err := p.cfg.decoder.ReleaseOutput(frame, false); err != nil {
			return fmt.Errorf("release end of stream: %w", err)
		}
		p.st.decoderFinished = true
		p.cfg.sink.SignalEnd()
		return nil
	}

	if err := p.cfg.decoder.ReleaseOutput(frame, true); err != nil {
		return fmt.Errorf("release decoded frame: %w", err)
	}
	p.st.frameCount++
	p.stats.FramesDecoded++
	p.reportProgress()
	return nil
}

// reportProgress invokes the callback with frameCount over totalFrames.
// Without a frame estimate there is nothing meaningful to report.
func (p *pipeline) reportProgress() {
	if p.cfg.onProgress == nil || p.st.totalFrames <= 0 {
		return
	}
	fraction := float64(p.st.frameCount) / float64(p.st.totalFrames)
	if fraction > 1 {
		fraction = 1
	}
	p.cfg.onProgress(fraction)
}

// drainEncoder handles at most one encoder event: the one-time format
// announcement opens the muxer, samples are written through the gate, and
// the end-of-stream sample finishes the video half.
func (p *pipeline) drainEncoder() error {
	if p.st.encoderFinished {
		return nil
	}
	res, err := p.cfg.encoder.Poll()
	if err != nil {
		return fmt.Errorf("encoder poll: %w", err)
	}

	switch res.Kind {
	case PollEmpty:
		return nil

	case PollFormatReady:
		if p.st.muxerStarted {
			return nil
		}
		idx, err := p.cfg.muxer.AddVideoTrack(res.Format)
		if err != nil {
			return fmt.Errorf("register video track: %w", err)
		}
		p.st.videoTrack = idx
		if err := p.cfg.muxer.Start(); err != nil {
			return fmt.Errorf("start muxer: %w", err)
		}
		p.st.muxerStarted = true
		p.cfg.logger.Debug("muxer started", "videoTrack", idx, "audioTrack", p.st.audioTrack)
		return nil

	case PollSample:
		s := res.Sample
		if len(s.Data) > 0 && !s.Flags.Has(SampleFlagCodecConfig) {
			if !p.st.muxerStarted {
				// The gate drops output that raced ahead of the format event.
				p.cfg.logger.Debug("dropping pre-start encoder sample", "bytes", len(s.Data))
			} else {
				info := SampleInfo{Size: len(s.Data), PTS: s.PTS, Flags: s.Flags}
				if err := p.cfg.muxer.WriteSample(p.st.videoTrack, s.Data, info); err != nil {
					return fmt.Errorf("write video sample: %w", err)
				}
				p.stats.VideoSamples++
				p.stats.VideoBytes += uint64(len(s.Data))
			}
		}
		if s.Flags.Has(SampleFlagEndOfStream) {
			p.st.encoderFinished = true
		}
		return nil
	}
	return nil
}

// copyAudio moves at most one audio sample verbatim from the demuxer into
// the muxer. It only runs once the muxer has started, which also means
// audio-only progress cannot outrun the video track registration.
func (p *pipeline) copyAudio() error {
	if p.st.audioFinished || !p.st.muxerStarted {
		return nil
	}

	info, err := p.cfg.audio.ReadSample(p.audioScratch)
	if errors.Is(err, io.EOF) {
		p.st.audioFinished = true
		return nil
	}
	if err != nil {
		return fmt.Errorf("read audio sample: %w", err)
	}

	if err := p.cfg.muxer.WriteSample(p.st.audioTrack, p.audioScratch[:info.Size], info); err != nil {
		return fmt.Errorf("write audio sample: %w", err)
	}
	p.stats.AudioSamples++
	p.stats.AudioBytes += uint64(info.Size)
	return nil
}
