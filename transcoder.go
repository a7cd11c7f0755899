package transcode

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
)

// ============================================================================
// Transcoder
// ============================================================================

// Transcoder compresses video files, one run at a time per call. It is safe
// for concurrent use; each Transcode call builds its own component stack.
type Transcoder struct {
	opts   Options
	logger hclog.Logger

	// newStack builds the component stack for one run; swapped in tests.
	newStack stackBuilder
	// probe reads source metadata; swapped in tests.
	probe func(path string) (VideoInfo, error)

	mu    sync.Mutex
	stats PipelineStats
}

// New returns a Transcoder with unset options filled from defaults.
func New(opts Options) *Transcoder {
	opts = opts.withDefaults()
	return &Transcoder{
		opts:     opts,
		logger:   opts.Logger.Named("transcoder"),
		newStack: newLibavStack,
		probe:    Probe,
	}
}

// Stats returns the counters of the most recently finished run.
func (t *Transcoder) Stats() PipelineStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

// Transcode compresses the video at source into a new MP4 and returns the
// output path. The video track is re-encoded at a reduced bitrate; audio
// passes through untouched. onProgress, when non-nil, receives completion
// fractions while the run advances.
//
// The run executes on a dedicated worker goroutine; the call blocks until
// it finishes. Cancelling ctx aborts the run and deletes partial output.
// On failure exactly one *Error is returned and no output file remains.
func (t *Transcoder) Transcode(ctx context.Context, source string, onProgress ProgressFunc) (string, error) {
	type result struct {
		path string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		path, err := t.run(ctx, source, onProgress)
		done <- result{path: path, err: err}
	}()
	r := <-done
	return r.path, r.err
}

func (t *Transcoder) run(ctx context.Context, source string, onProgress ProgressFunc) (string, error) {
	started := time.Now()

	staged, err := t.opts.Stager.Stage(ctx, source)
	if err != nil {
		return "", &Error{Kind: KindInvalidInput, Op: "stage source", Err: err}
	}

	info, err := t.probe(staged)
	if err != nil {
		return "", err
	}
	t.logger.Debug("probed source",
		"path", staged,
		"geometry", fmt.Sprintf("%dx%d", info.Width, info.Height),
		"duration", info.Duration,
		"frameRate", info.FrameRate,
		"bitrate", info.Bitrate,
		"rotation", info.Rotation)

	dir, err := t.opts.Output.OutputDir()
	if err != nil {
		return "", &Error{Kind: KindUnexpected, Op: "resolve output dir", Err: err}
	}
	outPath := filepath.Join(dir, outputName(source))

	stack, err := t.newStack(staged, outPath, info, t.opts)
	if err != nil {
		removeOutput(outPath, t.logger)
		return "", err
	}

	p := newPipeline(pipelineConfig{
		video:       stack.video,
		audio:       stack.audio,
		audioFormat: stack.audioFormat,
		decoder:     stack.decoder,
		encoder:     stack.encoder,
		sink:        stack.sink,
		muxer:       stack.muxer,
		info:        info,
		onProgress:  onProgress,
		opts:        t.opts,
		logger:      t.logger,
	})

	runErr := p.prepare()
	if runErr == nil {
		runErr = p.run(ctx)
	}

	// Teardown runs in its fixed order no matter how the run ended; the
	// output file can only be judged or removed once handles are closed.
	stack.teardown(t.logger)

	t.mu.Lock()
	t.stats = p.stats
	t.mu.Unlock()

	if runErr != nil {
		removeOutput(outPath, t.logger)
		return "", &Error{Kind: KindCompression, Op: "pipeline", Err: runErr}
	}

	fi, statErr := os.Stat(outPath)
	if statErr != nil || fi.Size() == 0 {
		removeOutput(outPath, t.logger)
		return "", &Error{Kind: KindPostcondition, Op: "verify output", Err: fmt.Errorf("no usable output at %s", outPath)}
	}

	srcBytes := t.opts.Sizer.Size(source)
	t.mu.Lock()
	t.stats.SourceBytes = srcBytes
	t.stats.OutputBytes = fi.Size()
	t.mu.Unlock()

	t.logger.Info("transcode complete",
		"output", outPath,
		"sourceBytes", srcBytes,
		"outputBytes", fi.Size(),
		"frames", p.stats.FramesDecoded,
		"elapsed", time.Since(started))
	return outPath, nil
}

// outputName builds a collision-resistant file name for the compressed
// copy of source.
func outputName(source string) string {
	base := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	if base == "" || base == "." {
		base = "video"
	}
	stamp := time.Now().Format("20060102-150405")
	return fmt.Sprintf("%s_compressed_%s_%s.mp4", base, stamp, uuid.NewString()[:8])
}

// removeOutput deletes a partial output file. Best effort: a leftover file
// is logged, not fatal.
func removeOutput(path string, logger hclog.Logger) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logger.Warn("partial output not removed", "path", path, "error", err)
	}
}

// ============================================================================
// Component Stack
// ============================================================================

// transcodeStack is the wired component set for one run.
type transcodeStack struct {
	video       Extractor
	audio       Extractor
	audioFormat TrackFormat
	decoder     Decoder
	encoder     Encoder
	sink        FrameSink
	muxer       Muxer
}

// stackBuilder wires a stack for one run, classifying its own failures.
type stackBuilder func(srcPath, outPath string, info VideoInfo, opts Options) (*transcodeStack, error)

// newLibavStack opens the demuxers, muxer, decoder, and encoder for one
// run. On error everything built so far is torn down.
func newLibavStack(srcPath, outPath string, info VideoInfo, opts Options) (st *transcodeStack, err error) {
	st = &transcodeStack{}
	defer func() {
		if err != nil {
			st.teardown(opts.Logger)
			st = nil
		}
	}()

	video, err := openExtractor(srcPath)
	if err != nil {
		return st, &Error{Kind: KindInvalidInput, Op: "open source", Err: err}
	}
	st.video = video

	videoTrack, audioTrack, err := SelectTracks(video.Tracks())
	if err != nil {
		return st, &Error{Kind: KindInvalidInput, Op: "select tracks", Err: err}
	}
	if err = video.Select(videoTrack.Index); err != nil {
		return st, &Error{Kind: KindUnexpected, Op: "select tracks", Err: err}
	}
	videoFormat, err := video.Format(videoTrack.Index)
	if err != nil {
		return st, &Error{Kind: KindUnexpected, Op: "select tracks", Err: err}
	}

	// Audio reads through its own demuxing cursor so the two tracks advance
	// independently.
	if audioTrack.Index >= 0 {
		audio, aerr := openExtractor(srcPath)
		if aerr != nil {
			err = &Error{Kind: KindInvalidInput, Op: "open source", Err: aerr}
			return st, err
		}
		st.audio = audio
		if err = audio.Select(audioTrack.Index); err != nil {
			return st, &Error{Kind: KindUnexpected, Op: "select tracks", Err: err}
		}
		if st.audioFormat, err = audio.Format(audioTrack.Index); err != nil {
			return st, &Error{Kind: KindUnexpected, Op: "select tracks", Err: err}
		}
	}

	muxer, err := newMP4Muxer(outPath, opts.Logger)
	if err != nil {
		return st, &Error{Kind: KindCompression, Op: "create muxer", Err: err}
	}
	st.muxer = muxer

	width := EvenDimension(info.Width)
	height := EvenDimension(info.Height)
	bitrate := opts.Bitrate.TargetBitrate(info.Width, info.Height, info.Bitrate, info.FrameRate, width, height)
	opts.Logger.Debug("encoder plan",
		"geometry", fmt.Sprintf("%dx%d", width, height),
		"bitrate", bitrate,
		"frameRate", opts.OutputFrameRate,
		"profile", opts.Profile)

	encoder, err := newVideoEncoder(EncoderConfig{
		Width:            width,
		Height:           height,
		Bitrate:          bitrate,
		FrameRate:        opts.OutputFrameRate,
		KeyFrameInterval: opts.KeyFrameInterval,
		Profile:          opts.Profile,
	}, muxer.globalHeader(), opts.Logger)
	if err != nil {
		return st, &Error{Kind: KindCompression, Op: "configure encoder", Err: err}
	}
	st.encoder = encoder
	st.sink = encoder.InputSurface()

	decoder, err := newStreamDecoder(videoFormat, st.sink, opts.Logger)
	if err != nil {
		return st, &Error{Kind: KindCompression, Op: "configure decoder", Err: err}
	}
	st.decoder = decoder

	return st, nil
}

// teardown stops and releases the stack in its fixed order: hand-off
// surface, decoder, encoder, muxer, then both demuxing cursors. Stop and
// close failures are logged and swallowed so that every resource gets its
// release attempt.
func (s *transcodeStack) teardown(logger hclog.Logger) {
	if s == nil {
		return
	}
	if s.sink != nil {
		s.sink.Release()
	}
	if s.decoder != nil {
		if err := s.decoder.Stop(); err != nil {
			logger.Warn("decoder stop failed", "error", err)
		}
		if err := s.decoder.Close(); err != nil {
			logger.Warn("decoder close failed", "error", err)
		}
	}
	if s.encoder != nil {
		if err := s.encoder.Stop(); err != nil {
			logger.Warn("encoder stop failed", "error", err)
		}
		if err := s.encoder.Close(); err != nil {
			logger.Warn("encoder close failed", "error", err)
		}
	}
	if s.muxer != nil {
		if err := s.muxer.Stop(); err != nil {
			logger.Warn("muxer stop failed", "error", err)
		}
		if err := s.muxer.Close(); err != nil {
			logger.Warn("muxer close failed", "error", err)
		}
	}
	if s.video != nil {
		if err := s.video.Close(); err != nil {
			logger.Warn("video demuxer close failed", "error", err)
		}
	}
	if s.audio != nil {
		if err := s.audio.Close(); err != nil {
			logger.Warn("audio demuxer close failed", "error", err)
		}
	}
}
