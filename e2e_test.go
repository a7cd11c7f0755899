package transcode

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
)

// requireE2E gates the tests that exercise the real libav stack. They need
// a working FFmpeg build and write real files, so they stay opt-in.
func requireE2E(t *testing.T) {
	t.Helper()
	if os.Getenv("TRANSCODE_E2E") == "" {
		t.Skip("end-to-end tests disabled; set TRANSCODE_E2E=1 to run them")
	}
}

// synthClip renders a small deterministic clip for the test to chew on.
func synthClip(t *testing.T, cfg ClipConfig) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "source.mp4")
	if err := WriteTestClip(path, cfg); err != nil {
		t.Fatalf("WriteTestClip() error = %v", err)
	}
	return path
}

func TestTranscodeRoundTrip(t *testing.T) {
	requireE2E(t)

	source := synthClip(t, ClipConfig{
		Width:     320,
		Height:    240,
		FrameRate: 30,
		Duration:  time.Second,
		Bitrate:   2_000_000,
	})
	outDir := t.TempDir()
	tr := New(Options{
		Output: DirOutput{Dir: outDir},
		Logger: hclog.NewNullLogger(),
	})

	var progress []float64
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	out, err := tr.Transcode(ctx, source, func(f float64) {
		progress = append(progress, f)
	})
	if err != nil {
		t.Fatalf("Transcode() error = %v", err)
	}

	info, err := Probe(out)
	if err != nil {
		t.Fatalf("Probe(output) error = %v", err)
	}
	if info.Width != 320 || info.Height != 240 {
		t.Errorf("output geometry = %dx%d, want 320x240", info.Width, info.Height)
	}
	if info.Duration < 500*time.Millisecond || info.Duration > 2*time.Second {
		t.Errorf("output duration = %v, want roughly 1s", info.Duration)
	}
	if info.Rotation != 0 {
		t.Errorf("output rotation = %d, want 0", info.Rotation)
	}

	assertProgress(t, progress)
	if len(progress) == 0 {
		t.Fatal("no progress reported")
	}
	if final := progress[len(progress)-1]; final < 0.9 {
		t.Errorf("final progress = %v, want at least 0.9", final)
	}

	stats := tr.Stats()
	if stats.FramesDecoded < 20 {
		t.Errorf("FramesDecoded = %d, want about 30", stats.FramesDecoded)
	}
	if stats.VideoSamples == 0 || stats.VideoBytes == 0 {
		t.Errorf("video stats empty: %+v", stats)
	}
	if stats.SourceBytes == 0 || stats.OutputBytes == 0 {
		t.Errorf("byte accounting empty: %+v", stats)
	}
}

func TestTranscodeCancelledMidRun(t *testing.T) {
	requireE2E(t)

	source := synthClip(t, ClipConfig{
		Width:     320,
		Height:    240,
		FrameRate: 30,
		Duration:  2 * time.Second,
	})
	outDir := t.TempDir()
	tr := New(Options{
		Output: DirOutput{Dir: outDir},
		Logger: hclog.NewNullLogger(),
	})

	// Cancel as soon as the pipeline proves it is moving.
	ctx, cancel := context.WithCancel(context.Background())
	_, err := tr.Transcode(ctx, source, func(float64) { cancel() })
	if err == nil {
		t.Fatal("Transcode() error = nil, want cancellation")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Transcode() error = %v, want context.Canceled in chain", err)
	}

	// No partial output survives.
	entries, err := os.ReadDir(outDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("output dir has %d entries after cancellation, want 0", len(entries))
	}
}

func TestProbeSynthClip(t *testing.T) {
	requireE2E(t)

	source := synthClip(t, ClipConfig{
		Width:     320,
		Height:    240,
		FrameRate: 30,
		Duration:  time.Second,
	})

	info, err := Probe(source)
	if err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	if info.Width != 320 || info.Height != 240 {
		t.Errorf("geometry = %dx%d, want 320x240", info.Width, info.Height)
	}
	if info.FrameRate < 29 || info.FrameRate > 31 {
		t.Errorf("FrameRate = %v, want about 30", info.FrameRate)
	}
	if info.Duration < 900*time.Millisecond || info.Duration > 1300*time.Millisecond {
		t.Errorf("Duration = %v, want about 1s", info.Duration)
	}
	if info.Bitrate <= 0 {
		t.Errorf("Bitrate = %d, want > 0", info.Bitrate)
	}
	if info.Rotation != 0 {
		t.Errorf("Rotation = %d, want 0", info.Rotation)
	}
}

func TestProbeRejectsGarbage(t *testing.T) {
	requireE2E(t)

	path := filepath.Join(t.TempDir(), "garbage.mp4")
	if err := os.WriteFile(path, []byte("this is not a movie"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Probe(path)
	if err == nil {
		t.Fatal("Probe() error = nil, want rejection")
	}
	if kind := KindOf(err); kind != KindInvalidInput {
		t.Errorf("KindOf(err) = %v, want %v", kind, KindInvalidInput)
	}
}

func TestProbeMissingFile(t *testing.T) {
	requireE2E(t)

	_, err := Probe(filepath.Join(t.TempDir(), "missing.mp4"))
	if err == nil {
		t.Fatal("Probe() error = nil, want open failure")
	}
	if kind := KindOf(err); kind != KindInvalidInput {
		t.Errorf("KindOf(err) = %v, want %v", kind, KindInvalidInput)
	}
}

func TestExtractorRoundTrip(t *testing.T) {
	requireE2E(t)

	source := synthClip(t, ClipConfig{
		Width:     320,
		Height:    240,
		FrameRate: 30,
		Duration:  time.Second,
	})

	x, err := openExtractor(source)
	if err != nil {
		t.Fatalf("openExtractor() error = %v", err)
	}
	defer x.Close()

	tracks := x.Tracks()
	if len(tracks) != 1 {
		t.Fatalf("tracks = %d, want 1", len(tracks))
	}
	if tracks[0].Kind != TrackKindVideo || tracks[0].MimeType != "video/avc" {
		t.Errorf("track = %+v, want video/avc", tracks[0])
	}

	if err := x.Select(0); err != nil {
		t.Fatalf("Select(0) error = %v", err)
	}
	format, err := x.Format(0)
	if err != nil {
		t.Fatalf("Format(0) error = %v", err)
	}
	if format.Width != 320 || format.Height != 240 {
		t.Errorf("format geometry = %dx%d, want 320x240", format.Width, format.Height)
	}

	buf := make([]byte, 1<<20)
	count := 0
	lastPTS := int64(-1)
	for {
		info, err := x.ReadSample(buf)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("ReadSample() error = %v after %d samples", err, count)
		}
		if count == 0 {
			if !info.Flags.Has(SampleFlagKeyFrame) {
				t.Error("first sample is not a keyframe")
			}
			if info.PTS != 0 {
				t.Errorf("first sample PTS = %d, want 0", info.PTS)
			}
		}
		if info.Size == 0 {
			t.Errorf("sample %d has no bytes", count)
		}
		if info.PTS < lastPTS {
			t.Errorf("sample %d PTS = %d, decreased from %d", count, info.PTS, lastPTS)
		}
		lastPTS = info.PTS
		count++
	}
	if count < 25 || count > 35 {
		t.Errorf("samples = %d, want about 30", count)
	}

	// A buffer smaller than any sample trips the hard ceiling.
	tiny, err := openExtractor(source)
	if err != nil {
		t.Fatalf("openExtractor() error = %v", err)
	}
	defer tiny.Close()
	if err := tiny.Select(0); err != nil {
		t.Fatal(err)
	}
	if _, err := tiny.ReadSample(make([]byte, 4)); !errors.Is(err, ErrSampleTooLarge) {
		t.Errorf("ReadSample(tiny buffer) error = %v, want ErrSampleTooLarge", err)
	}
}

func TestMuxerWriteRequiresStart(t *testing.T) {
	requireE2E(t)

	path := filepath.Join(t.TempDir(), "gated.mp4")
	m, err := newMP4Muxer(path, hclog.NewNullLogger())
	if err != nil {
		t.Fatalf("newMP4Muxer() error = %v", err)
	}
	defer m.Close()

	err = m.WriteSample(0, []byte{0, 0, 0, 1}, SampleInfo{Size: 4})
	if !errors.Is(err, ErrMuxerNotStarted) {
		t.Errorf("WriteSample() before Start error = %v, want ErrMuxerNotStarted", err)
	}

	if err := m.Start(); err == nil {
		t.Error("Start() with no tracks = nil error, want failure")
	}
}
