package transcode

import (
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-hclog"
)

// ============================================================================
// Configuration
// ============================================================================

// Options configure a Transcoder. The zero value is usable; New fills every
// unset field with its default.
type Options struct {
	// OutputFrameRate is the nominal frame rate stamped on the encoded
	// output and used for rate control and keyframe spacing. It
	// intentionally does not follow the source rate; set it to the probed
	// rate to keep the two aligned.
	OutputFrameRate int

	// KeyFrameInterval is the distance between sync points in the output.
	KeyFrameInterval time.Duration

	// Profile selects the H.264 encoder profile.
	Profile H264Profile

	// Bitrate tunes the target-bitrate heuristic.
	Bitrate BitrateParams

	// AudioScratchSize caps the size of a single passthrough audio sample
	// in bytes. Larger samples abort the run.
	AudioScratchSize int

	// DequeueTimeout bounds decoder input and output waits. The encoder
	// poll never waits.
	DequeueTimeout time.Duration

	// Stager resolves source locators into locally readable paths.
	Stager Stager

	// Output provides the directory finished files land in.
	Output OutputProvider

	// Sizer measures source files for the compression report; sources it
	// cannot measure count as 0 bytes.
	Sizer SizeQuerier

	// Logger receives pipeline diagnostics. Defaults to a no-op logger.
	Logger hclog.Logger
}

// Defaults for Options fields left unset.
const (
	DefaultOutputFrameRate  = 24
	DefaultKeyFrameInterval = 2 * time.Second
	DefaultAudioScratchSize = 1 << 20
	DefaultDequeueTimeout   = 10 * time.Millisecond
)

// DefaultOptions returns the stock configuration. Output files land in a
// "videocompression" directory under the system temp dir.
func DefaultOptions() Options {
	return Options{}.withDefaults()
}

// withDefaults returns a copy of o with unset fields filled in.
func (o Options) withDefaults() Options {
	if o.OutputFrameRate <= 0 {
		o.OutputFrameRate = DefaultOutputFrameRate
	}
	if o.KeyFrameInterval <= 0 {
		o.KeyFrameInterval = DefaultKeyFrameInterval
	}
	if o.Bitrate == (BitrateParams{}) {
		o.Bitrate = DefaultBitrateParams()
	}
	if o.AudioScratchSize <= 0 {
		o.AudioScratchSize = DefaultAudioScratchSize
	}
	if o.DequeueTimeout <= 0 {
		o.DequeueTimeout = DefaultDequeueTimeout
	}
	if o.Stager == nil {
		o.Stager = LocalStager{}
	}
	if o.Output == nil {
		o.Output = DirOutput{Dir: filepath.Join(os.TempDir(), "videocompression")}
	}
	if o.Sizer == nil {
		o.Sizer = StatSizer{}
	}
	if o.Logger == nil {
		o.Logger = hclog.NewNullLogger()
	}
	return o
}
