package transcode

import (
	"strings"

	"github.com/asticode/go-astiav"
)

// ============================================================================
// Track and Codec Identification
// ============================================================================

// TrackKind tags the role of an elementary stream.
type TrackKind int

const (
	TrackKindUnknown TrackKind = iota
	TrackKindVideo
	TrackKindAudio
)

// String returns a human-readable name for the kind.
func (k TrackKind) String() string {
	switch k {
	case TrackKindVideo:
		return "video"
	case TrackKindAudio:
		return "audio"
	default:
		return "unknown"
	}
}

// TrackKindOf classifies a MIME-style type string by its prefix. Selection
// is prefix-driven so container-specific codec strings keep working.
func TrackKindOf(mimeType string) TrackKind {
	switch {
	case strings.HasPrefix(mimeType, "video/"):
		return TrackKindVideo
	case strings.HasPrefix(mimeType, "audio/"):
		return TrackKindAudio
	default:
		return TrackKindUnknown
	}
}

// kindOfMediaType maps a libav media type onto a TrackKind.
func kindOfMediaType(mt astiav.MediaType) TrackKind {
	switch mt {
	case astiav.MediaTypeVideo:
		return TrackKindVideo
	case astiav.MediaTypeAudio:
		return TrackKindAudio
	default:
		return TrackKindUnknown
	}
}

// mimeTypeOf maps a libav codec onto the MIME-style type string used for
// track classification. Codecs without a well-known MIME name still get a
// usable "video/" or "audio/" prefix so kind matching keeps working.
func mimeTypeOf(mt astiav.MediaType, id astiav.CodecID) string {
	var prefix string
	switch mt {
	case astiav.MediaTypeVideo:
		prefix = "video/"
	case astiav.MediaTypeAudio:
		prefix = "audio/"
	default:
		return ""
	}
	switch id {
	case astiav.CodecIDH264:
		return prefix + "avc"
	case astiav.CodecIDHevc:
		return prefix + "hevc"
	case astiav.CodecIDVp8:
		return prefix + "x-vnd.on2.vp8"
	case astiav.CodecIDVp9:
		return prefix + "x-vnd.on2.vp9"
	case astiav.CodecIDAv1:
		return prefix + "av01"
	case astiav.CodecIDAac:
		return prefix + "mp4a-latm"
	case astiav.CodecIDMp3:
		return prefix + "mpeg"
	case astiav.CodecIDOpus:
		return prefix + "opus"
	case astiav.CodecIDVorbis:
		return prefix + "vorbis"
	case astiav.CodecIDAc3:
		return prefix + "ac3"
	case astiav.CodecIDFlac:
		return prefix + "flac"
	}
	return prefix + id.Name()
}

// H264Profile selects the encoder profile.
type H264Profile int

const (
	// H264ProfileBaseline disables B-frames and CABAC. Output decodes on
	// effectively every device, which is why it is the default.
	H264ProfileBaseline H264Profile = iota
	H264ProfileMain
	H264ProfileHigh
)

// String returns the profile name in the form the encoder option expects.
func (p H264Profile) String() string {
	switch p {
	case H264ProfileMain:
		return "main"
	case H264ProfileHigh:
		return "high"
	default:
		return "baseline"
	}
}
