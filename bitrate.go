package transcode

// ============================================================================
// Bitrate Heuristic
// ============================================================================

// BitrateParams hold the tuning constants of the target-bitrate heuristic.
// The zero value is not usable; start from DefaultBitrateParams.
type BitrateParams struct {
	// BitsPerPixel estimates a source bitrate from geometry and frame rate
	// when the container does not report a usable one.
	BitsPerPixel float64
	// CompressionRatio is applied after resolution scaling.
	CompressionRatio float64
	// MinBitrate is the clamp floor in bits per second.
	MinBitrate int
	// MaxBitrate is the clamp ceiling in bits per second.
	MaxBitrate int
	// SaneSourceCeiling rejects absurd container bitrates. Source bitrates
	// at or above this value fall back to the pixel estimate.
	SaneSourceCeiling int
}

// DefaultBitrateParams returns the stock heuristic tuning.
func DefaultBitrateParams() BitrateParams {
	return BitrateParams{
		BitsPerPixel:      0.1,
		CompressionRatio:  0.2,
		MinBitrate:        500_000,
		MaxBitrate:        10_000_000,
		SaneSourceCeiling: 100_000_000,
	}
}

// TargetBitrate derives the encode bitrate for an output of dstWidth x
// dstHeight from the source characteristics. The source bitrate is trusted
// only when it is positive and below SaneSourceCeiling; otherwise a base is
// estimated from the output pixel count and frame rate. The base is scaled
// by the resolution ratio, multiplied by CompressionRatio, and clamped to
// [MinBitrate, MaxBitrate].
//
// The function is pure: identical inputs always yield the identical result.
func (p BitrateParams) TargetBitrate(srcWidth, srcHeight, srcBitrate int, frameRate float64, dstWidth, dstHeight int) int {
	targetPixels := float64(dstWidth) * float64(dstHeight)

	base := float64(srcBitrate)
	if srcBitrate <= 0 || srcBitrate >= p.SaneSourceCeiling {
		base = targetPixels * frameRate * p.BitsPerPixel
	}

	scale := 1.0
	if srcPixels := float64(srcWidth) * float64(srcHeight); srcPixels > 0 {
		scale = targetPixels / srcPixels
	}

	bitrate := int(base * scale * p.CompressionRatio)
	if bitrate < p.MinBitrate {
		return p.MinBitrate
	}
	if bitrate > p.MaxBitrate {
		return p.MaxBitrate
	}
	return bitrate
}

// EvenDimension floors n to the nearest even value. H.264 4:2:0 encoding
// needs even luma dimensions, so odd source geometry loses one pixel line.
func EvenDimension(n int) int {
	return n &^ 1
}
