package transcode

import (
	"fmt"

	"github.com/asticode/go-astiav"
)

// ============================================================================
// Frame Scaling and Pixel Format Conversion
// ============================================================================

// frameScaler converts decoded frames to the encoder's geometry and pixel
// format. The conversion context is created lazily and rebuilt only when
// the source geometry changes mid-stream.
type frameScaler struct {
	dstW   int
	dstH   int
	dstPix astiav.PixelFormat

	ssc    *astiav.SoftwareScaleContext
	srcW   int
	srcH   int
	srcPix astiav.PixelFormat
}

func newFrameScaler(dstW, dstH int, dstPix astiav.PixelFormat) *frameScaler {
	return &frameScaler{dstW: dstW, dstH: dstH, dstPix: dstPix}
}

// convert returns a frame matching the target geometry and pixel format.
// When src already matches, src itself is returned and owned is false;
// otherwise a new frame is returned, owned is true, and the caller must
// free both frames.
func (s *frameScaler) convert(src *astiav.Frame) (dst *astiav.Frame, owned bool, err error) {
	if src.Width() == s.dstW && src.Height() == s.dstH && src.PixelFormat() == s.dstPix {
		return src, false, nil
	}
	if err := s.ensure(src); err != nil {
		return nil, false, err
	}

	dst = astiav.AllocFrame()
	dst.SetWidth(s.dstW)
	dst.SetHeight(s.dstH)
	dst.SetPixelFormat(s.dstPix)
	if err := dst.AllocBuffer(1); err != nil {
		dst.Free()
		return nil, false, fmt.Errorf("alloc frame buffer: %w", err)
	}
	if err := s.ssc.ScaleFrame(src, dst); err != nil {
		dst.Free()
		return nil, false, fmt.Errorf("scale frame: %w", err)
	}
	dst.SetPts(src.Pts())
	return dst, true, nil
}

// ensure (re)builds the conversion context for the source geometry.
func (s *frameScaler) ensure(src *astiav.Frame) error {
	sw, sh, sp := src.Width(), src.Height(), src.PixelFormat()
	if s.ssc != nil && sw == s.srcW && sh == s.srcH && sp == s.srcPix {
		return nil
	}
	s.close()

	ssc, err := astiav.CreateSoftwareScaleContext(sw, sh, sp, s.dstW, s.dstH, s.dstPix, astiav.NewSoftwareScaleContextFlags())
	if err != nil {
		return fmt.Errorf("create scale context %dx%d %s to %dx%d %s: %w", sw, sh, sp, s.dstW, s.dstH, s.dstPix, err)
	}
	s.ssc = ssc
	s.srcW, s.srcH, s.srcPix = sw, sh, sp
	return nil
}

func (s *frameScaler) close() {
	if s.ssc != nil {
		s.ssc.Free()
		s.ssc = nil
	}
}
