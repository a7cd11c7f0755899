package transcode

import (
	"testing"
)

func TestTargetBitrate(t *testing.T) {
	params := DefaultBitrateParams()

	tests := []struct {
		name       string
		srcW, srcH int
		srcBitrate int
		frameRate  float64
		dstW, dstH int
		want       int
	}{
		{
			// 8 Mbps source at unchanged geometry compresses to a fifth.
			name: "trusted source bitrate",
			srcW: 1920, srcH: 1080, srcBitrate: 8_000_000, frameRate: 30,
			dstW: 1920, dstH: 1080,
			want: 1_600_000,
		},
		{
			// Unknown source bitrate estimates from pixels and rate:
			// 1920*1080*30*0.1*0.2 = 1_244_160.
			name: "zero source bitrate estimates",
			srcW: 1920, srcH: 1080, srcBitrate: 0, frameRate: 30,
			dstW: 1920, dstH: 1080,
			want: 1_244_160,
		},
		{
			// An absurd container value falls back to the estimate too.
			name: "absurd source bitrate estimates",
			srcW: 1920, srcH: 1080, srcBitrate: 100_000_000, frameRate: 30,
			dstW: 1920, dstH: 1080,
			want: 1_244_160,
		},
		{
			name: "negative source bitrate estimates",
			srcW: 1920, srcH: 1080, srcBitrate: -5, frameRate: 30,
			dstW: 1920, dstH: 1080,
			want: 1_244_160,
		},
		{
			// 320x240 at 2 Mbps lands below the floor and clamps up.
			name: "clamps to floor",
			srcW: 320, srcH: 240, srcBitrate: 2_000_000, frameRate: 30,
			dstW: 320, dstH: 240,
			want: 500_000,
		},
		{
			// A huge trusted bitrate clamps to the ceiling.
			name: "clamps to ceiling",
			srcW: 3840, srcH: 2160, srcBitrate: 99_000_000, frameRate: 60,
			dstW: 3840, dstH: 2160,
			want: 10_000_000,
		},
		{
			// Halving each dimension quarters the scaled target:
			// 8M * 0.25 * 0.2 = 400_000, clamped up to the floor.
			name: "downscale shrinks target",
			srcW: 1920, srcH: 1080, srcBitrate: 8_000_000, frameRate: 30,
			dstW: 960, dstH: 540,
			want: 500_000,
		},
		{
			// Zero source pixels cannot scale; the base passes through.
			name: "zero source geometry",
			srcW: 0, srcH: 0, srcBitrate: 8_000_000, frameRate: 30,
			dstW: 1920, dstH: 1080,
			want: 1_600_000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := params.TargetBitrate(tt.srcW, tt.srcH, tt.srcBitrate, tt.frameRate, tt.dstW, tt.dstH)
			if got != tt.want {
				t.Errorf("TargetBitrate() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestTargetBitrate_Pure(t *testing.T) {
	params := DefaultBitrateParams()
	first := params.TargetBitrate(1920, 1080, 8_000_000, 30, 1280, 720)
	for i := 0; i < 10; i++ {
		if got := params.TargetBitrate(1920, 1080, 8_000_000, 30, 1280, 720); got != first {
			t.Fatalf("TargetBitrate() = %d on call %d, want %d every time", got, i, first)
		}
	}
}

func TestEvenDimension(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{1920, 1920},
		{1921, 1920},
		{1080, 1080},
		{1081, 1080},
		{1, 0},
		{0, 0},
	}

	for _, tt := range tests {
		if got := EvenDimension(tt.in); got != tt.want {
			t.Errorf("EvenDimension(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
