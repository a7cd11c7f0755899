package transcode

import (
	"testing"
	"time"
)

func TestTotalFrames(t *testing.T) {
	tests := []struct {
		name string
		info VideoInfo
		want int64
	}{
		{"two seconds at 30", VideoInfo{Duration: 2 * time.Second, FrameRate: 30}, 60},
		{"ten seconds at 30", VideoInfo{Duration: 10 * time.Second, FrameRate: 30}, 300},
		{"half second at 24", VideoInfo{Duration: 500 * time.Millisecond, FrameRate: 24}, 12},
		{"no duration", VideoInfo{FrameRate: 30}, 0},
		{"no frame rate", VideoInfo{Duration: time.Second}, 0},
		{"negative duration", VideoInfo{Duration: -time.Second, FrameRate: 30}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.info.TotalFrames(); got != tt.want {
				t.Errorf("TotalFrames() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestVideoInfoValidate(t *testing.T) {
	tests := []struct {
		name    string
		info    VideoInfo
		wantErr bool
	}{
		{"usable", VideoInfo{Width: 1920, Height: 1080, Duration: time.Second}, false},
		{"zero width", VideoInfo{Height: 1080, Duration: time.Second}, true},
		{"zero height", VideoInfo{Width: 1920, Duration: time.Second}, true},
		{"zero duration", VideoInfo{Width: 1920, Height: 1080}, true},
		{"negative geometry", VideoInfo{Width: -1, Height: 1080, Duration: time.Second}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.info.validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNormalizeRotation(t *testing.T) {
	tests := []struct {
		deg  int
		want int
	}{
		{0, 0},
		{90, 90},
		{180, 180},
		{270, 270},
		{360, 0},
		{450, 90},
		{-90, 270},
		{-180, 180},
		{-270, 90},
		{123, 0},
		{-1, 0},
	}
	for _, tt := range tests {
		if got := normalizeRotation(tt.deg); got != tt.want {
			t.Errorf("normalizeRotation(%d) = %d, want %d", tt.deg, got, tt.want)
		}
	}
}
