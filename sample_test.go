package transcode

import (
	"testing"
)

func TestSampleFlags_Has(t *testing.T) {
	f := SampleFlagKeyFrame | SampleFlagEndOfStream
	if !f.Has(SampleFlagKeyFrame) {
		t.Error("Has(SampleFlagKeyFrame) = false, want true")
	}
	if !f.Has(SampleFlagEndOfStream) {
		t.Error("Has(SampleFlagEndOfStream) = false, want true")
	}
	if f.Has(SampleFlagCodecConfig) {
		t.Error("Has(SampleFlagCodecConfig) = true, want false")
	}
}

func TestSampleFlags_String(t *testing.T) {
	tests := []struct {
		flags SampleFlags
		want  string
	}{
		{0, "none"},
		{SampleFlagKeyFrame, "key"},
		{SampleFlagCodecConfig, "config"},
		{SampleFlagEndOfStream, "eos"},
		{SampleFlagKeyFrame | SampleFlagEndOfStream, "key|eos"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.flags.String(); got != tt.want {
				t.Errorf("SampleFlags.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSample_Predicates(t *testing.T) {
	key := Sample{Flags: SampleFlagKeyFrame}
	if !key.IsKeyFrame() || key.IsEndOfStream() {
		t.Errorf("key sample predicates = (%v, %v), want (true, false)", key.IsKeyFrame(), key.IsEndOfStream())
	}
	eos := Sample{Flags: SampleFlagEndOfStream}
	if eos.IsKeyFrame() || !eos.IsEndOfStream() {
		t.Errorf("eos sample predicates = (%v, %v), want (false, true)", eos.IsKeyFrame(), eos.IsEndOfStream())
	}
}
