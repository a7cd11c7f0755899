package transcode

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorKind_String(t *testing.T) {
	tests := []struct {
		kind ErrorKind
		want string
	}{
		{KindInvalidInput, "invalid input"},
		{KindCompression, "compression failure"},
		{KindPostcondition, "postcondition failure"},
		{KindUnexpected, "unexpected failure"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.kind.String(); got != tt.want {
				t.Errorf("ErrorKind.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestError_Message(t *testing.T) {
	e := &Error{Kind: KindInvalidInput, Op: "probe", Err: errors.New("boom")}
	want := "probe: invalid input: boom"
	if got := e.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	bare := &Error{Kind: KindPostcondition, Op: "verify output"}
	want = "verify output: postcondition failure"
	if got := bare.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	e := &Error{Kind: KindCompression, Op: "pipeline", Err: fmt.Errorf("wrapped: %w", cause)}
	if !errors.Is(e, cause) {
		t.Error("errors.Is(e, cause) = false, want true")
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"direct", &Error{Kind: KindInvalidInput, Op: "stage source"}, KindInvalidInput},
		{"wrapped", fmt.Errorf("outer: %w", &Error{Kind: KindPostcondition, Op: "verify output"}), KindPostcondition},
		{"foreign", errors.New("not ours"), KindUnexpected},
		{"nil", nil, KindUnexpected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %v, want %v", got, tt.want)
			}
		})
	}
}
