package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorFormat(t *testing.T) {
	err := New(CodeMalformedInput, "bad header").WithContext("line", 3)
	msg := err.Error()
	if !strings.Contains(msg, "E101") || !strings.Contains(msg, "bad header") {
		t.Errorf("Error() = %q", msg)
	}
	if !strings.Contains(msg, "line=3") {
		t.Errorf("Error() = %q, context missing", msg)
	}
}

func TestWrap(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(cause, CodeWriteFailed, "failed to write output")

	if !errors.Is(err, cause) {
		t.Error("wrapped cause not found in chain")
	}
	if !strings.Contains(err.Error(), "disk full") {
		t.Errorf("Error() = %q, cause missing", err.Error())
	}

	if Wrap(nil, CodeWriteFailed, "x") != nil {
		t.Error("Wrap(nil) != nil")
	}
}

func TestCodeOf(t *testing.T) {
	direct := New(CodeThreshold, "too many failures")
	if CodeOf(direct) != CodeThreshold {
		t.Errorf("CodeOf(direct) = %s", CodeOf(direct))
	}

	// Codes survive further wrapping with plain fmt errors.
	wrapped := fmt.Errorf("run failed: %w", direct)
	if CodeOf(wrapped) != CodeThreshold {
		t.Errorf("CodeOf(wrapped) = %s", CodeOf(wrapped))
	}

	if CodeOf(errors.New("plain")) != CodeUnknown {
		t.Errorf("CodeOf(plain) = %s", CodeOf(errors.New("plain")))
	}
}

func TestIsMatchesByCode(t *testing.T) {
	a := DrawTimeout(3, "5s")
	b := New(CodeProcessTimeout, "different message")
	if !errors.Is(a, b) {
		t.Error("errors with the same code should match")
	}
	if errors.Is(a, New(CodeProcessExit, "x")) {
		t.Error("errors with different codes should not match")
	}
}

func TestIsFatal(t *testing.T) {
	tests := []struct {
		err   error
		fatal bool
	}{
		{DrawTimeout(0, "1s"), false},
		{New(CodeProcessExit, "exit 1"), false},
		{OutputParse(0, "bad row"), false},
		{ProcessLaunch("/bin/model", errors.New("no such file")), true},
		{New(CodeSchemaMismatch, "shape"), true},
		{New(CodeThreshold, "rate"), true},
		{errors.New("plain"), true},
	}
	for _, tt := range tests {
		if got := IsFatal(tt.err); got != tt.fatal {
			t.Errorf("IsFatal(%v) = %v, want %v", tt.err, got, tt.fatal)
		}
	}
}

func TestStackTrace(t *testing.T) {
	err := New(CodeUnknown, "boom")
	if len(err.StackTrace) == 0 {
		t.Fatal("no stack captured")
	}
	if !strings.Contains(err.FormatStack(), "errors_test") {
		t.Errorf("FormatStack() = %q, caller missing", err.FormatStack())
	}
}
