package errors

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
)

func TestUnxipError_Error(t *testing.T) {
	tests := []struct {
		name    string
		err     *UnxipError
		wantStr string
	}{
		{
			name: "basic error",
			err: &UnxipError{
				Code:    "TEST_ERROR",
				Message: "test message",
			},
			wantStr: "[TEST_ERROR] test message",
		},
		{
			name: "error with cause",
			err: &UnxipError{
				Code:    "TEST_ERROR",
				Message: "test message",
				Cause:   errors.New("underlying error"),
			},
			wantStr: "[TEST_ERROR] test message: underlying error",
		},
		{
			name: "error with details",
			err: &UnxipError{
				Code:    "TEST_ERROR",
				Message: "test message",
				Details: map[string]interface{}{"key": "value"},
			},
			wantStr: "details",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.err.Error()
			if !strings.Contains(got, tt.wantStr) {
				t.Errorf("Error() = %q, want to contain %q", got, tt.wantStr)
			}
		})
	}
}

func TestUnxipError_WithCause(t *testing.T) {
	err := ErrIO.WithCause(io.ErrUnexpectedEOF)

	if err.Cause != io.ErrUnexpectedEOF {
		t.Errorf("WithCause() cause = %v, want %v", err.Cause, io.ErrUnexpectedEOF)
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Error("WithCause() should allow errors.Is to reach the cause")
	}
	if ErrIO.Cause != nil {
		t.Error("WithCause() must not modify the sentinel")
	}
}

func TestUnxipError_IsMatchesCode(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
		want   bool
	}{
		{
			name:   "derived format error",
			err:    ErrFormat.WithMessage("bad magic").WithDetail("magic", "xxxx"),
			target: ErrFormat,
			want:   true,
		},
		{
			name:   "wrapped with fmt",
			err:    fmt.Errorf("opening: %w", ErrDecompression.WithCause(errors.New("corrupt"))),
			target: ErrDecompression,
			want:   true,
		},
		{
			name:   "different code",
			err:    ErrIO.WithMessage("short read"),
			target: ErrFormat,
			want:   false,
		},
		{
			name:   "plain error",
			err:    errors.New("test"),
			target: ErrProcess,
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errors.Is(tt.err, tt.target); got != tt.want {
				t.Errorf("errors.Is() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUnxipError_WithDetail(t *testing.T) {
	base := ErrXar.WithDetail("path", "Content")
	err := base.WithDetail("offset", 42)

	if err.Details["path"] != "Content" {
		t.Errorf("path detail = %v, want Content", err.Details["path"])
	}
	if err.Details["offset"] != 42 {
		t.Errorf("offset detail = %v, want 42", err.Details["offset"])
	}
	if _, exists := base.Details["offset"]; exists {
		t.Error("WithDetail() should copy details instead of sharing them")
	}
}

func TestUnxipError_Messagef(t *testing.T) {
	err := ErrFormat.Messagef("bad chunk size %d", 7)

	if err.Message != "bad chunk size 7" {
		t.Errorf("Messagef() message = %q, want 'bad chunk size 7'", err.Message)
	}
	if err.Code != "FORMAT_ERROR" {
		t.Errorf("Code = %q, want FORMAT_ERROR", err.Code)
	}
}

func TestIsUnxipError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "UnxipError", err: ErrProcess, want: true},
		{name: "UnxipError with cause", err: ErrProcess.WithCause(errors.New("test")), want: true},
		{name: "wrapped UnxipError", err: fmt.Errorf("extracting: %w", ErrProcess), want: true},
		{name: "standard error", err: errors.New("test"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsUnxipError(tt.err); got != tt.want {
				t.Errorf("IsUnxipError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetErrorCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "UnxipError", err: ErrChecksum, want: "CHECKSUM_MISMATCH"},
		{name: "UnxipError with modifications", err: ErrNotFound.WithDetail("path", "Content"), want: "NOT_FOUND"},
		{name: "wrapped UnxipError", err: fmt.Errorf("decoding: %w", ErrIO.WithMessage("short read")), want: "IO_ERROR"},
		{name: "standard error", err: errors.New("test"), want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetErrorCode(tt.err); got != tt.want {
				t.Errorf("GetErrorCode() = %q, want %q", got, tt.want)
			}
		})
	}
}
