// Package errors defines the coded errors returned while locating, decoding
// and unpacking a .xip payload. Callers branch on the code with errors.Is
// against the sentinels below; every builder returns a copy, so the
// sentinels themselves never change.
package errors

import (
	stderrors "errors"
	"fmt"
)

var (
	// ErrFormat: a pbzx magic, chunk compression signature or chunk size
	// is wrong.
	ErrFormat = &UnxipError{Code: "FORMAT_ERROR", Message: "malformed pbzx stream"}

	// ErrIO: the archive ended early or a read from it failed.
	ErrIO = &UnxipError{Code: "IO_ERROR", Message: "read failed"}

	// ErrDecompression: an xz chunk is corrupt.
	ErrDecompression = &UnxipError{Code: "DECOMPRESSION_ERROR", Message: "xz decompression failed"}

	// ErrProcess: cpio is missing, did not start or exited nonzero.
	ErrProcess = &UnxipError{Code: "PROCESS_ERROR", Message: "cpio failed"}

	// ErrXar: the xar header or table of contents is unusable.
	ErrXar = &UnxipError{Code: "XAR_ERROR", Message: "invalid xar container"}

	// ErrChecksum: a toc or entry checksum does not match the archive bytes.
	ErrChecksum = &UnxipError{Code: "CHECKSUM_MISMATCH", Message: "checksum mismatch"}

	// ErrNotFound: the archive or the requested xar entry does not exist.
	ErrNotFound = &UnxipError{Code: "NOT_FOUND", Message: "not found"}
)

// UnxipError carries a stable code plus whatever context the failing layer
// knew: the chunk index, an offset, cpio's stderr.
type UnxipError struct {
	Code    string
	Message string
	Cause   error
	Details map[string]interface{}
}

func (e *UnxipError) Error() string {
	switch {
	case e.Cause != nil:
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	case len(e.Details) > 0:
		return fmt.Sprintf("[%s] %s (details: %v)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *UnxipError) Unwrap() error {
	return e.Cause
}

// Is matches any UnxipError with the same code, so errors.Is(err, ErrFormat)
// holds for every format error whatever its message or details.
func (e *UnxipError) Is(target error) bool {
	t, ok := target.(*UnxipError)
	return ok && t.Code == e.Code
}

func (e *UnxipError) clone() *UnxipError {
	c := *e
	return &c
}

// WithCause returns a copy wrapping cause.
func (e *UnxipError) WithCause(cause error) *UnxipError {
	c := e.clone()
	c.Cause = cause
	return c
}

// WithDetail returns a copy with key set; the receiver's map is not shared.
func (e *UnxipError) WithDetail(key string, value interface{}) *UnxipError {
	c := e.clone()
	c.Details = make(map[string]interface{}, len(e.Details)+1)
	for k, v := range e.Details {
		c.Details[k] = v
	}
	c.Details[key] = value
	return c
}

// WithMessage returns a copy with a more specific message.
func (e *UnxipError) WithMessage(message string) *UnxipError {
	c := e.clone()
	c.Message = message
	return c
}

func (e *UnxipError) Messagef(format string, args ...interface{}) *UnxipError {
	return e.WithMessage(fmt.Sprintf(format, args...))
}

// IsUnxipError reports whether err, or anything it wraps, is an UnxipError.
func IsUnxipError(err error) bool {
	var ue *UnxipError
	return stderrors.As(err, &ue)
}

// GetErrorCode returns the code of the first UnxipError in err's chain, or
// "" if there is none.
func GetErrorCode(err error) string {
	var ue *UnxipError
	if stderrors.As(err, &ue) {
		return ue.Code
	}
	return ""
}
