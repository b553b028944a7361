package unxip

import (
	"context"
	"io"
)

// progressReader wraps an io.Reader to report how far the source has been
// consumed
type progressReader struct {
	reader   io.Reader
	position func() (current, total int64)
	callback ProgressCallback
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	if pr.callback != nil {
		pr.callback(pr.position())
	}
	return n, err
}

// contextReader stops reading once ctx is done.
type contextReader struct {
	ctx    context.Context
	reader io.Reader
}

func (cr *contextReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}
	return cr.reader.Read(p)
}

// errRecorder remembers the first non-EOF error returned by reader, so a
// consumer can tell read failures from write failures.
type errRecorder struct {
	reader io.Reader
	err    error
}

func (er *errRecorder) Read(p []byte) (int, error) {
	n, err := er.reader.Read(p)
	if err != nil && err != io.EOF && er.err == nil {
		er.err = err
	}
	return n, err
}
