package unxip

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os/exec"
	"strings"
	"syscall"

	unxiperrors "github.com/flaneur2020/unxip/unxip/errors"
	"github.com/flaneur2020/unxip/unxip/logger"
)

// Sink consumes a decoded cpio stream.
type Sink interface {
	// Check reports whether the sink can run, before any decoding starts.
	Check() error
	// Extract reads payload until EOF and unpacks it into dir.
	Extract(ctx context.Context, dir string, payload io.Reader) error
}

// DefaultCpioArgs extract, create directories and preserve mtimes.
var DefaultCpioArgs = []string{"-idm"}

// maxStderr bounds the cpio diagnostics kept for error reports.
const maxStderr = 64 * 1024

// CpioSink pipes the payload into an external cpio process.
type CpioSink struct {
	// Command is the cpio executable. Defaults to "cpio".
	Command string
	// Args default to DefaultCpioArgs.
	Args []string
	// BufferSize is the pipe copy buffer size. Defaults to 32 KiB.
	BufferSize int
}

var _ Sink = (*CpioSink)(nil)

func (s *CpioSink) command() string {
	if s.Command == "" {
		return "cpio"
	}
	return s.Command
}

func (s *CpioSink) args() []string {
	if s.Args == nil {
		return DefaultCpioArgs
	}
	return s.Args
}

// Check looks the command up on PATH.
func (s *CpioSink) Check() error {
	if _, err := exec.LookPath(s.command()); err != nil {
		return unxiperrors.ErrProcess.Messagef("%s not found, please install it", s.command()).WithCause(err)
	}
	return nil
}

// Extract runs the command in dir with payload on its stdin. A payload read
// failure kills the process and is returned as is; a failing process is
// reported as ErrProcess with its stderr attached.
func (s *CpioSink) Extract(ctx context.Context, dir string, payload io.Reader) error {
	cmd := exec.CommandContext(ctx, s.command(), s.args()...)
	cmd.Dir = dir
	stderr := &tailBuffer{limit: maxStderr}
	cmd.Stderr = stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return unxiperrors.ErrProcess.WithMessage("creating stdin pipe").WithCause(err)
	}
	if err := cmd.Start(); err != nil {
		return unxiperrors.ErrProcess.Messagef("starting %s", s.command()).WithCause(err)
	}
	logger.Debug("started %s %s in %s (pid %d)", s.command(), strings.Join(s.args(), " "), dir, cmd.Process.Pid)

	size := s.BufferSize
	if size <= 0 {
		size = DefaultBufferSize
	}
	in := &errRecorder{reader: payload}
	_, copyErr := io.CopyBuffer(struct{ io.Writer }{stdin}, in, make([]byte, size))
	closeErr := stdin.Close()

	if in.err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return in.err
	}

	if err := cmd.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return unxiperrors.ErrProcess.Messagef("%s failed: %v", s.command(), err).
			WithDetail("stderr", strings.TrimSpace(stderr.String())).
			WithCause(err)
	}
	if errors.Is(copyErr, syscall.EPIPE) {
		logger.Warn("%s exited before reading the whole payload", s.command())
		return nil
	}
	if copyErr != nil {
		return unxiperrors.ErrIO.Messagef("writing to %s", s.command()).WithCause(copyErr)
	}
	if closeErr != nil {
		return unxiperrors.ErrIO.Messagef("closing %s stdin", s.command()).WithCause(closeErr)
	}
	return nil
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	buf   bytes.Buffer
	limit int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	n := len(p)
	if len(p) > t.limit {
		p = p[len(p)-t.limit:]
	}
	if over := t.buf.Len() + len(p) - t.limit; over > 0 {
		t.buf.Next(over)
	}
	t.buf.Write(p)
	return n, nil
}

func (t *tailBuffer) String() string {
	return t.buf.String()
}
