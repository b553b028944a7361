package unxip

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	unxiperrors "github.com/flaneur2020/unxip/unxip/errors"
)

func requireCommand(t *testing.T, name string) {
	t.Helper()
	if _, err := exec.LookPath(name); err != nil {
		t.Skipf("%s not available: %v", name, err)
	}
}

func TestCpioSink_Check(t *testing.T) {
	requireCommand(t, "sh")

	tests := []struct {
		name    string
		command string
		wantErr bool
	}{
		{"present", "sh", false},
		{"missing", "unxip-no-such-command", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := (&CpioSink{Command: tt.command}).Check()
			if tt.wantErr {
				if !errors.Is(err, unxiperrors.ErrProcess) {
					t.Fatalf("Check() error = %v, want ErrProcess", err)
				}
				if !strings.Contains(err.Error(), tt.command) {
					t.Errorf("error %q does not name the command", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Check() error = %v", err)
			}
		})
	}
}

func TestCpioSink_PipesPayload(t *testing.T) {
	requireCommand(t, "sh")
	dir := t.TempDir()
	payload := randomPayload(200*1024, 9)

	sink := &CpioSink{Command: "sh", Args: []string{"-c", "cat > payload.bin"}, BufferSize: 1000}
	if err := sink.Extract(context.Background(), dir, bytes.NewReader(payload)); err != nil {
		t.Fatalf("Extract: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(dir, "payload.bin"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("process received %d bytes, want %d matching bytes", len(got), len(payload))
	}
}

func TestCpioSink_ProcessFailure(t *testing.T) {
	requireCommand(t, "sh")

	sink := &CpioSink{Command: "sh", Args: []string{"-c", "cat > /dev/null; echo premature end of archive >&2; exit 2"}}
	err := sink.Extract(context.Background(), t.TempDir(), bytes.NewReader([]byte("not cpio")))
	if !errors.Is(err, unxiperrors.ErrProcess) {
		t.Fatalf("Extract() error = %v, want ErrProcess", err)
	}

	var ue *unxiperrors.UnxipError
	if !errors.As(err, &ue) {
		t.Fatalf("error %v is not an UnxipError", err)
	}
	if got := ue.Details["stderr"]; got != "premature end of archive" {
		t.Errorf("stderr detail = %q, want %q", got, "premature end of archive")
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) || exitErr.ExitCode() != 2 {
		t.Errorf("error %v does not carry exit code 2", err)
	}
}

type brokenReader struct {
	err error
}

func (b brokenReader) Read(p []byte) (int, error) {
	return 0, b.err
}

func TestCpioSink_PayloadError(t *testing.T) {
	requireCommand(t, "sh")

	decodeErr := unxiperrors.ErrDecompression.WithMessage("corrupt chunk")
	payload := io.MultiReader(bytes.NewReader(make([]byte, 5000)), brokenReader{err: decodeErr})

	sink := &CpioSink{Command: "sh", Args: []string{"-c", "cat > /dev/null"}}
	err := sink.Extract(context.Background(), t.TempDir(), payload)
	if err != decodeErr {
		t.Fatalf("Extract() error = %v, want the payload error", err)
	}
}

func TestCpioSink_EarlyExit(t *testing.T) {
	requireCommand(t, "sh")

	// The process exits successfully without reading its input.
	sink := &CpioSink{Command: "sh", Args: []string{"-c", "exit 0"}}
	payload := bytes.NewReader(make([]byte, 4<<20))
	if err := sink.Extract(context.Background(), t.TempDir(), payload); err != nil {
		t.Fatalf("Extract() error = %v, want nil", err)
	}
}

func TestTailBuffer(t *testing.T) {
	tb := &tailBuffer{limit: 8}

	for _, s := range []string{"abc", "defgh", "ijk", "0123456789"} {
		n, err := tb.Write([]byte(s))
		if err != nil || n != len(s) {
			t.Fatalf("Write(%q) = %d, %v", s, n, err)
		}
	}
	if got := tb.String(); got != "23456789" {
		t.Errorf("String() = %q, want %q", got, "23456789")
	}

	tb = &tailBuffer{limit: 8}
	tb.Write([]byte("abc"))
	tb.Write([]byte("defgh"))
	tb.Write([]byte("ij"))
	if got := tb.String(); got != "cdefghij" {
		t.Errorf("String() = %q, want %q", got, "cdefghij")
	}
}

// newcArchive builds a cpio archive in the "new ASCII" format that cpio -i
// detects automatically.
func newcArchive(files map[string]string, order []string) []byte {
	var buf bytes.Buffer
	pad := func() {
		for buf.Len()%4 != 0 {
			buf.WriteByte(0)
		}
	}
	entry := func(ino int, name string, mode uint32, data string) {
		fmt.Fprintf(&buf, "070701%08X%08X%08X%08X%08X%08X%08X%08X%08X%08X%08X%08X%08X",
			ino, mode, 0, 0, 1, 1700000000, len(data), 0, 0, 0, 0, len(name)+1, 0)
		buf.WriteString(name)
		buf.WriteByte(0)
		pad()
		buf.WriteString(data)
		pad()
	}
	for i, name := range order {
		entry(i+1, name, 0100644, files[name])
	}
	entry(0, "TRAILER!!!", 0, "")
	return buf.Bytes()
}

func TestExtract_Cpio(t *testing.T) {
	requireCommand(t, "cpio")

	files := map[string]string{
		"hello.txt":         "hello, world\n",
		"Xcode.app/Info":    strings.Repeat("plist ", 1000),
		"Xcode.app/Content": strings.Repeat("\x00\x01\x02\x03", 50000),
	}
	order := []string{"hello.txt", "Xcode.app/Info", "Xcode.app/Content"}
	xip := packXip(t, newcArchive(files, order), 64*1024)

	outputDir := filepath.Join(t.TempDir(), "out")
	if _, err := Extract(context.Background(), bytes.NewReader(xip), outputDir, nil); err != nil {
		t.Fatalf("Extract: %v", err)
	}

	for name, want := range files {
		got, err := os.ReadFile(filepath.Join(outputDir, name))
		if err != nil {
			t.Errorf("ReadFile(%s): %v", name, err)
			continue
		}
		if string(got) != want {
			t.Errorf("%s has %d bytes, want %d", name, len(got), len(want))
		}
	}
}
