package xar

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	unxiperrors "github.com/flaneur2020/unxip/unxip/errors"
)

func buildArchive(t *testing.T, opts WriteOptions, entries map[string][]byte, order ...string) []byte {
	t.Helper()
	var list []Entry
	for _, name := range order {
		data := entries[name]
		list = append(list, Entry{Name: name, Content: bytes.NewReader(data), Size: int64(len(data))})
	}
	buf := &bytes.Buffer{}
	if err := WriteArchive(buf, opts, list...); err != nil {
		t.Fatalf("WriteArchive: %v", err)
	}
	return buf.Bytes()
}

func TestArchive_RoundTrip(t *testing.T) {
	entries := map[string][]byte{
		"Content":  bytes.Repeat([]byte("pbzx payload "), 500),
		"Metadata": []byte("<?xml version=\"1.0\"?><metadata/>"),
	}

	tests := []struct {
		name string
		opts WriteOptions
	}{
		{name: "sha1 toc, sha256 files", opts: DefaultWriteOptions},
		{name: "md5 toc, sha1 files", opts: WriteOptions{TOCChecksum: "md5", FileChecksum: "sha1"}},
		{name: "named sha256 toc, sha512 files", opts: WriteOptions{TOCChecksum: "sha256", FileChecksum: "sha512"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := buildArchive(t, tt.opts, entries, "Content", "Metadata")

			a, err := Open(bytes.NewReader(data), int64(len(data)))
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			if got := a.Header.Style(); got != tt.opts.TOCChecksum {
				t.Errorf("header checksum style = %q, want %q", got, tt.opts.TOCChecksum)
			}
			if err := a.VerifyTOC(); err != nil {
				t.Errorf("VerifyTOC: %v", err)
			}

			for _, name := range []string{"Content", "Metadata"} {
				f, err := a.Find(name)
				if err != nil {
					t.Fatalf("Find(%q): %v", name, err)
				}
				if f.Length() != uint64(len(entries[name])) {
					t.Errorf("%s length = %d, want %d", name, f.Length(), len(entries[name]))
				}
				if f.Offset() < a.HeapStart() {
					t.Errorf("%s offset %d is before the heap at %d", name, f.Offset(), a.HeapStart())
				}
				got := data[f.Offset() : f.Offset()+f.Length()]
				if !bytes.Equal(got, entries[name]) {
					t.Errorf("%s bytes at offset %d differ", name, f.Offset())
				}
				section, err := io.ReadAll(a.Section(f))
				if err != nil || !bytes.Equal(section, entries[name]) {
					t.Errorf("Section(%s) = %d bytes, %v", name, len(section), err)
				}
				if err := a.Verify(f); err != nil {
					t.Errorf("Verify(%s): %v", name, err)
				}
			}
		})
	}
}

func TestArchive_ChecksumMismatch(t *testing.T) {
	entries := map[string][]byte{"Content": []byte("stored content bytes")}
	data := buildArchive(t, DefaultWriteOptions, entries, "Content")

	a, err := Open(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	f, err := a.Find("Content")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}

	t.Run("file", func(t *testing.T) {
		broken := append([]byte{}, data...)
		broken[f.Offset()] ^= 0xff
		b, err := Open(bytes.NewReader(broken), int64(len(broken)))
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		bf, _ := b.Find("Content")
		if err := b.Verify(bf); !errors.Is(err, unxiperrors.ErrChecksum) {
			t.Fatalf("Verify() error = %v, want checksum mismatch", err)
		}
		if err := b.VerifyTOC(); err != nil {
			t.Errorf("VerifyTOC() = %v, toc is untouched", err)
		}
	})

	t.Run("toc", func(t *testing.T) {
		broken := append([]byte{}, data...)
		broken[a.HeapStart()] ^= 0xff
		b, err := Open(bytes.NewReader(broken), int64(len(broken)))
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		if err := b.VerifyTOC(); !errors.Is(err, unxiperrors.ErrChecksum) {
			t.Fatalf("VerifyTOC() error = %v, want checksum mismatch", err)
		}
	})
}

func TestOpen_Errors(t *testing.T) {
	good := buildArchive(t, DefaultWriteOptions, map[string][]byte{"Content": []byte("x")}, "Content")

	patch := func(fn func(b []byte)) []byte {
		b := append([]byte{}, good...)
		fn(b)
		return b
	}

	tests := []struct {
		name     string
		data     []byte
		wantKind error
	}{
		{
			name:     "bad magic",
			data:     patch(func(b []byte) { copy(b, "pbzx") }),
			wantKind: unxiperrors.ErrXar,
		},
		{
			name:     "short header",
			data:     good[:10],
			wantKind: unxiperrors.ErrIO,
		},
		{
			name:     "bad version",
			data:     patch(func(b []byte) { binary.BigEndian.PutUint16(b[6:8], 7) }),
			wantKind: unxiperrors.ErrXar,
		},
		{
			name:     "toc past end",
			data:     patch(func(b []byte) { binary.BigEndian.PutUint64(b[8:16], 1<<30) }),
			wantKind: unxiperrors.ErrXar,
		},
		{
			name: "toc length mismatch",
			data: patch(func(b []byte) {
				n := binary.BigEndian.Uint64(b[16:24])
				binary.BigEndian.PutUint64(b[16:24], n-1)
			}),
			wantKind: unxiperrors.ErrXar,
		},
		{
			name:     "corrupt toc stream",
			data:     patch(func(b []byte) { b[HeaderSize] ^= 0xff }),
			wantKind: unxiperrors.ErrXar,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Open(bytes.NewReader(tt.data), int64(len(tt.data)))
			if !errors.Is(err, tt.wantKind) {
				t.Fatalf("Open() error = %v, want kind %v", err, tt.wantKind)
			}
		})
	}
}

func TestArchive_FindAndWalk(t *testing.T) {
	a := &Archive{TOC: &TOC{Files: []*File{
		{Name: "Content", Type: "file", Data: &Data{Offset: 20, Length: 100}},
		{Name: "Payload", Type: "directory", Files: []*File{
			{Name: "inner", Type: "file", Data: &Data{Offset: 120, Length: 5}},
		}},
	}}}
	for _, f := range a.TOC.Files {
		f.setHeapStart(1000)
	}

	f, err := a.Find("Payload/inner")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if f.Offset() != 1120 || f.Length() != 5 {
		t.Errorf("inner offset/length = %d/%d, want 1120/5", f.Offset(), f.Length())
	}
	if _, err := a.Find("/Content"); err != nil {
		t.Errorf("Find with leading slash: %v", err)
	}
	if _, err := a.Find("Missing"); !errors.Is(err, unxiperrors.ErrNotFound) {
		t.Errorf("Find(Missing) error = %v, want not found", err)
	}

	var paths []string
	if err := a.Walk(func(p string, f *File) error {
		paths = append(paths, p)
		return nil
	}); err != nil {
		t.Fatalf("Walk: %v", err)
	}
	want := []string{"Content", "Payload", "Payload/inner"}
	if len(paths) != len(want) {
		t.Fatalf("Walk paths = %v, want %v", paths, want)
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Errorf("Walk paths[%d] = %q, want %q", i, paths[i], want[i])
		}
	}

	stop := errors.New("stop")
	if err := a.Walk(func(string, *File) error { return stop }); err != stop {
		t.Errorf("Walk() error = %v, want the callback error", err)
	}
}
