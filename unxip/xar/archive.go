package xar

import (
	"bytes"
	"encoding/hex"
	"encoding/xml"
	"io"
	"path"
	"strings"

	"github.com/klauspost/compress/zlib"

	unxiperrors "github.com/flaneur2020/unxip/unxip/errors"
	"github.com/flaneur2020/unxip/unxip/logger"
)

const maxTOCSize = 256 << 20

// Archive is an opened XAR archive. Only the header and TOC are read by
// Open; entry data stays in the underlying reader.
type Archive struct {
	Header Header
	TOC    *TOC

	r      io.ReaderAt
	size   int64
	rawTOC []byte
}

// Open parses the header and table of contents of the archive in r, which is
// size bytes long.
func Open(r io.ReaderAt, size int64) (*Archive, error) {
	a := &Archive{r: r, size: size}
	if err := a.Header.Read(io.NewSectionReader(r, 0, size)); err != nil {
		return nil, err
	}

	h := a.Header
	if h.HeapStart() < uint64(h.Size) || h.HeapStart() > uint64(size) {
		return nil, unxiperrors.ErrXar.Messagef("compressed toc length %d exceeds archive size %d", h.TOCCompressed, size)
	}

	if h.TOCUncompressed > maxTOCSize {
		return nil, unxiperrors.ErrXar.Messagef("toc of %d bytes is too large", h.TOCUncompressed)
	}

	a.rawTOC = make([]byte, h.TOCCompressed)
	if err := readFullAt(r, a.rawTOC, int64(h.Size)); err != nil {
		return nil, unxiperrors.ErrIO.WithMessage("reading xar toc").WithCause(err)
	}

	zr, err := zlib.NewReader(bytes.NewReader(a.rawTOC))
	if err != nil {
		return nil, unxiperrors.ErrXar.WithMessage("opening compressed toc").WithCause(err)
	}
	defer zr.Close()

	// one extra byte so an understated length is detected
	tocXML, err := io.ReadAll(io.LimitReader(zr, int64(h.TOCUncompressed)+1))
	if err != nil {
		return nil, unxiperrors.ErrXar.WithMessage("inflating toc").WithCause(err)
	}
	if uint64(len(tocXML)) != h.TOCUncompressed {
		return nil, unxiperrors.ErrXar.Messagef("toc is %d bytes, header says %d", len(tocXML), h.TOCUncompressed)
	}

	a.TOC = &TOC{}
	if err := xml.Unmarshal(tocXML, a.TOC); err != nil {
		return nil, unxiperrors.ErrXar.WithMessage("parsing toc xml").WithCause(err)
	}
	for _, f := range a.TOC.Files {
		f.setHeapStart(h.HeapStart())
	}

	logger.Debug("xar archive: header %d bytes, toc %d/%d bytes, heap at %d, %d top-level entries",
		h.Size, h.TOCCompressed, h.TOCUncompressed, h.HeapStart(), len(a.TOC.Files))
	return a, nil
}

// HeapStart is the absolute offset of the heap.
func (a *Archive) HeapStart() uint64 {
	return a.Header.HeapStart()
}

// Find returns the entry at the slash-separated path p.
func (a *Archive) Find(p string) (*File, error) {
	parts := strings.Split(strings.Trim(path.Clean("/"+p), "/"), "/")
	files := a.TOC.Files

	var found *File
	for _, name := range parts {
		found = nil
		for _, f := range files {
			if f.Name == name {
				found = f
				break
			}
		}
		if found == nil {
			return nil, unxiperrors.ErrNotFound.Messagef("no %s entry in xar archive", p).WithDetail("path", p)
		}
		files = found.Files
	}
	return found, nil
}

// Walk calls fn for every entry in depth-first order with its full path.
// Returning an error from fn stops the walk.
func (a *Archive) Walk(fn func(p string, f *File) error) error {
	var walk func(prefix string, files []*File) error
	walk = func(prefix string, files []*File) error {
		for _, f := range files {
			p := path.Join(prefix, f.Name)
			if err := fn(p, f); err != nil {
				return err
			}
			if err := walk(p, f.Files); err != nil {
				return err
			}
		}
		return nil
	}
	return walk("", a.TOC.Files)
}

// Section returns a reader over the stored bytes of f.
func (a *Archive) Section(f *File) *io.SectionReader {
	return io.NewSectionReader(a.r, int64(f.Offset()), int64(f.Length()))
}

// VerifyTOC checks the TOC checksum stored at the start of the heap.
func (a *Archive) VerifyTOC() error {
	if a.Header.Checksum == ChecksumNone {
		return nil
	}
	style := a.Header.Style()
	if a.TOC.Checksum == nil {
		return unxiperrors.ErrXar.WithMessage("toc has no checksum location")
	}

	stored := make([]byte, a.TOC.Checksum.Size)
	if err := readFullAt(a.r, stored, int64(a.HeapStart()+a.TOC.Checksum.Offset)); err != nil {
		return unxiperrors.ErrIO.WithMessage("reading toc checksum").WithCause(err)
	}
	got, err := sumHex(style, bytes.NewReader(a.rawTOC))
	if err != nil {
		return err
	}
	if want := hex.EncodeToString(stored); got != want {
		return checksumMismatch("toc", style, want, got)
	}
	return nil
}

// Verify checks the archived checksum of f against its stored bytes.
func (a *Archive) Verify(f *File) error {
	if f.Data == nil {
		return nil
	}
	want := f.Data.ArchivedChecksum
	if want.Style == "" || strings.EqualFold(want.Style, "none") {
		logger.Warn("xar entry %q has no archived checksum", f.Name)
		return nil
	}
	got, err := sumHex(want.Style, a.Section(f))
	if err != nil {
		return err
	}
	if got != want.Hex() {
		return checksumMismatch(f.Name, want.Style, want.Hex(), got)
	}
	return nil
}

func readFullAt(r io.ReaderAt, p []byte, off int64) error {
	n, err := r.ReadAt(p, off)
	if n == len(p) {
		return nil
	}
	if err == nil || err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return err
}
