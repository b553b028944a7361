package xar

import (
	"bytes"
	"encoding/binary"
	"io"

	unxiperrors "github.com/flaneur2020/unxip/unxip/errors"
)

const (
	// Magic is "xar!" read as a big-endian uint32.
	Magic uint32 = 0x78617221

	// HeaderSize is the size of the fixed header fields.
	HeaderSize = 28

	// Version is the only header version in use.
	Version uint16 = 1
)

// ChecksumAlgorithm is the TOC checksum algorithm recorded in the header.
type ChecksumAlgorithm uint32

// Checksum algorithms understood by the header.
const (
	ChecksumNone  ChecksumAlgorithm = 0
	ChecksumSHA1  ChecksumAlgorithm = 1
	ChecksumMD5   ChecksumAlgorithm = 2
	ChecksumOther ChecksumAlgorithm = 3
)

// Header is the fixed-size archive header.
type Header struct {
	Magic           uint32
	Size            uint16
	Version         uint16
	TOCCompressed   uint64
	TOCUncompressed uint64
	Checksum        ChecksumAlgorithm

	// ChecksumName is set when Checksum is ChecksumOther.
	ChecksumName string
}

// Style returns the checksum style name as it appears in the TOC.
func (h Header) Style() string {
	switch h.Checksum {
	case ChecksumSHA1:
		return "sha1"
	case ChecksumMD5:
		return "md5"
	case ChecksumOther:
		return h.ChecksumName
	}
	return "none"
}

// HeapStart is the absolute offset of the heap.
func (h Header) HeapStart() uint64 {
	return uint64(h.Size) + h.TOCCompressed
}

func (h *Header) Read(r io.Reader) error {
	var buf [HeaderSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return unxiperrors.ErrIO.WithMessage("reading xar header").WithCause(err)
	}
	h.Magic = binary.BigEndian.Uint32(buf[0:4])
	if h.Magic != Magic {
		return unxiperrors.ErrXar.Messagef("bad xar magic: %q", buf[0:4])
	}
	h.Size = binary.BigEndian.Uint16(buf[4:6])
	h.Version = binary.BigEndian.Uint16(buf[6:8])
	h.TOCCompressed = binary.BigEndian.Uint64(buf[8:16])
	h.TOCUncompressed = binary.BigEndian.Uint64(buf[16:24])
	h.Checksum = ChecksumAlgorithm(binary.BigEndian.Uint32(buf[24:28]))

	if h.Size < HeaderSize {
		return unxiperrors.ErrXar.Messagef("xar header size %d is smaller than %d", h.Size, HeaderSize)
	}
	if h.Version != Version {
		return unxiperrors.ErrXar.Messagef("unsupported xar version %d", h.Version)
	}

	extra := make([]byte, int(h.Size)-HeaderSize)
	if _, err := io.ReadFull(r, extra); err != nil {
		return unxiperrors.ErrIO.WithMessage("reading xar header").WithCause(err)
	}
	if h.Checksum == ChecksumOther {
		if i := bytes.IndexByte(extra, 0); i >= 0 {
			extra = extra[:i]
		}
		h.ChecksumName = string(extra)
	}
	return nil
}

// Write serializes the header, padding it to h.Size.
func (h Header) Write(w io.Writer) error {
	buf := make([]byte, h.Size)
	binary.BigEndian.PutUint32(buf[0:4], Magic)
	binary.BigEndian.PutUint16(buf[4:6], h.Size)
	binary.BigEndian.PutUint16(buf[6:8], h.Version)
	binary.BigEndian.PutUint64(buf[8:16], h.TOCCompressed)
	binary.BigEndian.PutUint64(buf[16:24], h.TOCUncompressed)
	binary.BigEndian.PutUint32(buf[24:28], uint32(h.Checksum))
	if h.Checksum == ChecksumOther {
		copy(buf[HeaderSize:], h.ChecksumName)
	}
	_, err := w.Write(buf)
	return err
}
