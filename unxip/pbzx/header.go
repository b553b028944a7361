package pbzx

import (
	"encoding/binary"
	"io"

	unxiperrors "github.com/flaneur2020/unxip/unxip/errors"
)

const (
	// Magic is the 4-byte signature at the start of every pbzx stream.
	Magic = "pbzx"

	// StreamHeaderSize is the size of the magic plus the initial flags.
	StreamHeaderSize = 12

	// ChunkHeaderSize is the size of a chunk's flags and size fields.
	ChunkHeaderSize = 16

	// RawChunkSize is the one payload size that marks a chunk as stored
	// without compression.
	RawChunkSize = 1 << 24

	// ContinuationFlag is set in a flags word when another chunk follows.
	ContinuationFlag uint64 = 1 << 24
)

// XZMagic is the signature every compressed chunk payload starts with.
var XZMagic = []byte{0xFD, '7', 'z', 'X', 'Z', 0x00}

// ChunkHeader precedes every chunk payload in the stream.
type ChunkHeader struct {
	// Flags replaces the decoder's current flags. Bit 24 signals that more
	// chunks follow.
	Flags uint64

	// Size is the number of payload bytes after the header.
	Size uint64
}

// More reports whether the continuation bit is set.
func (h ChunkHeader) More() bool {
	return h.Flags&ContinuationFlag != 0
}

// Kind returns the codec the payload is encoded with.
func (h ChunkHeader) Kind() ChunkKind {
	return KindForSize(h.Size)
}

// Write serializes the header.
func (h ChunkHeader) Write(w io.Writer) error {
	var buf [ChunkHeaderSize]byte
	binary.BigEndian.PutUint64(buf[0:8], h.Flags)
	binary.BigEndian.PutUint64(buf[8:16], h.Size)
	_, err := w.Write(buf[:])
	return err
}

func (h *ChunkHeader) Read(r io.Reader) error {
	var buf [ChunkHeaderSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return unxiperrors.ErrIO.WithMessage("reading chunk header").WithCause(err)
	}
	h.Flags = binary.BigEndian.Uint64(buf[0:8])
	h.Size = binary.BigEndian.Uint64(buf[8:16])
	return nil
}

// WriteStreamHeader writes the magic followed by the initial flags.
func WriteStreamHeader(w io.Writer, flags uint64) error {
	var buf [StreamHeaderSize]byte
	copy(buf[:4], Magic)
	binary.BigEndian.PutUint64(buf[4:], flags)
	_, err := w.Write(buf[:])
	return err
}

// ReadStreamHeader checks the magic and returns the initial flags.
func ReadStreamHeader(r io.Reader) (flags uint64, err error) {
	var buf [StreamHeaderSize]byte
	if _, err = io.ReadFull(r, buf[:4]); err != nil {
		return 0, unxiperrors.ErrIO.WithMessage("reading pbzx magic").WithCause(err)
	}
	if string(buf[:4]) != Magic {
		return 0, unxiperrors.ErrFormat.Messagef("bad pbzx magic: %q", buf[:4])
	}
	if _, err = io.ReadFull(r, buf[4:]); err != nil {
		return 0, unxiperrors.ErrIO.WithMessage("reading pbzx flags").WithCause(err)
	}
	return binary.BigEndian.Uint64(buf[4:]), nil
}
