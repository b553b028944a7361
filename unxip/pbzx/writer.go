package pbzx

import (
	"bytes"
	"io"

	"github.com/ulikunitz/xz"

	unxiperrors "github.com/flaneur2020/unxip/unxip/errors"
)

// Writer encodes data as a pbzx stream. Input is cut into chunks of
// ChunkSize bytes; each chunk is written as an XZ stream, except a full
// RawChunkSize chunk that XZ cannot shrink, which is stored raw.
//
// A chunk is only written once the next byte arrives or Close is called, so
// that the final chunk can carry a cleared continuation bit.
type Writer struct {
	w         io.Writer
	chunkSize int

	pending     []byte
	compressed  bytes.Buffer
	compress    func(dst *bytes.Buffer, data []byte) error
	wroteHeader bool
	closed      bool
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithChunkSize sets the number of uncompressed bytes per chunk. Values
// outside (0, RawChunkSize] are ignored.
func WithChunkSize(n int) WriterOption {
	return func(w *Writer) {
		if n > 0 && n <= RawChunkSize {
			w.chunkSize = n
		}
	}
}

// NewWriter returns a Writer that writes a pbzx stream to w. Nothing is
// written until the first chunk is complete or Close is called.
func NewWriter(w io.Writer, options ...WriterOption) *Writer {
	pw := &Writer{
		w:         w,
		chunkSize: RawChunkSize,
		compress:  compressXZ,
	}
	for _, o := range options {
		o(pw)
	}
	return pw
}

func (w *Writer) Write(p []byte) (int, error) {
	if w.closed {
		return 0, unxiperrors.ErrIO.WithMessage("write to closed pbzx writer")
	}
	written := 0
	for len(p) > 0 {
		if len(w.pending) == w.chunkSize {
			if err := w.flushChunk(true); err != nil {
				return written, err
			}
		}
		n := w.chunkSize - len(w.pending)
		if n > len(p) {
			n = len(p)
		}
		w.pending = append(w.pending, p[:n]...)
		p = p[n:]
		written += n
	}
	return written, nil
}

// Close writes the remaining chunks. It does not close the underlying writer.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if len(w.pending) == 0 {
		if !w.wroteHeader {
			return WriteStreamHeader(w.w, 0)
		}
		return nil
	}
	for len(w.pending) > 0 {
		if err := w.flushChunk(false); err != nil {
			return err
		}
	}
	return nil
}

// flushChunk writes pending as one chunk. A short chunk whose XZ stream is
// exactly RawChunkSize bytes would read back as raw, so it is cut one byte
// shorter and the tail stays pending for the next chunk.
func (w *Writer) flushChunk(more bool) error {
	if !w.wroteHeader {
		if err := WriteStreamHeader(w.w, ContinuationFlag); err != nil {
			return err
		}
		w.wroteHeader = true
	}

	data := w.pending
	payload, err := w.encode(data)
	for err == nil && payload == nil {
		data = data[:len(data)-1]
		more = true
		payload, err = w.encode(data)
	}
	if err != nil {
		return err
	}

	flags := uint64(len(data))
	if more {
		flags |= ContinuationFlag
	} else {
		flags &^= ContinuationFlag
	}
	h := ChunkHeader{Flags: flags, Size: uint64(len(payload))}
	if err := h.Write(w.w); err != nil {
		return err
	}
	if _, err := w.w.Write(payload); err != nil {
		return err
	}
	w.pending = w.pending[:copy(w.pending, w.pending[len(data):])]
	return nil
}

// encode returns the chunk payload for data, or nil when the compressed form
// collides with the raw chunk size.
func (w *Writer) encode(data []byte) ([]byte, error) {
	w.compressed.Reset()
	if err := w.compress(&w.compressed, data); err != nil {
		return nil, err
	}

	switch {
	case len(data) == RawChunkSize && w.compressed.Len() >= RawChunkSize:
		return data, nil
	case w.compressed.Len() == RawChunkSize:
		return nil, nil
	}
	return w.compressed.Bytes(), nil
}

func compressXZ(dst *bytes.Buffer, data []byte) error {
	xw, err := xz.NewWriter(dst)
	if err != nil {
		return unxiperrors.ErrIO.WithMessage("creating xz writer").WithCause(err)
	}
	if _, err := xw.Write(data); err != nil {
		return unxiperrors.ErrIO.WithMessage("compressing chunk").WithCause(err)
	}
	if err := xw.Close(); err != nil {
		return unxiperrors.ErrIO.WithMessage("compressing chunk").WithCause(err)
	}
	return nil
}
