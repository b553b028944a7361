package pbzx

import (
	"io"
	"math"

	unxiperrors "github.com/flaneur2020/unxip/unxip/errors"
	"github.com/flaneur2020/unxip/unxip/logger"
)

type state int

const (
	awaitingChunk state = iota
	drainingChunk
	finished
)

// Stats counts what a Reader has done so far.
type Stats struct {
	RawChunks        int
	CompressedChunks int
	// ConsumedBytes includes the stream header and every chunk header.
	ConsumedBytes uint64
	DecodedBytes  uint64
}

// Chunks returns the number of chunks loaded.
func (s Stats) Chunks() int {
	return s.RawChunks + s.CompressedChunks
}

// Reader decodes a pbzx stream into its concatenated chunk contents. It reads
// one chunk payload into memory at a time and decompresses it as the caller
// pulls bytes.
//
// A Reader is not safe for concurrent use.
type Reader struct {
	src    io.ReadSeeker
	length uint64

	consumed uint64
	flags    uint64

	state state
	cur   chunk
	buf   []byte

	// err is returned by every Read once state is finished; io.EOF for a
	// clean end.
	err    error
	stats  Stats
	closed bool
}

var _ io.ReadCloser = (*Reader)(nil)

// NewReader seeks src to offset and parses the stream header of a pbzx payload
// that is length bytes long. The Reader takes ownership of src: Close closes it
// when it implements io.Closer.
func NewReader(src io.ReadSeeker, offset, length uint64) (*Reader, error) {
	if offset > math.MaxInt64 {
		return nil, unxiperrors.ErrFormat.Messagef("payload offset %d out of range", offset)
	}
	if _, err := src.Seek(int64(offset), io.SeekStart); err != nil {
		return nil, unxiperrors.ErrIO.WithMessage("seeking to pbzx payload").
			WithDetail("offset", offset).WithCause(err)
	}

	flags, err := ReadStreamHeader(src)
	if err != nil {
		return nil, err
	}
	logger.Debug("pbzx stream at offset %d, length %d, flags %#x", offset, length, flags)

	return &Reader{
		src:      src,
		length:   length,
		consumed: StreamHeaderSize,
		flags:    flags,
		stats:    Stats{ConsumedBytes: StreamHeaderSize},
	}, nil
}

// Read implements io.Reader. It returns as soon as the current chunk yields
// any bytes. After the last chunk every call returns io.EOF; after a failure
// every call returns that failure.
func (r *Reader) Read(p []byte) (int, error) {
	if len(p) == 0 && r.state != finished {
		return 0, nil
	}

	for {
		switch r.state {
		case finished:
			return 0, r.err

		case drainingChunk:
			n, err := r.cur.Read(p)
			r.stats.DecodedBytes += uint64(n)
			switch {
			case err == io.EOF:
				r.cur.release()
				r.state = awaitingChunk
			case err != nil:
				r.fail(err)
			}
			if n > 0 {
				return n, nil
			}
			if r.state == finished {
				return 0, r.err
			}

		case awaitingChunk:
			if r.consumed >= r.length || r.flags&ContinuationFlag == 0 {
				logger.Debug("pbzx stream finished after %d chunks (%d/%d bytes)",
					r.stats.Chunks(), r.consumed, r.length)
				r.finish(io.EOF)
				continue
			}
			if err := r.loadChunk(); err != nil {
				r.fail(err)
				return 0, err
			}
		}
	}
}

// loadChunk reads the next chunk header and payload and prepares its codec.
func (r *Reader) loadChunk() error {
	var h ChunkHeader
	if err := h.Read(r.src); err != nil {
		return err
	}
	r.advance(ChunkHeaderSize)
	r.flags = h.Flags

	var remaining uint64
	if r.length > r.consumed {
		remaining = r.length - r.consumed
	}
	if h.Size > remaining {
		return unxiperrors.ErrFormat.Messagef("chunk size %d exceeds remaining payload %d", h.Size, remaining).
			WithDetail("chunk", r.stats.Chunks())
	}

	if uint64(cap(r.buf)) < h.Size {
		r.buf = make([]byte, h.Size)
	}
	r.buf = r.buf[:h.Size]
	if _, err := io.ReadFull(r.src, r.buf); err != nil {
		return unxiperrors.ErrIO.WithMessage("reading chunk payload").
			WithDetail("chunk", r.stats.Chunks()).WithCause(err)
	}
	r.advance(h.Size)

	if err := r.cur.load(r.buf); err != nil {
		return err
	}
	if h.Kind() == ChunkRaw {
		r.stats.RawChunks++
	} else {
		r.stats.CompressedChunks++
	}
	logger.Debug("pbzx chunk %d: %s, %d bytes, flags %#x", r.stats.Chunks()-1, h.Kind(), h.Size, h.Flags)

	r.state = drainingChunk
	return nil
}

func (r *Reader) advance(n uint64) {
	r.consumed += n
	r.stats.ConsumedBytes = r.consumed
}

func (r *Reader) fail(err error) {
	logger.Debug("pbzx stream failed: %v", err)
	r.finish(err)
}

func (r *Reader) finish(err error) {
	r.cur.release()
	r.state = finished
	r.err = err
}

// Finished reports whether the stream has ended, cleanly or not.
func (r *Reader) Finished() bool {
	return r.state == finished
}

// Err returns the failure that ended the stream, or nil.
func (r *Reader) Err() error {
	if r.err == io.EOF {
		return nil
	}
	return r.err
}

// Consumed returns the number of source bytes read so far.
func (r *Reader) Consumed() uint64 {
	return r.consumed
}

// Length returns the declared payload length.
func (r *Reader) Length() uint64 {
	return r.length
}

// Stats returns a snapshot of the decoder counters.
func (r *Reader) Stats() Stats {
	return r.stats
}

// Close releases the current chunk and closes the source if it is an
// io.Closer. Reads after Close on an unfinished stream return an error.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	if r.state != finished {
		r.finish(unxiperrors.ErrIO.WithMessage("read from closed pbzx reader"))
	}
	r.buf = nil
	if c, ok := r.src.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
