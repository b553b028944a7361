package pbzx

import (
	"bytes"
	"fmt"
	"io"

	"github.com/ulikunitz/xz"

	unxiperrors "github.com/flaneur2020/unxip/unxip/errors"
)

// ChunkKind identifies how a chunk payload is encoded.
type ChunkKind byte

// These are the two encodings a pbzx chunk can use.
const (
	ChunkRaw ChunkKind = iota + 1
	ChunkXZ
)

func (k ChunkKind) String() string {
	switch k {
	case ChunkRaw:
		return "raw"
	case ChunkXZ:
		return "xz"
	}
	return fmt.Sprintf("ChunkKind(%d)", byte(k))
}

// KindForSize picks the codec from a chunk's declared payload size.
func KindForSize(size uint64) ChunkKind {
	if size == RawChunkSize {
		return ChunkRaw
	}
	return ChunkXZ
}

// chunk produces the decoded bytes of one chunk. The zero value is empty.
type chunk struct {
	kind ChunkKind
	raw  bytes.Reader
	xz   *xz.Reader
}

// load points the chunk at a new payload. payload must stay untouched until
// the chunk has been drained.
func (c *chunk) load(payload []byte) error {
	c.release()
	c.raw.Reset(payload)
	c.kind = KindForSize(uint64(len(payload)))
	if c.kind == ChunkRaw {
		return nil
	}

	if !bytes.HasPrefix(payload, XZMagic) {
		head := payload
		if len(head) > len(XZMagic) {
			head = head[:len(XZMagic)]
		}
		return unxiperrors.ErrFormat.WithMessage("bad compression magic").
			WithDetail("magic", fmt.Sprintf("% x", head))
	}
	xr, err := xz.NewReader(&c.raw)
	if err != nil {
		return unxiperrors.ErrDecompression.WithMessage("opening xz stream").WithCause(err)
	}
	c.xz = xr
	return nil
}

func (c *chunk) Read(p []byte) (int, error) {
	switch c.kind {
	case ChunkRaw:
		return c.raw.Read(p)
	case ChunkXZ:
		n, err := c.xz.Read(p)
		if err != nil && err != io.EOF {
			err = unxiperrors.ErrDecompression.WithCause(err)
		}
		return n, err
	}
	return 0, io.EOF
}

func (c *chunk) release() {
	c.kind = 0
	c.xz = nil
	c.raw.Reset(nil)
}

// NewChunkReader returns a reader over the decoded content of one chunk
// payload. payload must not be modified while the reader is in use.
func NewChunkReader(payload []byte) (io.Reader, error) {
	c := &chunk{}
	if err := c.load(payload); err != nil {
		return nil, err
	}
	return c, nil
}
