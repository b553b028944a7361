package unxip

import (
	"context"
	_ "crypto/sha256"
	"io"
	"os"

	unxiperrors "github.com/flaneur2020/unxip/unxip/errors"
	"github.com/flaneur2020/unxip/unxip/logger"
	"github.com/flaneur2020/unxip/unxip/pbzx"
	"github.com/flaneur2020/unxip/unxip/xar"
	"github.com/opencontainers/go-digest"
)

// octetStream is the XAR encoding of entries stored as is.
const octetStream = "application/octet-stream"

// Archive is a seekable, randomly readable .xip file of known size.
// *storage.Source satisfies it.
type Archive interface {
	io.ReadSeeker
	io.ReaderAt
	Size() int64
}

// Result describes a fully decoded payload.
type Result struct {
	Stats pbzx.Stats
	// Digest is the canonical digest of the decoded cpio stream.
	Digest digest.Digest
}

// Payload is the decoded content stream of an opened .xip archive.
type Payload struct {
	Archive *xar.Archive
	Entry   *xar.File

	reader   *pbzx.Reader
	digester digest.Digester
	stream   io.Reader
}

// Open locates the content entry of src and prepares its pbzx stream for
// decoding. Open takes ownership of src: it is closed by Payload.Close, or
// before Open returns an error, when it implements io.Closer.
func Open(ctx context.Context, src Archive, opts *Options) (payload *Payload, err error) {
	o := opts.withDefaults()
	defer func() {
		if err != nil {
			closeSource(src)
		}
	}()

	arc, err := xar.Open(src, src.Size())
	if err != nil {
		return nil, err
	}
	entry, err := arc.Find(o.ContentPath)
	if err != nil {
		return nil, err
	}
	if entry.IsDir() || entry.Data == nil {
		return nil, unxiperrors.ErrXar.Messagef("entry %q has no data", o.ContentPath)
	}
	if style := entry.Data.Encoding.Style; style != "" && style != octetStream {
		return nil, unxiperrors.ErrXar.Messagef("entry %q has unsupported encoding %s", o.ContentPath, style)
	}

	if o.Verify {
		if err := arc.VerifyTOC(); err != nil {
			return nil, err
		}
		if err := arc.Verify(entry); err != nil {
			return nil, err
		}
		logger.Info("verified %s checksums", o.ContentPath)
	}

	logger.Info("decoding %s: offset %d, length %d", o.ContentPath, entry.Offset(), entry.Length())
	reader, err := pbzx.NewReader(src, entry.Offset(), entry.Length())
	if err != nil {
		return nil, err
	}

	p := &Payload{
		Archive:  arc,
		Entry:    entry,
		reader:   reader,
		digester: digest.Canonical.Digester(),
	}
	var stream io.Reader = &contextReader{ctx: ctx, reader: reader}
	if o.Progress != nil {
		stream = &progressReader{
			reader:   stream,
			position: p.position,
			callback: o.Progress,
		}
	}
	p.stream = io.TeeReader(stream, p.digester.Hash())
	return p, nil
}

// Read returns decoded cpio bytes.
func (p *Payload) Read(b []byte) (int, error) {
	return p.stream.Read(b)
}

// Close releases the decoder and the underlying archive.
func (p *Payload) Close() error {
	return p.reader.Close()
}

// Result returns the decoder counters and the digest of everything read so
// far.
func (p *Payload) Result() *Result {
	return &Result{
		Stats:  p.reader.Stats(),
		Digest: p.digester.Digest(),
	}
}

func (p *Payload) position() (int64, int64) {
	return int64(p.reader.Consumed()), int64(p.reader.Length())
}

// Decode writes the decoded content stream of src to w.
func Decode(ctx context.Context, src Archive, w io.Writer, opts *Options) (*Result, error) {
	o := opts.withDefaults()
	payload, err := Open(ctx, src, &o)
	if err != nil {
		return nil, err
	}
	defer payload.Close()

	in := &errRecorder{reader: payload}
	buf := make([]byte, o.BufferSize)
	if _, err := io.CopyBuffer(struct{ io.Writer }{w}, in, buf); err != nil {
		if in.err != nil {
			return nil, in.err
		}
		return nil, unxiperrors.ErrIO.WithMessage("writing decoded payload").WithCause(err)
	}

	result := payload.Result()
	logger.Info("decoded %d bytes from %d chunks", result.Stats.DecodedBytes, result.Stats.Chunks())
	return result, nil
}

// Extract decodes src and unpacks the resulting cpio archive into outputDir,
// which is created if missing.
func Extract(ctx context.Context, src Archive, outputDir string, opts *Options) (*Result, error) {
	o := opts.withDefaults()
	if err := o.Sink.Check(); err != nil {
		closeSource(src)
		return nil, err
	}

	payload, err := Open(ctx, src, &o)
	if err != nil {
		return nil, err
	}
	defer payload.Close()

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, unxiperrors.ErrIO.WithMessage("creating output directory").
			WithDetail("path", outputDir).WithCause(err)
	}
	if err := o.Sink.Extract(ctx, outputDir, payload); err != nil {
		return nil, err
	}

	result := payload.Result()
	logger.Info("extracted %d bytes into %s", result.Stats.DecodedBytes, outputDir)
	return result, nil
}

func closeSource(src Archive) {
	if c, ok := src.(io.Closer); ok {
		c.Close()
	}
}
