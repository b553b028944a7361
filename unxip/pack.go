package unxip

import (
	"context"
	"io"
	"os"

	unxiperrors "github.com/flaneur2020/unxip/unxip/errors"
	"github.com/flaneur2020/unxip/unxip/logger"
	"github.com/flaneur2020/unxip/unxip/pbzx"
	"github.com/flaneur2020/unxip/unxip/xar"
)

// PackOptions configures Pack.
type PackOptions struct {
	// ChunkSize is the uncompressed size of each pbzx chunk. Defaults to
	// pbzx.RawChunkSize.
	ChunkSize int
	// TempDir holds the intermediate pbzx stream. Defaults to os.TempDir.
	TempDir string
	// Checksums defaults to xar.DefaultWriteOptions.
	Checksums *xar.WriteOptions
}

// Pack encodes the cpio stream read from cpio as a .xip archive written to
// out. The pbzx stream is staged in a temporary file because the XAR TOC
// records its length and checksum ahead of the data.
func Pack(ctx context.Context, cpio io.Reader, out io.Writer, opts *PackOptions) error {
	var o PackOptions
	if opts != nil {
		o = *opts
	}
	checksums := xar.DefaultWriteOptions
	if o.Checksums != nil {
		checksums = *o.Checksums
	}

	tmp, err := os.CreateTemp(o.TempDir, "unxip-pbzx-*")
	if err != nil {
		return unxiperrors.ErrIO.WithMessage("creating temporary file").WithCause(err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	var writerOpts []pbzx.WriterOption
	if o.ChunkSize > 0 {
		writerOpts = append(writerOpts, pbzx.WithChunkSize(o.ChunkSize))
	}
	pw := pbzx.NewWriter(tmp, writerOpts...)
	in := &contextReader{ctx: ctx, reader: cpio}
	n, err := io.Copy(pw, in)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if unxiperrors.IsUnxipError(err) {
			return err
		}
		return unxiperrors.ErrIO.WithMessage("reading cpio stream").WithCause(err)
	}
	if err := pw.Close(); err != nil {
		return err
	}

	info, err := tmp.Stat()
	if err != nil {
		return unxiperrors.ErrIO.WithMessage("stat temporary file").WithCause(err)
	}
	logger.Info("encoded %d bytes into %d byte pbzx stream", n, info.Size())

	return xar.WriteArchive(out, checksums, xar.Entry{
		Name:    DefaultContentPath,
		Content: tmp,
		Size:    info.Size(),
	})
}
