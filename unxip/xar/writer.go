package xar

import (
	"bytes"
	"encoding/xml"
	"io"
	"strconv"

	"github.com/klauspost/compress/zlib"

	unxiperrors "github.com/flaneur2020/unxip/unxip/errors"
)

// Entry is a flat file to be stored by WriteArchive.
type Entry struct {
	Name    string
	Content io.ReaderAt
	Size    int64
}

// WriteOptions controls the checksums WriteArchive records.
type WriteOptions struct {
	// TOCChecksum is used for the TOC checksum in the heap; "sha1" or "md5"
	// use the short header codes, anything else is recorded by name.
	TOCChecksum string
	// FileChecksum is the archived checksum style of every entry.
	FileChecksum string
}

// DefaultWriteOptions matches the layout Apple tools produce.
var DefaultWriteOptions = WriteOptions{TOCChecksum: "sha1", FileChecksum: "sha256"}

// WriteArchive writes a XAR archive holding entries uncompressed. Entry
// content is read twice: once to checksum it and once to copy it.
func WriteArchive(w io.Writer, opts WriteOptions, entries ...Entry) error {
	tocHash, err := newHash(opts.TOCChecksum)
	if err != nil {
		return err
	}
	checksumSize := uint64(tocHash.Size())

	toc := &TOC{
		Checksum: &TOCChecksum{Style: opts.TOCChecksum, Offset: 0, Size: checksumSize},
	}
	offset := checksumSize
	for i, e := range entries {
		sum, err := sumHex(opts.FileChecksum, io.NewSectionReader(e.Content, 0, e.Size))
		if err != nil {
			return err
		}
		toc.Files = append(toc.Files, &File{
			ID:   strconv.Itoa(i + 1),
			Name: e.Name,
			Type: "file",
			Data: &Data{
				Length:            uint64(e.Size),
				Offset:            offset,
				Size:              uint64(e.Size),
				Encoding:          Encoding{Style: "application/octet-stream"},
				ArchivedChecksum:  Checksum{Style: opts.FileChecksum, Value: sum},
				ExtractedChecksum: Checksum{Style: opts.FileChecksum, Value: sum},
			},
		})
		offset += uint64(e.Size)
	}

	tocXML, err := xml.Marshal(toc)
	if err != nil {
		return unxiperrors.ErrXar.WithMessage("encoding toc xml").WithCause(err)
	}
	tocXML = append([]byte(xml.Header), tocXML...)

	compressed := &bytes.Buffer{}
	zw := zlib.NewWriter(compressed)
	if _, err := zw.Write(tocXML); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}

	h := Header{
		Size:            HeaderSize,
		Version:         Version,
		TOCCompressed:   uint64(compressed.Len()),
		TOCUncompressed: uint64(len(tocXML)),
	}
	switch opts.TOCChecksum {
	case "sha1":
		h.Checksum = ChecksumSHA1
	case "md5":
		h.Checksum = ChecksumMD5
	default:
		h.Checksum = ChecksumOther
		h.ChecksumName = opts.TOCChecksum
		// NUL terminated, padded to 4 bytes
		h.Size = uint16((HeaderSize + len(opts.TOCChecksum) + 1 + 3) &^ 3)
	}

	if err := h.Write(w); err != nil {
		return err
	}
	if _, err := w.Write(compressed.Bytes()); err != nil {
		return err
	}
	tocHash.Write(compressed.Bytes())
	if _, err := w.Write(tocHash.Sum(nil)); err != nil {
		return err
	}
	for _, e := range entries {
		if _, err := io.Copy(w, io.NewSectionReader(e.Content, 0, e.Size)); err != nil {
			return unxiperrors.ErrIO.WithMessage("copying xar entry").WithDetail("name", e.Name).WithCause(err)
		}
	}
	return nil
}
