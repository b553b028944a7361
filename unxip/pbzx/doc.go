// Package pbzx decodes the chunked, optionally XZ-compressed stream found in
// the Content entry of Apple .xip archives.
//
// The stream layout is (all integers big-endian):
//
//	"pbzx"                      4 bytes
//	flags                       8 bytes
//	repeated while bit 24 of the most recent flags is set
//	and the declared payload length is not exhausted:
//	    flags                   8 bytes
//	    size                    8 bytes
//	    payload                 size bytes
//
// A payload of exactly 16 MiB is stored uncompressed. Every other payload is
// a complete XZ stream. Decoded chunks are concatenated; for .xip files the
// result is a cpio archive.
package pbzx
