// Package unxip extracts Apple .xip archives.
//
// A .xip file is a XAR container whose Content entry holds a pbzx stream; the
// decoded stream is a cpio archive. Open locates and decodes the stream,
// Decode copies it to a writer, and Extract hands it to a cpio process that
// unpacks it into a directory. Pack builds a .xip from a cpio stream.
package unxip
