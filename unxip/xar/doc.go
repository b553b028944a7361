// Package xar locates entries inside a XAR archive, the container format of
// Apple .xip files.
//
// A XAR archive is a fixed big-endian header, a zlib-compressed XML table of
// contents, and a heap. Entry data is addressed by offset and length relative
// to the start of the heap, which begins right after the compressed TOC.
package xar
