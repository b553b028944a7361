package xar

import (
	"encoding/xml"
	"strings"
)

// TOC is the decoded table of contents.
type TOC struct {
	XMLName      xml.Name     `xml:"xar"`
	Checksum     *TOCChecksum `xml:"toc>checksum,omitempty"`
	CreationTime string       `xml:"toc>creation-time,omitempty"`
	Files        []*File      `xml:"toc>file"`
}

// TOCChecksum locates the checksum of the compressed TOC inside the heap.
type TOCChecksum struct {
	Style  string `xml:"style,attr"`
	Offset uint64 `xml:"offset"`
	Size   uint64 `xml:"size"`
}

// File is one entry of the TOC. Directories carry their children in Files.
type File struct {
	ID    string  `xml:"id,attr,omitempty"`
	Name  string  `xml:"name"`
	Type  string  `xml:"type,omitempty"`
	Data  *Data   `xml:"data,omitempty"`
	Files []*File `xml:"file,omitempty"`

	heapStart uint64
}

// Data describes where a file's bytes live in the heap.
type Data struct {
	// Length is the number of bytes stored in the heap.
	Length uint64 `xml:"length"`
	// Offset is relative to the start of the heap.
	Offset uint64 `xml:"offset"`
	// Size is the length after the encoding is undone.
	Size              uint64   `xml:"size"`
	Encoding          Encoding `xml:"encoding"`
	ArchivedChecksum  Checksum `xml:"archived-checksum"`
	ExtractedChecksum Checksum `xml:"extracted-checksum"`
}

// Encoding names the transformation applied to stored data.
type Encoding struct {
	Style string `xml:"style,attr"`
}

// Checksum is a hex-encoded digest with its algorithm name.
type Checksum struct {
	Style string `xml:"style,attr"`
	Value string `xml:",chardata"`
}

// Hex returns the normalized hex digest.
func (c Checksum) Hex() string {
	return strings.ToLower(strings.TrimSpace(c.Value))
}

// IsDir reports whether the entry is a directory.
func (f *File) IsDir() bool {
	return f.Type == "directory"
}

// Offset returns the absolute offset of the entry's stored bytes.
func (f *File) Offset() uint64 {
	if f.Data == nil {
		return f.heapStart
	}
	return f.heapStart + f.Data.Offset
}

// Length returns the number of stored bytes.
func (f *File) Length() uint64 {
	if f.Data == nil {
		return 0
	}
	return f.Data.Length
}

func (f *File) setHeapStart(start uint64) {
	f.heapStart = start
	for _, child := range f.Files {
		child.setHeapStart(start)
	}
}
