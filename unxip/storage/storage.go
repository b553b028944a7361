package storage

import (
	"context"
	"io"
	"strings"
)

// Descriptor describes an archive available from storage.
type Descriptor struct {
	Name string
	Size int64
}

// Storage abstracts archive lookup and ranged reads.
type Storage interface {
	Stat(ctx context.Context, name string) (Descriptor, error)
	// ReadRange returns the bytes in [offset, offset+length). A length <= 0
	// reads to the end of the archive.
	ReadRange(ctx context.Context, name string, offset int64, length int64) (io.ReadCloser, error)
}

// Options configures the storage picked by Resolve.
type Options struct {
	// Credential is USER:PASSWORD for HTTP basic auth.
	Credential string
	// Insecure skips TLS certificate verification.
	Insecure bool
}

// Resolve picks the storage for a location: http(s) URLs are read with
// range requests, anything else is a local path.
func Resolve(location string, opts Options) Storage {
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		st := NewHTTPStorage(opts.Insecure)
		if user, pass, ok := strings.Cut(opts.Credential, ":"); ok {
			st = st.WithCredential(user, pass)
		}
		return st
	}
	return NewLocalStorage()
}

type readCloser struct {
	io.Reader
	io.Closer
}
