package storage

import (
	"context"
	"io"
	"os"

	unxiperrors "github.com/flaneur2020/unxip/unxip/errors"
)

// LocalStorage reads archives from the local filesystem. Names are paths.
type LocalStorage struct{}

// NewLocalStorage constructs a LocalStorage.
func NewLocalStorage() *LocalStorage {
	return &LocalStorage{}
}

// Stat returns the size of the file at name.
func (l *LocalStorage) Stat(ctx context.Context, name string) (Descriptor, error) {
	st, err := os.Stat(name)
	if os.IsNotExist(err) {
		return Descriptor{}, unxiperrors.ErrNotFound.Messagef("archive %s does not exist", name).WithCause(err)
	}
	if err != nil {
		return Descriptor{}, unxiperrors.ErrIO.WithMessage("stat archive").WithCause(err)
	}
	if st.IsDir() {
		return Descriptor{}, unxiperrors.ErrIO.Messagef("%s is a directory", name)
	}
	return Descriptor{Name: name, Size: st.Size()}, nil
}

// ReadRange opens name and returns a reader limited to the requested range.
func (l *LocalStorage) ReadRange(ctx context.Context, name string, offset int64, length int64) (io.ReadCloser, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, unxiperrors.ErrIO.WithMessage("opening archive").WithCause(err)
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		f.Close()
		return nil, unxiperrors.ErrIO.WithMessage("seeking archive").WithCause(err)
	}
	if length <= 0 {
		return f, nil
	}
	return readCloser{Reader: io.LimitReader(f, length), Closer: f}, nil
}
