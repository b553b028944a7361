package storage

import (
	"context"
	"errors"
	"io"
	"sync"

	unxiperrors "github.com/flaneur2020/unxip/unxip/errors"
)

// Source is a seekable, random-access view of one archive in a Storage.
// Sequential reads are served from a single ranged response that is only
// re-opened after a Seek. Read and Seek are not safe for concurrent use;
// ReadAt is.
type Source struct {
	ctx  context.Context
	st   Storage
	name string
	size int64

	off  int64
	body io.ReadCloser

	// random access state, separate from the sequential position
	atMu   sync.Mutex
	atOff  int64
	atBody io.ReadCloser
}

var (
	_ io.ReadSeekCloser = (*Source)(nil)
	_ io.ReaderAt       = (*Source)(nil)
)

// Open stats name and returns a Source positioned at its start.
func Open(ctx context.Context, st Storage, name string) (*Source, error) {
	desc, err := st.Stat(ctx, name)
	if err != nil {
		return nil, err
	}
	return &Source{
		ctx:  ctx,
		st:   st,
		name: name,
		size: desc.Size,
	}, nil
}

// Name returns the archive name within the storage.
func (s *Source) Name() string {
	return s.name
}

// Size returns the archive size in bytes.
func (s *Source) Size() int64 {
	return s.size
}

func (s *Source) Read(p []byte) (int, error) {
	if s.off >= s.size {
		return 0, io.EOF
	}
	if s.body == nil {
		body, err := s.st.ReadRange(s.ctx, s.name, s.off, s.size-s.off)
		if err != nil {
			return 0, err
		}
		s.body = body
	}

	n, err := s.body.Read(p)
	s.off += int64(n)
	if err == io.EOF {
		s.dropBody()
		if s.off < s.size {
			// the response ended early; reopen on the next read
			if n > 0 {
				return n, nil
			}
			return 0, io.ErrUnexpectedEOF
		}
		if n > 0 {
			err = nil
		}
	}
	return n, err
}

// Seek implements io.Seeker. Moving the offset drops the open response.
func (s *Source) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = s.off + offset
	case io.SeekEnd:
		abs = s.size + offset
	default:
		return 0, errors.New("storage: invalid whence")
	}
	if abs < 0 {
		return 0, errors.New("storage: negative position")
	}
	if abs != s.off {
		s.dropBody()
	}
	s.off = abs
	return abs, nil
}

// ReadAt implements io.ReaderAt without moving the sequential read position.
// It keeps its own ranged response open, so a run of contiguous ReadAt calls
// (hashing an entry through an io.SectionReader) costs one range request.
func (s *Source) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errors.New("storage: negative offset")
	}
	if off >= s.size {
		return 0, io.EOF
	}
	want := int64(len(p))
	if off+want > s.size {
		want = s.size - off
	}

	s.atMu.Lock()
	defer s.atMu.Unlock()

	if s.atBody == nil || s.atOff != off {
		s.dropAtBody()
		body, err := s.st.ReadRange(s.ctx, s.name, off, s.size-off)
		if err != nil {
			return 0, err
		}
		s.atBody = body
		s.atOff = off
	}

	n, err := io.ReadFull(s.atBody, p[:want])
	s.atOff += int64(n)
	if err != nil {
		s.dropAtBody()
		return n, unxiperrors.ErrIO.WithMessage("short range read").WithDetail("offset", off).WithCause(err)
	}
	if s.atOff >= s.size {
		s.dropAtBody()
	}
	if want < int64(len(p)) {
		return n, io.EOF
	}
	return n, nil
}

// Close releases the open responses, if any.
func (s *Source) Close() error {
	s.dropBody()
	s.atMu.Lock()
	s.dropAtBody()
	s.atMu.Unlock()
	return nil
}

func (s *Source) dropBody() {
	if s.body != nil {
		s.body.Close()
		s.body = nil
	}
}

func (s *Source) dropAtBody() {
	if s.atBody != nil {
		s.atBody.Close()
		s.atBody = nil
	}
}
