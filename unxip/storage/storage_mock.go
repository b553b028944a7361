package storage

import (
	"bytes"
	"context"
	_ "crypto/sha256"
	"fmt"
	"io"
	"sync"

	"github.com/opencontainers/go-digest"

	unxiperrors "github.com/flaneur2020/unxip/unxip/errors"
)

// MockStorage is a simple in-memory Storage implementation for tests.
type MockStorage struct {
	mu       sync.RWMutex
	archives map[string][]byte
	ranges   int
}

// NewMockStorage constructs an empty MockStorage.
func NewMockStorage() *MockStorage {
	return &MockStorage{
		archives: make(map[string][]byte),
	}
}

// Stat returns the size of a stored archive.
func (m *MockStorage) Stat(ctx context.Context, name string) (Descriptor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.archives[name]
	if !ok {
		return Descriptor{}, unxiperrors.ErrNotFound.Messagef("mock storage: archive not found: %s", name)
	}
	return Descriptor{Name: name, Size: int64(len(data))}, nil
}

// ReadRange returns a reader over the requested byte range.
func (m *MockStorage) ReadRange(ctx context.Context, name string, offset int64, length int64) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, ok := m.archives[name]
	if !ok {
		return nil, unxiperrors.ErrNotFound.Messagef("mock storage: archive not found: %s", name)
	}
	if offset < 0 || offset > int64(len(data)) {
		return nil, fmt.Errorf("mock storage: invalid offset %d for archive %s", offset, name)
	}
	m.ranges++

	end := int64(len(data))
	if length > 0 && offset+length < end {
		end = offset + length
	}
	return io.NopCloser(bytes.NewReader(data[offset:end])), nil
}

// AddArchive stores data under name and returns its digest.
func (m *MockStorage) AddArchive(name string, data []byte) digest.Digest {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.archives[name] = append([]byte(nil), data...)
	return digest.FromBytes(data)
}

// RangeRequests returns how many ranged reads were served.
func (m *MockStorage) RangeRequests() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ranges
}
