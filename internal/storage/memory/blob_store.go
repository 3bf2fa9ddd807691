// Package memory stores blob content in-memory for development and tests.
package memory

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/JakeFAU/pagewatch/internal/page"
)

// BlobStore stores objects in-memory and returns pseudo URIs.
type BlobStore struct {
	mu     sync.RWMutex
	data   map[string][]byte
	writes []string

	// FailPut, when set, is returned by PutObject for the matching path.
	FailPut map[string]error
}

// NewBlobStore creates a new in-memory blob store.
func NewBlobStore() *BlobStore {
	return &BlobStore{
		data: make(map[string][]byte),
	}
}

// PutObject persists a copy of the content and returns a URI.
func (s *BlobStore) PutObject(_ context.Context, path string, _ string, data io.Reader) (string, error) {
	byteData, err := io.ReadAll(data)
	if err != nil {
		return "", fmt.Errorf("failed to read data from reader: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.FailPut[path]; err != nil {
		return "", err
	}
	s.data[path] = append([]byte(nil), byteData...)
	s.writes = append(s.writes, path)
	return fmt.Sprintf("memory://%s", path), nil
}

// GetObject returns a copy of the stored content or page.ErrNotFound.
func (s *BlobStore) GetObject(_ context.Context, path string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[path]
	if !ok {
		return nil, fmt.Errorf("read %s: %w", path, page.ErrNotFound)
	}
	return append([]byte(nil), data...), nil
}

// Writes returns the paths written so far, in order.
func (s *BlobStore) Writes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.writes...)
}
