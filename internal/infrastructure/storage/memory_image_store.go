package storage

import (
	"context"
	"errors"
	"slices"
	"sync"

	importapp "github.com/erp/importer/internal/application/import"
)

// MemoryImageStore keeps mirrored images in process memory.
// It is used for development and tests when no object storage is configured.
type MemoryImageStore struct {
	mu      sync.RWMutex
	objects map[string]StoredImage
}

// StoredImage is one image held by MemoryImageStore
type StoredImage struct {
	ContentType string
	Data        []byte
}

// NewMemoryImageStore creates an empty MemoryImageStore
func NewMemoryImageStore() *MemoryImageStore {
	return &MemoryImageStore{objects: make(map[string]StoredImage)}
}

var _ importapp.ImageStore = (*MemoryImageStore)(nil)

// PutImage stores a copy of data under key
func (s *MemoryImageStore) PutImage(ctx context.Context, key, contentType string, data []byte) (string, error) {
	if key == "" {
		return "", errors.New("storage key is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = StoredImage{ContentType: contentType, Data: slices.Clone(data)}
	return "memory://" + key, nil
}

// Get returns the image stored under key
func (s *MemoryImageStore) Get(key string) (StoredImage, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	img, ok := s.objects[key]
	return img, ok
}

// Len returns the number of stored images
func (s *MemoryImageStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
