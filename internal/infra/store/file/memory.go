package filestore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

type memoryObject struct {
	data        []byte
	contentType string
	modified    time.Time
}

// memoryStore is a map-backed stand-in for the MinIO store, with the same
// key semantics. Used by tests.
type memoryStore struct {
	mu      sync.Mutex
	objects map[string]memoryObject
}

func NewMemoryStore() *memoryStore {
	return &memoryStore{objects: make(map[string]memoryObject)}
}

func (s *memoryStore) Save(ctx context.Context, reader io.Reader, key string, size int64, contentType string) (int64, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return 0, fmt.Errorf("read object: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.objects[key] = memoryObject{
		data:        data,
		contentType: contentType,
		modified:    time.Now(),
	}
	return int64(len(data)), nil
}

func (s *memoryStore) Open(ctx context.Context, key string) (Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	obj, ok := s.objects[key]
	if !ok {
		return Object{}, fmt.Errorf("%s: %w", key, ErrNotFound)
	}

	return Object{
		Content:     io.NopCloser(bytes.NewReader(obj.data)),
		Size:        int64(len(obj.data)),
		ContentType: obj.contentType,
	}, nil
}

func (s *memoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.objects, key)
	return nil
}

func (s *memoryStore) CleanupOlderThan(ctx context.Context, maxAge time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	for key, obj := range s.objects {
		if obj.modified.Before(cutoff) {
			delete(s.objects, key)
		}
	}
	return nil
}
