package blobstore

import (
	"context"
	"sync"

	"github.com/stratumhq/stratum/internal/record/domain"
)

type memoryObject struct {
	data     []byte
	metadata map[string]string
}

// MemoryStore is a map-backed BlobStore. It backs local development and is
// the test double for the real backends; per-op counters let tests assert
// which tiers were touched.
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string]memoryObject

	PutCalls    int
	GetCalls    int
	DeleteCalls int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]memoryObject)}
}

func memoryKey(container, path string) string {
	return container + "/" + path
}

func (s *MemoryStore) Put(ctx context.Context, container, path string, data []byte, metadata map[string]string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PutCalls++

	stored := make([]byte, len(data))
	copy(stored, data)
	meta := make(map[string]string, len(metadata))
	for k, v := range metadata {
		meta[k] = v
	}
	s.objects[memoryKey(container, path)] = memoryObject{data: stored, metadata: meta}
	return int64(len(stored)), nil
}

func (s *MemoryStore) Get(ctx context.Context, container, path string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.GetCalls++

	obj, ok := s.objects[memoryKey(container, path)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := make([]byte, len(obj.data))
	copy(out, obj.data)
	return out, nil
}

func (s *MemoryStore) Delete(ctx context.Context, container, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.DeleteCalls++

	delete(s.objects, memoryKey(container, path))
	return nil
}

// Metadata returns the stored metadata for a path, for assertions in tests.
func (s *MemoryStore) Metadata(container, path string) (map[string]string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[memoryKey(container, path)]
	if !ok {
		return nil, false
	}
	return obj.metadata, true
}

// Len returns the number of stored objects.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}
