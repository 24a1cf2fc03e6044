// internal/common/storage/memory.go
package storage

import (
	"context"
	"fmt"
	"sync"
)

// MemStore is an in-memory ObjectStore used in tests.
type MemStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func NewMemStore() *MemStore {
	return &MemStore{
		objects: make(map[string][]byte),
		types:   make(map[string]string),
	}
}

func memKey(bucket, key string) string {
	return bucket + "/" + key
}

func (m *MemStore) Upload(_ context.Context, bucket, key string, body []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	buf := make([]byte, len(body))
	copy(buf, body)
	m.objects[memKey(bucket, key)] = buf
	m.types[memKey(bucket, key)] = contentType
	return nil
}

func (m *MemStore) Download(_ context.Context, bucket, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[memKey(bucket, key)]
	if !ok {
		return nil, fmt.Errorf("object not found: %s/%s", bucket, key)
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	return buf, nil
}

func (m *MemStore) Delete(_ context.Context, bucket, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, memKey(bucket, key))
	delete(m.types, memKey(bucket, key))
	return nil
}

// Has reports whether an object exists; test helper.
func (m *MemStore) Has(bucket, key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[memKey(bucket, key)]
	return ok
}

// Keys returns all stored keys for a bucket; test helper.
func (m *MemStore) Keys(bucket string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	prefix := bucket + "/"
	for k := range m.objects {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			out = append(out, k[len(prefix):])
		}
	}
	return out
}
