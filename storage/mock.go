package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
)

// MockStorage is an in-memory Storage used by tests and local development.
type MockStorage struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMockStorage creates an empty in-memory store.
func NewMockStorage() *MockStorage {
	return &MockStorage{objects: make(map[string][]byte)}
}

func objectKey(bucket, key string) string {
	return bucket + "/" + key
}

// Store implements Storage.
func (m *MockStorage) Store(_ context.Context, bucket, key string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := make([]byte, len(data))
	copy(stored, data)
	m.objects[objectKey(bucket, key)] = stored
	return KeyToURL(key), nil
}

// GetStream implements Storage.
func (m *MockStorage) GetStream(_ context.Context, bucket, key string) (io.ReadCloser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[objectKey(bucket, key)]
	if !ok {
		return nil, fmt.Errorf("object %s not found in bucket %s", key, bucket)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// GetSize implements Storage.
func (m *MockStorage) GetSize(_ context.Context, bucket, key string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[objectKey(bucket, key)]
	if !ok {
		return 0, fmt.Errorf("object %s not found in bucket %s", key, bucket)
	}
	return int64(len(data)), nil
}
