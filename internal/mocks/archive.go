package mocks

import (
	"context"
	"errors"
	"sync"

	"github.com/dump-ingestion-api/internal/archive"
)

// MockArchiveStore is an in-memory archive.Store with failure injection
type MockArchiveStore struct {
	mu          sync.Mutex
	Objects     map[string][]byte
	WriteError  error
	RemoveError error
	Writes      int
	Removes     int
}

// Verify interface compliance
var _ archive.Store = (*MockArchiveStore)(nil)

func NewMockArchiveStore() *MockArchiveStore {
	return &MockArchiveStore{Objects: make(map[string][]byte)}
}

func (m *MockArchiveStore) Locate(key string) string {
	return "mem://" + key
}

func (m *MockArchiveStore) Write(ctx context.Context, location string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Writes++
	if m.WriteError != nil {
		return &archive.StoreError{Op: "write", Location: location, Err: m.WriteError}
	}
	m.Objects[location] = append([]byte(nil), data...)
	return nil
}

func (m *MockArchiveStore) Read(ctx context.Context, location string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, ok := m.Objects[location]
	if !ok {
		return nil, &archive.StoreError{Op: "read", Location: location, Err: errors.New("no such object")}
	}
	return data, nil
}

func (m *MockArchiveStore) Remove(ctx context.Context, location string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Removes++
	if m.RemoveError != nil {
		return &archive.StoreError{Op: "remove", Location: location, Err: m.RemoveError}
	}
	delete(m.Objects, location)
	return nil
}

func (m *MockArchiveStore) Exists(ctx context.Context, location string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.Objects[location]
	return ok, nil
}

// Len returns the number of stored objects
func (m *MockArchiveStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Objects)
}
