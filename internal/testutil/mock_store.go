package testutil

import (
	"sort"
	"strings"
	"sync"
)

// MockStore implements storage.Store with an in-memory map for testing.
// All methods are safe for concurrent use.
type MockStore struct {
	mu   sync.Mutex
	data map[string][]byte

	// Error injection: method -> next error (consumed on first call).
	errors map[string]error

	// Sticky error injection: method -> error returned on every call.
	sticky map[string]error

	// SizeBytes value returned by SizeBytes().
	Size int64
}

// NewMockStore returns a zero-state MockStore ready for use.
func NewMockStore() *MockStore {
	return &MockStore{
		data:   make(map[string][]byte),
		errors: make(map[string]error),
		sticky: make(map[string]error),
		Size:   1024,
	}
}

// SetError injects an error to be returned on the next call to the named method.
func (m *MockStore) SetError(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[method] = err
}

// SetStickyError injects an error returned on every call to the named method.
func (m *MockStore) SetStickyError(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sticky[method] = err
}

func (m *MockStore) popError(method string) error {
	if err := m.sticky[method]; err != nil {
		return err
	}
	err := m.errors[method]
	delete(m.errors, method)
	return err
}

func (m *MockStore) Get(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.popError("Get"); err != nil {
		return nil, err
	}
	v, ok := m.data[key]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (m *MockStore) Set(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.popError("Set"); err != nil {
		return err
	}
	v := make([]byte, len(value))
	copy(v, value)
	m.data[key] = v
	return nil
}

func (m *MockStore) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.popError("Delete"); err != nil {
		return err
	}
	delete(m.data, key)
	return nil
}

func (m *MockStore) Keys(prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.popError("Keys"); err != nil {
		return nil, err
	}
	var keys []string
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *MockStore) SizeBytes() (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.popError("SizeBytes"); err != nil {
		return 0, err
	}
	return m.Size, nil
}

func (m *MockStore) Close() error { return nil }

// Len reports the number of stored keys.
func (m *MockStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}

// Has reports whether a key is present.
func (m *MockStore) Has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	return ok
}
