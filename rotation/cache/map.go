package cache

import (
	"context"
	"sync"
)

// Map is an in-memory Getter, used by tests and the ntske-rotatord demo
// binary in place of a real memcache deployment.
type Map struct {
	mu     sync.RWMutex
	values map[string][]byte
}

// NewMap returns an empty Map.
func NewMap() *Map {
	return &Map{values: make(map[string][]byte)}
}

// Set installs a value, overwriting any existing one.
func (m *Map) Set(key string, value []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = append([]byte(nil), value...)
}

// Delete removes a value, if present.
func (m *Map) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
}

// Get implements Getter.
func (m *Map) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}
