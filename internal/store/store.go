// Package store persists library state as JSON records under string keys.
package store

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
)

// Backend names accepted by Open.
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Store saves and loads JSON encodable values by key.
type Store interface {
	// Save replaces the value stored under key.
	Save(key string, value any) error
	// Load decodes the value stored under key into dst. It reports false
	// when nothing is stored.
	Load(key string, dst any) (bool, error)
	Close() error
}

// Open returns the backend named by backend, rooted in dir.
func Open(backend, dir string) (Store, error) {
	switch backend {
	case BackendJSON, "":
		return OpenFile(filepath.Join(dir, "library.json"))
	case BackendSQLite:
		return OpenSQLite(dir)
	case BackendMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}

// Memory keeps encoded records in process memory.
type Memory struct {
	mu      sync.Mutex
	records map[string]json.RawMessage
	failErr error
}

func NewMemory() *Memory {
	return &Memory{records: map[string]json.RawMessage{}}
}

// FailWith makes every later Save return err. Passing nil clears it.
func (m *Memory) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failErr = err
}

func (m *Memory) Save(key string, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return m.failErr
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	m.records[key] = raw
	return nil
}

func (m *Memory) Load(key string, dst any) (bool, error) {
	m.mu.Lock()
	raw, ok := m.records[key]
	m.mu.Unlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return true, fmt.Errorf("decoding %s: %w", key, err)
	}
	return true, nil
}

// Raw returns the encoded record stored under key.
func (m *Memory) Raw(key string) (json.RawMessage, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.records[key]
	return raw, ok
}

// Put stores an already encoded record.
func (m *Memory) Put(key string, raw json.RawMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[key] = raw
}

func (m *Memory) Close() error { return nil }
