// Package db provides the durable key-value storage that conversation blobs live in.
//
// Every driver stores opaque values under string keys. Writes replace the whole value.
package db

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

type KV interface {
	// Get reports ok=false for a missing key; that is not an error.
	Get(key string) (value []byte, ok bool, err error)
	Put(key string, value []byte) error
	Delete(key string) error
	Close() error
}

const (
	DriverSQLite     = "sqlite3"
	DriverPureSQLite = "sqlite"
	DriverBolt       = "bolt"
	DriverBadger     = "badger"
	DriverMemory     = "memory"
)

// Open returns the KV driver named by driver, creating the parent directory of path when needed.
func Open(driver, path string) (KV, error) {
	if driver != DriverMemory && path != "" {
		dir := path
		if driver != DriverBadger {
			dir = filepath.Dir(path)
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create storage directory: %w", err)
		}
	}

	switch driver {
	case DriverSQLite, DriverPureSQLite:
		return NewSQLite(driver, path)
	case DriverBolt:
		return NewBolt(path)
	case DriverBadger:
		return NewBadger(path)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}

// Memory is a process-local KV, used for tests and ephemeral sessions.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Get(key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (m *Memory) Put(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *Memory) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *Memory) Close() error { return nil }
