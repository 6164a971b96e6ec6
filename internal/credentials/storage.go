package credentials

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"

	"mltscript/internal/fileutil"
)

// Storage is a string key/value store shaped like browser local storage.
type Storage interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Remove(keys ...string) error
}

// FileStorage keeps all keys in one JSON object on disk. Every operation
// holds an in-process mutex plus an advisory file lock, so the CLI, the
// watcher, and the API server can share one file.
type FileStorage struct {
	path string
	mu   sync.Mutex
	lock *flock.Flock
}

// NewFileStorage returns a FileStorage backed by path. The file is created on
// first write.
func NewFileStorage(path string) *FileStorage {
	return &FileStorage{path: path, lock: flock.New(path + ".lock")}
}

// Path returns the backing file path.
func (s *FileStorage) Path() string { return s.path }

func (s *FileStorage) Get(key string) (string, bool, error) {
	var (
		value string
		ok    bool
	)
	err := s.withLock(false, func(values map[string]string) bool {
		value, ok = values[key]
		return false
	})
	return value, ok, err
}

func (s *FileStorage) Set(key, value string) error {
	return s.withLock(true, func(values map[string]string) bool {
		if current, ok := values[key]; ok && current == value {
			return false
		}
		values[key] = value
		return true
	})
}

func (s *FileStorage) Remove(keys ...string) error {
	return s.withLock(true, func(values map[string]string) bool {
		changed := false
		for _, key := range keys {
			if _, ok := values[key]; ok {
				delete(values, key)
				changed = true
			}
		}
		return changed
	})
}

// withLock loads the map, runs fn, and persists the map when fn reports a
// change.
func (s *FileStorage) withLock(write bool, fn func(map[string]string) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("ensure credential storage directory: %w", err)
	}
	lock := s.lock.RLock
	if write {
		lock = s.lock.Lock
	}
	if err := lock(); err != nil {
		return fmt.Errorf("lock credential storage: %w", err)
	}
	defer func() { _ = s.lock.Unlock() }()

	values, err := s.read()
	if err != nil {
		return err
	}
	if !fn(values) || !write {
		return nil
	}
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return fmt.Errorf("encode credential storage: %w", err)
	}
	if err := fileutil.WriteFileAtomic(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write credential storage: %w", err)
	}
	return nil
}

func (s *FileStorage) read() (map[string]string, error) {
	data, err := fileutil.ReadFileIfExists(s.path)
	if err != nil {
		return nil, fmt.Errorf("read credential storage: %w", err)
	}
	values := make(map[string]string)
	if len(data) == 0 {
		return values, nil
	}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("decode credential storage: %w", err)
	}
	return values, nil
}

// MemoryStorage is an in-process Storage used by tests and ephemeral runs.
type MemoryStorage struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{values: make(map[string]string)}
}

func (m *MemoryStorage) Get(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MemoryStorage) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *MemoryStorage) Remove(keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.values, key)
	}
	return nil
}
