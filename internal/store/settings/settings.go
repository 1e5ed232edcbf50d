// Package settings persists the campaign message singleton.
package settings

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	logx "wabot/pkg/logx"
)

// Settings is the single campaign record: the fallback greeting and the
// message body appended after it.
type Settings struct {
	Salutation string `json:"salutation"`
	Message    string `json:"message"`
}

// Store reads and overwrites the settings record wholesale. There is no
// history; every Write replaces the previous record.
type Store struct {
	path string
	log  logx.Logger

	mu sync.Mutex
}

func New(path string, log logx.Logger) *Store {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Store{path: path, log: log}
}

// Init creates the backing record with empty defaults when absent.
func (s *Store) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := os.Stat(s.path); err == nil {
		return nil
	}
	return s.writeLocked(Settings{})
}

// Read returns the current settings. Any failure (missing file, corrupt
// JSON) resolves to empty defaults; Read never fails.
func (s *Store) Read() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := os.ReadFile(s.path)
	if err != nil {
		return Settings{}
	}
	var out Settings
	if err := json.Unmarshal(b, &out); err != nil {
		s.log.Warn("settings record corrupt; using defaults", logx.Err(err))
		return Settings{}
	}
	return out
}

// Write atomically replaces the record. It reports success rather than
// returning an error; the caller only needs to know whether to surface a
// storage failure.
func (s *Store) Write(salutation, message string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.writeLocked(Settings{Salutation: salutation, Message: message})
	if err != nil {
		s.log.Error("settings write failed", logx.Err(err))
		return false
	}
	return true
}

func (s *Store) writeLocked(v Settings) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".settings-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, s.path)
}
