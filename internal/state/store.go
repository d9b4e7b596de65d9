// Package state persists the last-known daemon info per identity tag.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/wagiedev/daemonkit/internal/supervisor"
)

// FileName is the store's file name inside the state directory.
const FileName = "daemon-state.json"

// Store is a JSON file mapping identity tag to BackendInfo.
type Store struct {
	path string

	mu sync.Mutex
}

// Compile-time verification that Store implements supervisor.InfoStore.
var _ supervisor.InfoStore = (*Store)(nil)

// New returns a store backed by dir/daemon-state.json. The file is created
// on first save.
func New(dir string) *Store {
	return &Store{path: filepath.Join(dir, FileName)}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Load returns the record saved for tag.
func (s *Store) Load(tag string) (supervisor.BackendInfo, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.read()
	if err != nil {
		return supervisor.BackendInfo{}, false, err
	}

	info, ok := records[tag]

	return info, ok, nil
}

// All returns every saved record.
func (s *Store) All() (map[string]supervisor.BackendInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.read()
}

// Save records info under its BranchID, replacing any previous record.
func (s *Store) Save(info supervisor.BackendInfo) error {
	if info.BranchID == "" {
		return fmt.Errorf("save daemon info: empty identity tag")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.read()
	if err != nil {
		return err
	}

	records[info.BranchID] = info

	return s.write(records)
}

func (s *Store) read() (map[string]supervisor.BackendInfo, error) {
	records := make(map[string]supervisor.BackendInfo)

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return records, nil
		}

		return nil, fmt.Errorf("read state file: %w", err)
	}

	if len(data) == 0 {
		return records, nil
	}

	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse state file %s: %w", s.path, err)
	}

	return records, nil
}

// write replaces the file atomically via a temp file and rename.
func (s *Store) write(records map[string]supervisor.BackendInfo) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, FileName+".*")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}

	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)

		return fmt.Errorf("write temp state file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)

		return fmt.Errorf("close temp state file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)

		return fmt.Errorf("replace state file: %w", err)
	}

	return nil
}
