package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/agentgateway/gateway/internal/protocol"
)

// FileHistoryStore persists non-system conversation messages to
// <settings_dir>/conversations/current.json as a pretty-printed JSON
// array, rewritten after each completed turn (spec.md §6).
type FileHistoryStore struct {
	path string
}

// NewFileHistoryStore constructs a store rooted at settingsDir.
func NewFileHistoryStore(settingsDir string) *FileHistoryStore {
	return &FileHistoryStore{path: filepath.Join(settingsDir, "conversations", "current.json")}
}

// Save atomically rewrites the history file.
func (f *FileHistoryStore) Save(messages []protocol.Message) error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("history: mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "current-*.tmp")
	if err != nil {
		return fmt.Errorf("history: create temp: %w", err)
	}
	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(messages); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("history: encode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("history: close temp: %w", err)
	}
	return os.Rename(tmp.Name(), f.path)
}

// Load reads the persisted history, or returns an empty slice if the
// file does not yet exist.
func (f *FileHistoryStore) Load() ([]protocol.Message, error) {
	raw, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("history: read: %w", err)
	}
	var messages []protocol.Message
	if err := json.Unmarshal(raw, &messages); err != nil {
		return nil, fmt.Errorf("history: decode: %w", err)
	}
	return messages, nil
}
