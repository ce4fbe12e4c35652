package names

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"sync"
)

// DefaultFile is the file used when no path is configured.
const DefaultFile = "custom_names.json"

// ErrEmptyTopic is returned by [Store.Set] when no topic is given.
var ErrEmptyTopic = errors.New("topic is required")

// Store maps topics to display names.
//
// Store is safe for concurrent use. A Store with an empty path keeps names in
// memory only.
type Store struct {
	mu    sync.RWMutex
	path  string
	names map[string]string
}

// Open loads names from path. A missing file yields an empty store. An
// unreadable or malformed file is logged and also yields an empty store; it
// is replaced on the next [Store.Set].
func Open(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Store{path: path, names: make(map[string]string)}
	if path == "" {
		return s
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return s
	case err != nil:
		logger.Warn("names file unreadable, starting empty", "path", path, "error", err.Error())
		return s
	}

	var loaded map[string]string
	if err := json.Unmarshal(data, &loaded); err != nil {
		logger.Warn("names file malformed, starting empty", "path", path, "error", err.Error())
		return s
	}
	for topic, name := range loaded {
		if topic != "" {
			s.names[topic] = name
		}
	}
	logger.Debug("names loaded", "path", path, "count", len(s.names))
	return s
}

// Path returns the backing file path, or "" for an in-memory store.
func (s *Store) Path() string {
	return s.path
}

// Get returns the display name for topic.
func (s *Store) Get(topic string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	name, ok := s.names[topic]
	return name, ok
}

// Display returns the display name for topic, or topic itself when none is
// set.
func (s *Store) Display(topic string) string {
	if name, ok := s.Get(topic); ok && name != "" {
		return name
	}
	return topic
}

// All returns a copy of every assigned name.
func (s *Store) All() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.names)
}

// Set assigns name to topic and persists the result. An empty name removes
// the assignment. On a write error the in-memory change is rolled back.
func (s *Store) Set(topic, name string) error {
	if topic == "" {
		return ErrEmptyTopic
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, had := s.names[topic]
	if name == "" {
		delete(s.names, topic)
	} else {
		s.names[topic] = name
	}

	if err := s.persist(); err != nil {
		if had {
			s.names[topic] = prev
		} else {
			delete(s.names, topic)
		}
		return err
	}
	return nil
}

// persist writes the map to a temporary file and renames it over the target.
// Caller must hold s.mu.
func (s *Store) persist() error {
	if s.path == "" {
		return nil
	}

	data, err := json.Marshal(s.names)
	if err != nil {
		return fmt.Errorf("encode names: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("write names: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write names: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write names: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("write names: %w", err)
	}
	return nil
}
