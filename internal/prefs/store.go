// Package prefs persists the single user preference spyglass keeps across
// restarts: the chosen search engine.
package prefs

import (
	"fmt"
	"os"
	"sync"

	"github.com/pelletier/go-toml/v2"
)

// Store is the persistence port for user preferences.
type Store interface {
	Engine() string
	SetEngine(id string) error
}

type fileData struct {
	SearchEngine string `toml:"search_engine"`
}

// FileStore persists preferences to a TOML file. Reads are served from
// memory; writes go to disk synchronously.
type FileStore struct {
	mu   sync.Mutex
	path string
	data fileData
}

// NewFileStore opens (or lazily creates) the preference file.
func NewFileStore(path string) (*FileStore, error) {
	s := &FileStore{path: path}

	raw, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// First run; file appears on the first SetEngine.
	case err != nil:
		return nil, fmt.Errorf("failed to read preferences: %w", err)
	default:
		if err := toml.Unmarshal(raw, &s.data); err != nil {
			return nil, fmt.Errorf("failed to parse preferences: %w", err)
		}
	}
	return s, nil
}

// Engine returns the persisted search engine id, or "" when unset.
func (s *FileStore) Engine() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.SearchEngine
}

// SetEngine persists a new search engine choice.
func (s *FileStore) SetEngine(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data.SearchEngine = id
	raw, err := toml.Marshal(s.data)
	if err != nil {
		return fmt.Errorf("failed to encode preferences: %w", err)
	}
	if err := os.WriteFile(s.path, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write preferences: %w", err)
	}
	return nil
}

// Memory is an in-process Store used in tests and ephemeral deployments.
type Memory struct {
	mu     sync.Mutex
	engine string
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Engine() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.engine
}

func (m *Memory) SetEngine(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.engine = id
	return nil
}
