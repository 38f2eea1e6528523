package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"

	"github.com/mycho0012/ec2-mrha-live-220525/internal/logger"
	"github.com/mycho0012/ec2-mrha-live-220525/internal/models"
)

// stateFile is the on-disk shape of the store.
type stateFile struct {
	Version string                          `json:"version"`
	States  map[string]models.TrailingState `json:"states"`
}

const schemaVersion = "1.0"

// Store owns the symbol→TrailingState mapping across monitoring cycles.
// The trigger evaluator reads and proposes; only the orchestrator commits.
// Safe for concurrent per-symbol workers.
type Store struct {
	path   string
	mu     sync.RWMutex
	states map[string]models.TrailingState
}

// Open loads the state file, creating an empty store when it does not exist yet.
func Open(path string) (*Store, error) {
	s := &Store{path: path, states: make(map[string]models.TrailingState)}

	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		logger.Log.Infof("Trailing state file missing, starting fresh: %s", path)
		return s, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "read trailing state")
	}

	var f stateFile
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, errors.Wrap(err, "decode trailing state")
	}
	if f.States != nil {
		s.states = f.States
	}
	return s, nil
}

// Get returns the state for symbol. Absence is not an error: a missing record
// means the symbol starts this cycle as a fresh ARMED position.
func (s *Store) Get(symbol string) (models.TrailingState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[symbol]
	return st, ok
}

// Put commits a state transition for one symbol.
func (s *Store) Put(state models.TrailingState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[state.Symbol] = state
}

// Prune drops records for symbols no longer present in the account balances.
// An EXITED symbol that later reappears therefore re-arms from scratch.
// Returns the pruned symbols.
func (s *Store) Prune(live map[string]bool) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pruned []string
	for symbol := range s.states {
		if !live[symbol] {
			delete(s.states, symbol)
			pruned = append(pruned, symbol)
		}
	}
	return pruned
}

// Len reports the number of tracked symbols.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.states)
}

// Save writes the store to disk atomically: temp file, fsync, rename, then a
// best-effort fsync of the parent directory.
func (s *Store) Save() error {
	s.mu.RLock()
	f := stateFile{Version: schemaVersion, States: s.states}
	b, err := json.MarshalIndent(f, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return errors.Wrap(err, "marshal trailing state")
	}
	return writeFileAtomic(s.path, b)
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".state-*")
	if err != nil {
		return errors.Wrap(err, "create temp state file")
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "write temp state file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrap(err, "sync temp state file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close temp state file")
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return errors.Wrap(err, "replace state file")
	}

	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}
