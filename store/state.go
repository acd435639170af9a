// Package store persists runtime state: the live loop's crash-recovery
// snapshot as JSON on disk, and sweep results in sqlite for later ranking.
package store

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/quatral/moodswing/ledger"
)

// LiveState is the durable snapshot of the live loop. It carries exactly
// what a restart needs: the last sample the loop finished processing, the
// position it believes it holds, and cash for venues that cannot report
// collateral.
type LiveState struct {
	LastProcessed time.Time       `json:"lastProcessedTimestamp"`
	Position      ledger.Position `json:"position"`
	Cash          float64         `json:"cash"`
	Phase         string          `json:"phase,omitempty"`
	LastReason    string          `json:"lastDecisionReason,omitempty"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// StateStore reads and writes the snapshot at a fixed path. Saves are
// atomic: the file is either the previous snapshot or the new one, never a
// torn write.
type StateStore struct {
	path string
	mu   sync.Mutex
}

func NewStateStore(path string) *StateStore {
	return &StateStore{path: path}
}

// Load returns the stored snapshot. A missing or empty file yields the zero
// state and no error, so first boot needs no special casing.
func (s *StateStore) Load() (LiveState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.path == "" {
		return LiveState{}, errors.New("empty state path")
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return LiveState{}, nil
		}
		return LiveState{}, err
	}
	if len(data) == 0 {
		return LiveState{}, nil
	}
	var st LiveState
	if err := json.Unmarshal(data, &st); err != nil {
		return LiveState{}, err
	}
	return st, nil
}

// Save writes the snapshot to a temp file in the same directory and renames
// it over the target.
func (s *StateStore) Save(st LiveState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.path == "" {
		return errors.New("empty state path")
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	st.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}
