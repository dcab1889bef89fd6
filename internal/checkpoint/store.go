// Package checkpoint persists which Trac tickets were already migrated and
// the GitHub issue each one became.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Store reads and writes the checkpoint file
type Store struct {
	path string
}

// NewStore creates a store backed by path
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the checkpoint file path
func (s *Store) Path() string {
	return s.path
}

// Load returns the saved ticket to issue mapping, or an empty mapping when
// no checkpoint was written yet.
func (s *Store) Load() (map[int]int, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return make(map[int]int), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint %s: %w", s.path, err)
	}

	var raw map[string]int
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse checkpoint %s: %w", s.path, err)
	}

	tickets := make(map[int]int, len(raw))
	for k, v := range raw {
		id, err := strconv.Atoi(k)
		if err != nil {
			return nil, fmt.Errorf("failed to parse checkpoint %s: bad ticket id %q", s.path, k)
		}
		tickets[id] = v
	}

	return tickets, nil
}

// Save overwrites the checkpoint with tickets. The file is replaced
// atomically so an interrupted save keeps the previous checkpoint.
func (s *Store) Save(tickets map[int]int) error {
	raw := make(map[string]int, len(tickets))
	for id, issue := range tickets {
		raw[strconv.Itoa(id)] = issue
	}
	buf, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}
	buf = append(buf, '\n')

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".checkpoint-*")
	if err != nil {
		return fmt.Errorf("failed to create checkpoint: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace checkpoint %s: %w", s.path, err)
	}

	return nil
}
