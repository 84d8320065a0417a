package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"github.com/SylvanaMarinePurnomo/PlateTrack/internal/utils"
)

var ErrInvalidPlate = errors.New("invalid plate")

// Mutation is the acknowledgement of an add or remove.
type Mutation struct {
	Accepted bool     `json:"accepted"`
	Plates   []string `json:"plates"`
}

// Store is the trusted plate registry. It is the only owner of registry state; everyone
// else reads snapshots or asks it to mutate. Mutations are serialized and the backing file
// is rewritten in full before a mutation is acknowledged.
type Store struct {
	mu     sync.RWMutex
	path   string
	plates []string
	index  map[string]struct{}
	log    zerolog.Logger
}

// Open creates a store backed by path and loads whatever is there. A missing, empty or
// unreadable registry file leaves the store empty; it never fails startup.
func Open(path string, log zerolog.Logger) *Store {
	s := &Store{
		path:  path,
		index: make(map[string]struct{}),
		log:   log.With().Str("component", "registry").Str("path", path).Logger(),
	}
	s.Load()
	return s
}

// Load replaces the in-memory set with the file contents and returns a snapshot.
func (s *Store) Load() []string {
	plates := s.readFile()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.plates = make([]string, 0, len(plates))
	s.index = make(map[string]struct{}, len(plates))
	for _, raw := range plates {
		p := utils.NormalizePlate(raw)
		if p == "" {
			continue
		}
		if _, dup := s.index[p]; dup {
			continue
		}
		s.index[p] = struct{}{}
		s.plates = append(s.plates, p)
	}

	s.log.Info().Int("plates", len(s.plates)).Msg("trusted registry loaded")
	return s.snapshotLocked()
}

func (s *Store) readFile() []string {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.log.Warn().Msg("registry file not found, starting with an empty registry")
		return nil
	}
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to read registry file, starting with an empty registry")
		return nil
	}
	if len(bytes.TrimSpace(data)) == 0 {
		s.log.Warn().Msg("registry file is empty, starting with an empty registry")
		return nil
	}

	var plates []string
	if err := json.Unmarshal(data, &plates); err != nil {
		s.log.Warn().Err(err).Msg("registry file is malformed, starting with an empty registry")
		return nil
	}
	if plates == nil {
		s.log.Warn().Msg("registry file holds no list, starting with an empty registry")
	}
	return plates
}

func (s *Store) Add(plate string) (Mutation, error) {
	p := utils.NormalizePlate(plate)
	if p == "" {
		return Mutation{}, fmt.Errorf("%w: %q has no letters or digits", ErrInvalidPlate, plate)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.index[p]; exists {
		return Mutation{Accepted: false, Plates: s.snapshotLocked()}, nil
	}

	s.plates = append(s.plates, p)
	s.index[p] = struct{}{}

	if err := s.persistLocked(); err != nil {
		s.plates = s.plates[:len(s.plates)-1]
		delete(s.index, p)
		return Mutation{}, err
	}

	s.log.Info().Str("plate", p).Int("plates", len(s.plates)).Msg("trusted plate added")
	return Mutation{Accepted: true, Plates: s.snapshotLocked()}, nil
}

func (s *Store) Remove(plate string) (Mutation, error) {
	p := utils.NormalizePlate(plate)
	if p == "" {
		return Mutation{}, fmt.Errorf("%w: %q has no letters or digits", ErrInvalidPlate, plate)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.index[p]; !exists {
		return Mutation{Accepted: false, Plates: s.snapshotLocked()}, nil
	}

	pos := -1
	for i, existing := range s.plates {
		if existing == p {
			pos = i
			break
		}
	}
	previous := append([]string(nil), s.plates...)
	s.plates = append(s.plates[:pos], s.plates[pos+1:]...)
	delete(s.index, p)

	if err := s.persistLocked(); err != nil {
		s.plates = previous
		s.index[p] = struct{}{}
		return Mutation{}, err
	}

	s.log.Info().Str("plate", p).Int("plates", len(s.plates)).Msg("trusted plate removed")
	return Mutation{Accepted: true, Plates: s.snapshotLocked()}, nil
}

// Persist rewrites the registry file from the in-memory set.
func (s *Store) Persist() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistLocked()
}

// persistLocked writes to a sibling temp file, syncs it and renames it over the target so
// a crash leaves either the old or the new registry on disk, never a partial one.
func (s *Store) persistLocked() error {
	data, err := json.MarshalIndent(s.plates, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode registry: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create registry directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp registry file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("failed to write registry: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("failed to sync registry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("failed to close registry: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return fmt.Errorf("failed to set registry permissions: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		cleanup()
		return fmt.Errorf("failed to replace registry file: %w", err)
	}
	return nil
}

// Snapshot returns the plates in insertion order. The slice is the caller's to keep.
func (s *Store) Snapshot() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() []string {
	out := make([]string, len(s.plates))
	copy(out, s.plates)
	return out
}

func (s *Store) Contains(plate string) bool {
	p := utils.NormalizePlate(plate)
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.index[p]
	return ok
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.plates)
}

func (s *Store) Path() string {
	return s.path
}
