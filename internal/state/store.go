package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/rs/zerolog"
)

// Store reads and writes the state document. Every Save is synchronous
// and completes before returning.
type Store struct {
	path         string
	savePassword bool
	capacities   Capacities
	log          zerolog.Logger
}

// Options configure a Store
type Options struct {
	SavePassword bool
	Capacities   Capacities
	Logger       zerolog.Logger
}

// DefaultPath returns the per-user location of the state document:
// ~/.slurm_watcher/config.json on Linux, the user config directory elsewhere.
func DefaultPath() (string, error) {
	if runtime.GOOS == "linux" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".slurm_watcher", "config.json"), nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "slurm_watcher", "config.json"), nil
}

// NewStore returns a store for the document at path
func NewStore(path string, opts Options) *Store {
	return &Store{
		path:         path,
		savePassword: opts.SavePassword,
		capacities:   opts.Capacities,
		log:          opts.Logger,
	}
}

// Path returns the location of the state document
func (s *Store) Path() string {
	return s.path
}

// Load reads the state document. A missing file yields an empty state.
func (s *Store) Load() (*State, error) {
	st := &State{}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read state: %w", err)
		}
		s.log.Debug().Str("path", s.path).Msg("no state file, starting empty")
	} else if err := mergeDocument(st, data); err != nil {
		return nil, fmt.Errorf("parse state %s: %w", s.path, err)
	}

	if !s.savePassword {
		st.ClearPasswords()
	}
	st.Normalize(s.capacities)
	return st, nil
}

// Save writes st to the state file
func (s *Store) Save(st *State) error {
	return s.writeTo(s.path, st)
}

// Export writes st to an arbitrary file, applying the same password policy
func (s *Store) Export(st *State, path string) error {
	return s.writeTo(path, st)
}

// Import merges the document at path into st. Top-level fields present in
// the file replace the in-memory ones; absent fields are left untouched.
func (s *Store) Import(st *State, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read import file: %w", err)
	}
	merged := st.Clone()
	if err := mergeDocument(merged, data); err != nil {
		return fmt.Errorf("parse import file %s: %w", path, err)
	}
	if !s.savePassword {
		merged.ClearPasswords()
	}
	merged.Normalize(s.capacities)
	*st = *merged
	return nil
}

func (s *Store) writeTo(path string, st *State) error {
	out := st.Clone()
	if !s.savePassword {
		out.ClearPasswords()
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	// Write to a sibling temp file and rename so a crash never leaves a
	// truncated document behind
	tmp, err := os.CreateTemp(dir, ".state-*.json")
	if err != nil {
		return fmt.Errorf("create temp state: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write state: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close state: %w", err)
	}
	if err := os.Chmod(tmpName, 0600); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod state: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace state: %w", err)
	}

	s.log.Debug().Str("path", path).Int("accounts", len(out.Accounts)).Msg("state saved")
	return nil
}

// mergeDocument decodes data into st, replacing only the keys present.
// Each present key decodes into a fresh value so no element of the
// previous list leaks into the replacement.
func mergeDocument(st *State, data []byte) error {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}

	fields := []struct {
		key    string
		decode func(json.RawMessage) error
	}{
		{"accounts", func(raw json.RawMessage) error { return replaceWith(raw, &st.Accounts) }},
		{"customButtons", func(raw json.RawMessage) error { return replaceWith(raw, &st.CustomButtons) }},
		{"customButtonsLocal", func(raw json.RawMessage) error { return replaceWith(raw, &st.CustomButtonsLocal) }},
		{"localCommanderCustomButtons", func(raw json.RawMessage) error { return replaceWith(raw, &st.LocalCommanderCustomButtons) }},
		{"localPaths", func(raw json.RawMessage) error { return replaceWith(raw, &st.LocalPaths) }},
	}
	for _, f := range fields {
		raw, ok := doc[f.key]
		if !ok {
			continue
		}
		if err := f.decode(raw); err != nil {
			return fmt.Errorf("%s: %w", f.key, err)
		}
	}
	return nil
}

func replaceWith[T any](raw json.RawMessage, dst *T) error {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	*dst = v
	return nil
}
