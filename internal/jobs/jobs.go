// Package jobs parses the scheduler helper's status report and keeps the
// last snapshot for filtering.
package jobs

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Remote helper programs, found under an account's job manager directory
const (
	StatusHelper = "squeuePy.py"
	RemoveHelper = "sremove.py"
)

// Job is one row of the scheduler status report
type Job struct {
	JobID      string `json:"jobID"`
	RunningDir string `json:"RunningDir"`
	ScriptFile string `json:"Script file"`
	Status     string `json:"Status"`
	Time       string `json:"Time"`
	Comment    string `json:"Comment"`
}

// UnmarshalJSON accepts numbers as well as strings for every field, since
// the helper prints job IDs either way
func (j *Job) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	fields := []struct {
		key string
		dst *string
	}{
		{"jobID", &j.JobID},
		{"RunningDir", &j.RunningDir},
		{"Script file", &j.ScriptFile},
		{"Status", &j.Status},
		{"Time", &j.Time},
		{"Comment", &j.Comment},
	}
	for _, f := range fields {
		v, ok := raw[f.key]
		if !ok {
			continue
		}
		s, err := scalarString(v)
		if err != nil {
			return fmt.Errorf("%s: %w", f.key, err)
		}
		*f.dst = s
	}
	return nil
}

func scalarString(v json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(v, &n); err == nil {
		return n.String(), nil
	}
	if string(bytes.TrimSpace(v)) == "null" {
		return "", nil
	}
	return "", fmt.Errorf("expected string or number, got %s", v)
}

// filterKey is the text the filter matches against. Status and time are excluded.
func (j Job) filterKey() string {
	return j.JobID + j.RunningDir + j.ScriptFile + j.Comment
}

// Group is the list of jobs reported under one top-level key
type Group struct {
	Key  string
	Jobs []Job
}

// Snapshot is a full status report, groups in the order the helper listed them
type Snapshot struct {
	Groups []Group
}

// Len returns the total number of jobs
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	n := 0
	for _, g := range s.Groups {
		n += len(g.Jobs)
	}
	return n
}

// Entry is a job together with its group key
type Entry struct {
	Group string
	Job   Job
}

// Clone returns a deep copy
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	out := &Snapshot{Groups: make([]Group, len(s.Groups))}
	for i, g := range s.Groups {
		out.Groups[i] = Group{Key: g.Key, Jobs: append([]Job(nil), g.Jobs...)}
	}
	return out
}

// ParseError is returned when the status report cannot be decoded
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse job status: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Parse decodes a status report. The helper prints a Python-style dict
// with single-quoted strings, so quotes are normalized before decoding.
func Parse(raw string) (*Snapshot, error) {
	normalized := strings.ReplaceAll(raw, "'", `"`)
	dec := json.NewDecoder(strings.NewReader(normalized))

	snap, err := decodeSnapshot(dec)
	if err != nil {
		return nil, &ParseError{Err: err}
	}
	// Nothing but whitespace may follow the document
	if _, err := dec.Token(); err != io.EOF {
		return nil, &ParseError{Err: errors.New("unexpected data after status document")}
	}
	return snap, nil
}

// decodeSnapshot walks the top-level object token by token so that group
// order is preserved
func decodeSnapshot(dec *json.Decoder) (*Snapshot, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected object, got %v", tok)
	}

	snap := &Snapshot{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("expected group key, got %v", tok)
		}
		var list []Job
		if err := dec.Decode(&list); err != nil {
			return nil, fmt.Errorf("group %q: %w", key, err)
		}
		snap.Groups = append(snap.Groups, Group{Key: key, Jobs: list})
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return snap, nil
}

// Filter returns every job whose ID, running directory, script file or
// comment contains substr (case-sensitive), in snapshot order. An empty
// substr matches everything.
func Filter(s *Snapshot, substr string) []Entry {
	if s == nil {
		return nil
	}
	var out []Entry
	for _, g := range s.Groups {
		for _, j := range g.Jobs {
			if substr == "" || strings.Contains(j.filterKey(), substr) {
				out = append(out, Entry{Group: g.Key, Job: j})
			}
		}
	}
	return out
}

// helperPath joins the job manager directory and a helper name
func helperPath(jobManagerDir, helper string) string {
	if jobManagerDir != "" && !strings.HasSuffix(jobManagerDir, "/") {
		jobManagerDir += "/"
	}
	return jobManagerDir + helper
}

// StatusCommand is the command line that produces the JSON status report
func StatusCommand(jobManagerDir string) string {
	return "python " + helperPath(jobManagerDir, StatusHelper) + " -json"
}

// CancelCommand cancels a job through the scheduler
func CancelCommand(jobID string) string {
	return "scancel " + jobID
}

// RemoveCommand makes the job manager forget a job
func RemoveCommand(jobManagerDir, jobID string) string {
	return "python " + helperPath(jobManagerDir, RemoveHelper) + " " + jobID
}

// ValidJobID reports whether id is safe to pass to the scheduler helpers
func ValidJobID(id string) bool {
	if id == "" {
		return false
	}
	for _, r := range id {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_', r == '.', r == '-':
		default:
			return false
		}
	}
	return true
}

// Store holds the most recent snapshot. Refresh replaces it wholesale.
type Store struct {
	mu   sync.RWMutex
	snap *Snapshot
}

// NewStore returns an empty store
func NewStore() *Store {
	return &Store{snap: &Snapshot{}}
}

// Refresh parses raw and replaces the snapshot. On a parse error the
// previous snapshot is kept.
func (s *Store) Refresh(raw string) (*Snapshot, error) {
	snap, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	s.Replace(snap)
	return snap.Clone(), nil
}

// Replace installs snap as the current snapshot
func (s *Store) Replace(snap *Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = snap.Clone()
	if s.snap == nil {
		s.snap = &Snapshot{}
	}
}

// Snapshot returns a copy of the current snapshot
func (s *Store) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Clone()
}

// Filter filters the current snapshot
func (s *Store) Filter(substr string) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Filter(s.snap, substr)
}

// Find returns the first job with the given ID
func (s *Store) Find(jobID string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, g := range s.snap.Groups {
		for _, j := range g.Jobs {
			if j.JobID == jobID {
				return Entry{Group: g.Key, Job: j}, true
			}
		}
	}
	return Entry{}, false
}

// Remove drops every row with the given job ID, returning how many were removed
func (s *Store) Remove(jobID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for i := range s.snap.Groups {
		kept := s.snap.Groups[i].Jobs[:0]
		for _, j := range s.snap.Groups[i].Jobs {
			if j.JobID == jobID {
				removed++
				continue
			}
			kept = append(kept, j)
		}
		s.snap.Groups[i].Jobs = kept
	}
	return removed
}

// MarshalJSON encodes the snapshot as an ordered object of job lists
func (s *Snapshot) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, g := range s.Groups {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(g.Key)
		if err != nil {
			return nil, err
		}
		jobs := g.Jobs
		if jobs == nil {
			jobs = []Job{}
		}
		list, err := json.Marshal(jobs)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(list)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
