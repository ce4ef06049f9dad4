// Package repository persists environment records as one JSON file per
// environment in a data directory. Saves are atomic (write to a temp file in
// the same directory, then rename) so a crash mid-write never corrupts the
// previously committed record. Mutual exclusion across processes is provided
// by a lock file co-located with each record.
package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/torrust/torrust-tracker-deployer/pkg/environment"
	"github.com/torrust/torrust-tracker-deployer/pkg/locking"
)

const (
	recordSuffix = ".json"
	lockSuffix   = ".lock"
)

// ErrNotFound is returned by Load when no record exists for the name.
var ErrNotFound = errors.New("environment not found")

// CorruptStateError is returned when a record exists but cannot be parsed.
// It is deliberately distinct from ErrNotFound: a corrupt record is fatal and
// must never be silently discarded or defaulted over.
type CorruptStateError struct {
	Name string
	Path string
	Err  error
}

func (e *CorruptStateError) Error() string {
	return fmt.Sprintf("environment %q record at %s is corrupt: %v", e.Name, e.Path, e.Err)
}

func (e *CorruptStateError) Unwrap() error { return e.Err }

// Troubleshoot returns expanded guidance for the error.
func (e *CorruptStateError) Troubleshoot() string {
	return fmt.Sprintf("the record at %s exists but does not parse as JSON; saves are atomic, so this usually means the file was edited by hand. Inspect it and restore a valid record before retrying", e.Path)
}

// Repository stores one environment record per name under a data directory.
type Repository struct {
	dir string
}

// New creates a repository rooted at dir, creating the directory if needed.
func New(dir string) (*Repository, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory %s: %w", dir, err)
	}
	return &Repository{dir: dir}, nil
}

// Dir returns the repository's data directory.
func (r *Repository) Dir() string { return r.dir }

// recordPath returns the path of the record file for name.
func (r *Repository) recordPath(name string) string {
	return filepath.Join(r.dir, name+recordSuffix)
}

// lockPath returns the path of the lock file for name, co-located with the
// record.
func (r *Repository) lockPath(name string) string {
	return filepath.Join(r.dir, name+lockSuffix)
}

// Acquire obtains the inter-process lock scoping a load-mutate-save cycle for
// name. Separate environments use separate lock files and never contend.
func (r *Repository) Acquire(name string, timeout time.Duration) (*locking.Lock, error) {
	return locking.Acquire(r.lockPath(name), timeout)
}

// Load reads the record for name. Returns ErrNotFound when no record exists
// and *CorruptStateError when the record does not parse.
func (r *Repository) Load(name string) (*environment.Environment, error) {
	path := r.recordPath(name)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("environment %q: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("read environment %q: %w", name, err)
	}

	var env environment.Environment
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, &CorruptStateError{Name: name, Path: path, Err: err}
	}
	return &env, nil
}

// Save persists the record atomically: the JSON is written to a temp file in
// the same directory and renamed over the final path, so readers always see
// either the complete old record or the complete new one.
func (r *Repository) Save(env *environment.Environment) error {
	path := r.recordPath(env.Name)

	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return fmt.Errorf("encode environment %q: %w", env.Name, err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(r.dir, env.Name+recordSuffix+".tmp*")
	if err != nil {
		return fmt.Errorf("save environment %q: %w", env.Name, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("save environment %q: %w", env.Name, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("save environment %q: %w", env.Name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("save environment %q: %w", env.Name, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("save environment %q: %w", env.Name, err)
	}
	return nil
}

// Exists reports whether a record exists for name. It only stats the file,
// without locking or deserialization, so it stays cheap for scripting.
func (r *Repository) Exists(name string) bool {
	_, err := os.Stat(r.recordPath(name))
	return err == nil
}

// List returns the names of all stored environments, sorted.
func (r *Repository) List() ([]string, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("list environments: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, recordSuffix) {
			continue
		}
		// Leftover temp files from an interrupted save carry a .tmp infix
		// after the .json suffix, so the suffix check already excludes them.
		names = append(names, strings.TrimSuffix(name, recordSuffix))
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes the record for name. This is the explicit purge path; the
// destroy transition itself only moves the record to its terminal state.
func (r *Repository) Delete(name string) error {
	if err := os.Remove(r.recordPath(name)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("environment %q: %w", name, ErrNotFound)
		}
		return fmt.Errorf("delete environment %q: %w", name, err)
	}
	// Best effort: a leftover lock file for a purged environment is noise.
	_ = os.Remove(r.lockPath(name))
	return nil
}
