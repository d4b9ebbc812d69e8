// Package lockfile pins resolved extensions for reproducible runs: which
// source an id resolved to, which version, and the digest of the module
// bytes that were actually loaded.
package lockfile

import (
	"fmt"
	"time"
)

// Lockfile records the pinned extension set of a workspace.
//
// Invariants:
// - every entry has a digest
// - the generated timestamp is set whenever entries exist
type Lockfile struct {
	Generated  time.Time                `yaml:"generated"`
	Extensions map[string]ExtensionLock `yaml:"extensions"`
	Version    int                      `yaml:"lockfile_version"`
}

// ExtensionLock pins one resolved extension. Immutable after creation.
type ExtensionLock struct {
	Fetched  time.Time `yaml:"fetched,omitempty"`
	Source   string    `yaml:"source"`
	Resolved string    `yaml:"resolved,omitempty"`
	Digest   string    `yaml:"sha256"`
}

// New creates an empty lockfile at the current version.
func New() *Lockfile {
	return &Lockfile{
		Version:    1,
		Generated:  time.Now().UTC(),
		Extensions: make(map[string]ExtensionLock),
	}
}

// Add inserts or replaces an entry. An entry without a digest is
// rejected.
func (l *Lockfile) Add(id string, lock ExtensionLock) error {
	if lock.Digest == "" {
		return fmt.Errorf("extension %q: digest is required", id)
	}
	if l.Extensions == nil {
		l.Extensions = make(map[string]ExtensionLock)
	}
	l.Extensions[id] = lock
	l.Generated = time.Now().UTC()
	return nil
}

// Get retrieves an entry by id; nil when absent.
func (l *Lockfile) Get(id string) *ExtensionLock {
	if l.Extensions == nil {
		return nil
	}
	if lock, ok := l.Extensions[id]; ok {
		return &lock
	}
	return nil
}

// Remove drops an entry; removing an absent id is a no-op.
func (l *Lockfile) Remove(id string) {
	delete(l.Extensions, id)
}

// Count returns the number of pinned extensions.
func (l *Lockfile) Count() int {
	return len(l.Extensions)
}

// Validate checks the lockfile invariants.
func (l *Lockfile) Validate() error {
	if l.Count() > 0 && l.Generated.IsZero() {
		return fmt.Errorf("lockfile has entries but no generated timestamp")
	}
	for id, lock := range l.Extensions {
		if lock.Digest == "" {
			return fmt.Errorf("extension %q: missing digest", id)
		}
		if lock.Source == "" {
			return fmt.Errorf("extension %q: missing source", id)
		}
	}
	return nil
}
