// Package grantstore provides file-based persistence for sandbox
// escape-hatch grants.
package grantstore

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/morphir-dev/exthost/extension/ports"
)

// grantsDocument is the on-disk shape, keyed by extension id.
type grantsDocument struct {
	Grants map[string]ports.Grant `yaml:"grants"`
}

// fileStoreConfig holds configuration for the FileStore.
type fileStoreConfig struct {
	path     string
	dirPerm  os.FileMode
	filePerm os.FileMode
}

func defaultFileStoreConfig() fileStoreConfig {
	return fileStoreConfig{
		path:     filepath.Join(os.Getenv("HOME"), ".morphir", "grants.yaml"),
		dirPerm:  0o755,
		filePerm: 0o600,
	}
}

// Option configures a FileStore instance.
type Option func(*fileStoreConfig)

// WithPath sets the path to the grants file.
func WithPath(path string) Option {
	return func(c *fileStoreConfig) {
		if path != "" {
			c.path = path
		}
	}
}

// WithFilePermissions sets the grants file permissions.
func WithFilePermissions(perm os.FileMode) Option {
	return func(c *fileStoreConfig) { c.filePerm = perm }
}

// WithDirPermissions sets the grants directory permissions.
func WithDirPermissions(perm os.FileMode) Option {
	return func(c *fileStoreConfig) { c.dirPerm = perm }
}

// FileStore persists grants as a YAML document keyed by extension id.
type FileStore struct {
	config fileStoreConfig
}

// NewFileStore creates a FileStore with the given options.
func NewFileStore(opts ...Option) *FileStore {
	cfg := defaultFileStoreConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &FileStore{config: cfg}
}

// Load retrieves all persisted grants. A missing file is an empty store.
func (s *FileStore) Load() (map[string]ports.Grant, error) {
	data, err := os.ReadFile(s.config.path)
	if os.IsNotExist(err) {
		return map[string]ports.Grant{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read grant store: %w", err)
	}

	var doc grantsDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse grant store: %w", err)
	}
	if doc.Grants == nil {
		doc.Grants = map[string]ports.Grant{}
	}
	for id, grant := range doc.Grants {
		grant.ExtensionID = id
		doc.Grants[id] = grant
	}
	return doc.Grants, nil
}

// Save persists the full grant set, replacing the previous document.
func (s *FileStore) Save(grants map[string]ports.Grant) error {
	if grants == nil {
		grants = map[string]ports.Grant{}
	}

	data, err := yaml.Marshal(grantsDocument{Grants: grants})
	if err != nil {
		return fmt.Errorf("marshal grants: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.config.path), s.config.dirPerm); err != nil {
		return fmt.Errorf("create grant store directory: %w", err)
	}
	if err := os.WriteFile(s.config.path, data, s.config.filePerm); err != nil {
		return fmt.Errorf("write grant store: %w", err)
	}
	return nil
}

// ConfigPath returns the path to the backing store.
func (s *FileStore) ConfigPath() string {
	return s.config.path
}
