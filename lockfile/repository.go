package lockfile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/goccy/go-yaml"
)

// FileRepository reads and writes lockfiles on the local filesystem.
type FileRepository struct{}

// NewFileRepository creates a new FileRepository.
func NewFileRepository() *FileRepository {
	return &FileRepository{}
}

// Load reads a lockfile. A missing file, missing directory, or empty
// file yields nil, nil.
func (r *FileRepository) Load(ctx context.Context, path string) (*Lockfile, error) {
	dir := filepath.Dir(path)
	base := filepath.Base(path)

	// Scope file access to the lockfile's directory.
	root, err := os.OpenRoot(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open directory %q: %w", dir, err)
	}
	defer func() { _ = root.Close() }()

	file, err := root.Open(base)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open lockfile %q: %w", base, err)
	}
	defer func() { _ = file.Close() }()

	var lock Lockfile
	if err := yaml.NewDecoder(file).Decode(&lock); err != nil {
		// A zero-byte lockfile decodes to EOF; treat it like a missing one.
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("decoding lockfile YAML: %w", err)
	}
	if err := lock.Validate(); err != nil {
		return nil, fmt.Errorf("invalid lockfile: %w", err)
	}
	return &lock, nil
}

// Save writes a lockfile, creating the directory as needed.
func (r *FileRepository) Save(ctx context.Context, lock *Lockfile, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating directory %q: %w", dir, err)
	}

	root, err := os.OpenRoot(dir)
	if err != nil {
		return fmt.Errorf("opening directory for write %q: %w", dir, err)
	}
	defer func() { _ = root.Close() }()

	file, err := root.OpenFile(filepath.Base(path), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("creating lockfile: %w", err)
	}
	defer func() { _ = file.Close() }()

	encoder := yaml.NewEncoder(file)
	defer func() { _ = encoder.Close() }()

	if err := encoder.Encode(lock); err != nil {
		return fmt.Errorf("encoding lockfile: %w", err)
	}
	return nil
}

// Exists checks whether a lockfile is present at the path.
func (r *FileRepository) Exists(ctx context.Context, path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}
