package lockfile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/morphir-dev/exthost/extension/entities"
	"github.com/morphir-dev/exthost/extension/values"
)

// Service owns one lockfile on disk and serializes updates to it.
type Service struct {
	repo *FileRepository
	path string
	mu   sync.Mutex
}

// NewService creates a service bound to a lockfile path, conventionally
// morphir.lock.yaml in the workspace root.
func NewService(path string) *Service {
	return &Service{repo: NewFileRepository(), path: path}
}

// Path returns the lockfile location.
func (s *Service) Path() string { return s.path }

// Record pins a resolved extension. The digest must parse as a known
// algorithm; bare hex is treated as sha256.
func (s *Service) Record(ctx context.Context, id, source, resolved, digest string) error {
	d, err := values.ParseDigest(digest)
	if err != nil {
		return fmt.Errorf("extension %q: %w", id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	lock, err := s.repo.Load(ctx, s.path)
	if err != nil {
		return err
	}
	if lock == nil {
		lock = New()
	}
	if err := lock.Add(id, ExtensionLock{
		Fetched:  time.Now().UTC(),
		Source:   source,
		Resolved: resolved,
		Digest:   d.String(),
	}); err != nil {
		return err
	}
	return s.repo.Save(ctx, lock, s.path)
}

// Pinned returns the lock entry for an id; nil when the id is unpinned
// or no lockfile exists.
func (s *Service) Pinned(ctx context.Context, id string) (*ExtensionLock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, err := s.repo.Load(ctx, s.path)
	if err != nil {
		return nil, err
	}
	if lock == nil {
		return nil, nil
	}
	return lock.Get(id), nil
}

// VerifyModule checks a module file on disk against the pinned digest.
// An unpinned id passes; a pinned mismatch is a load failure.
func (s *Service) VerifyModule(ctx context.Context, id, path string) error {
	pinned, err := s.Pinned(ctx, id)
	if err != nil {
		return err
	}
	if pinned == nil {
		return nil
	}

	expected, err := values.ParseDigest(pinned.Digest)
	if err != nil {
		return fmt.Errorf("extension %q: corrupt lock entry: %w", id, err)
	}
	actual, err := values.SHA256File(path)
	if err != nil {
		return err
	}
	if !expected.Equals(actual) {
		return &entities.DigestMismatchError{ID: id, Expected: expected.Value(), Actual: actual.Value()}
	}
	return nil
}

// Prune drops entries whose ids are not in keep.
func (s *Service) Prune(ctx context.Context, keep []string) error {
	keepSet := make(map[string]struct{}, len(keep))
	for _, id := range keep {
		keepSet[id] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	lock, err := s.repo.Load(ctx, s.path)
	if err != nil || lock == nil {
		return err
	}
	for id := range lock.Extensions {
		if _, ok := keepSet[id]; !ok {
			lock.Remove(id)
		}
	}
	return s.repo.Save(ctx, lock, s.path)
}
