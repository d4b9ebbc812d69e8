// Package loader fetches extension modules from their configured sources
// (local path, URL, GitHub release, OCI artifact) and caches downloads on
// disk. It returns local paths; instantiation is the container's job.
package loader

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/morphir-dev/exthost/extension/entities"
	"github.com/morphir-dev/exthost/extension/values"
	"github.com/morphir-dev/exthost/netutil"
)

// maxModuleSize bounds a downloaded module at 128 MiB. A module larger
// than this would not fit the sandbox memory ceiling anyway.
const maxModuleSize = 128 * 1024 * 1024

// Loader caches extension modules under a directory, keyed by extension
// id. Downloads go to a temp file first and are renamed into place so a
// partial fetch never poisons the cache.
type Loader struct {
	cacheDir string
	tempDir  string
	client   *http.Client
	logger   *slog.Logger
	maxSize  int64
}

// Option configures a Loader.
type Option func(*Loader)

// WithHTTPClient replaces the download client.
func WithHTTPClient(c *http.Client) Option {
	return func(l *Loader) { l.client = c }
}

// WithLogger sets the loader's logger.
func WithLogger(log *slog.Logger) Option {
	return func(l *Loader) { l.logger = log }
}

// WithMaxModuleSize overrides the module size limit.
func WithMaxModuleSize(n int64) Option {
	return func(l *Loader) { l.maxSize = n }
}

// New creates a loader rooted at cacheDir, creating it as needed.
func New(cacheDir string, opts ...Option) (*Loader, error) {
	tempDir := filepath.Join(cacheDir, "temp")
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return nil, fmt.Errorf("create loader cache: %w", err)
	}

	l := &Loader{
		cacheDir: cacheDir,
		tempDir:  tempDir,
		client: &http.Client{
			Transport: &netutil.RetryTransport{},
			Timeout:   5 * time.Minute,
		},
		logger:  slog.Default(),
		maxSize: maxModuleSize,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// WithDefaultCache creates a loader under the user cache directory.
func WithDefaultCache(opts ...Option) (*Loader, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return nil, fmt.Errorf("determine cache directory: %w", err)
	}
	return New(filepath.Join(base, "morphir", "extensions"), opts...)
}

// LoadFromPath validates a local module file and returns its path.
func (l *Loader) LoadFromPath(_ context.Context, path string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("extension file not found: %s: %w", path, err)
	}
	if !strings.EqualFold(filepath.Ext(path), ".wasm") {
		return "", fmt.Errorf("expected .wasm file, got: %s", path)
	}
	return path, nil
}

// LoadFromURL downloads a module, caching it under the extension id and
// a fingerprint of the normalized URL: the same id fetched from a new
// location is never served stale bytes, while equivalent spellings of
// one URL share a cache entry. A cached module is reused without
// touching the network.
func (l *Loader) LoadFromURL(ctx context.Context, id, url string) (string, error) {
	cachePath := l.urlCachePath(id, url)
	if _, err := os.Stat(cachePath); err == nil {
		l.logger.DebugContext(ctx, "using cached extension",
			slog.String("id", id), slog.String("path", cachePath))
		return cachePath, nil
	}

	l.logger.InfoContext(ctx, "downloading extension",
		slog.String("id", id), slog.String("url", netutil.StripCredentials(url)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build download request: %w", err)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download extension: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download extension: HTTP %d", resp.StatusCode)
	}

	body := netutil.NewLimitedReader(resp.Body, l.maxSize)
	if err := l.storeModule(id, cachePath, body); err != nil {
		return "", err
	}

	l.logger.InfoContext(ctx, "extension cached",
		slog.String("id", id), slog.String("path", cachePath))
	return cachePath, nil
}

// LoadFromGitHub fetches a release asset; an empty tag means the latest
// release.
func (l *Loader) LoadFromGitHub(ctx context.Context, id, repo, tag, asset string) (string, error) {
	var url string
	if tag == "" || tag == "latest" {
		url = fmt.Sprintf("https://github.com/%s/releases/latest/download/%s", repo, asset)
	} else {
		url = fmt.Sprintf("https://github.com/%s/releases/download/%s/%s", repo, tag, asset)
	}
	return l.LoadFromURL(ctx, id, url)
}

// urlCachePath derives the cache location for a download.
func (l *Loader) urlCachePath(id, url string) string {
	sum := sha256.Sum256([]byte(netutil.NormalizeURL(url)))
	return filepath.Join(l.cacheDir, fmt.Sprintf("%s-%x.wasm", id, sum[:6]))
}

// storeModule writes module bytes to a temp file and renames it into the
// cache.
func (l *Loader) storeModule(id, cachePath string, r io.Reader) error {
	tmp, err := os.CreateTemp(l.tempDir, id+"-*.wasm.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write extension bytes: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, cachePath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("move into cache: %w", err)
	}
	return nil
}

// CacheDir returns the loader's cache directory.
func (l *Loader) CacheDir() string { return l.cacheDir }

// ClearCache removes all cached modules.
func (l *Loader) ClearCache() error {
	if err := os.RemoveAll(l.cacheDir); err != nil {
		return err
	}
	return os.MkdirAll(l.tempDir, 0o755)
}

// ListCached returns the paths of all cached modules.
func (l *Loader) ListCached() ([]string, error) {
	entries, err := os.ReadDir(l.cacheDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(e.Name()), ".wasm") {
			out = append(out, filepath.Join(l.cacheDir, e.Name()))
		}
	}
	return out, nil
}

// VerifySHA256 checks a module file against a pinned hex digest.
func VerifySHA256(id, path, expected string) error {
	want, err := values.ParseDigest(expected)
	if err != nil {
		return fmt.Errorf("extension %q: %w", id, err)
	}
	actual, err := values.SHA256File(path)
	if err != nil {
		return fmt.Errorf("hash module: %w", err)
	}
	if !want.Equals(actual) {
		return &entities.DigestMismatchError{ID: id, Expected: want.Value(), Actual: actual.Value()}
	}
	return nil
}
