// Package registry manages extension configurations and lazily loaded
// containers: configuration-driven discovery, cold loading through an
// external loader, and capability/id lookup over the loaded set.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/singleflight"

	"github.com/morphir-dev/exthost/container"
	"github.com/morphir-dev/exthost/extension/entities"
	"github.com/morphir-dev/exthost/extension/ports"
	"github.com/morphir-dev/exthost/extension/values"
	"github.com/morphir-dev/exthost/hostfunc"
	"github.com/morphir-dev/exthost/loader"
	"github.com/morphir-dev/exthost/lockfile"
	"github.com/morphir-dev/exthost/sandbox"
)

// Extension is the registry's view of a loaded container. *container.Container
// implements it; tests substitute fakes.
type Extension interface {
	ID() string
	Info() entities.ExtensionInfo
	Capabilities() entities.Capabilities
	Supports(t entities.ExtensionType) bool
	Call(ctx context.Context, method string, params any, out any) error
	CallRaw(ctx context.Context, export string, input []byte) ([]byte, error)
	Close(ctx context.Context) error
}

// ContainerFactory builds a container from resolved module bytes on disk.
type ContainerFactory func(ctx context.Context, id, wasmPath string, state *hostfunc.HostState, opts ...container.Option) (Extension, error)

func defaultFactory(ctx context.Context, id, wasmPath string, state *hostfunc.HostState, opts ...container.Option) (Extension, error) {
	return container.New(ctx, id, wasmPath, state, opts...)
}

// SandboxAuthorizer builds the file sandbox for an extension about to be
// loaded, typically by extracting requested escape hatches from the
// config and passing them through a capability gatekeeper. Returning an
// error blocks the load; returning a nil sandbox keeps the strict
// workspace default.
type SandboxAuthorizer func(config entities.ExtensionConfig, paths *sandbox.VirtualPathConfig) (*sandbox.FileSandbox, error)

// LoadResult is the outcome of loading one registered extension.
type LoadResult struct {
	ID        string
	Extension Extension
	Err       error
}

// Registry maps extension ids to configuration and lazily loaded
// containers. The configs map and the extensions map are guarded
// independently; no lock is held during loader I/O or container
// construction, and concurrent cold loads of the same id are deduplicated
// so only one fetch happens.
type Registry struct {
	loader        ports.Loader
	workspaceRoot string
	outputDir     string
	logger        *slog.Logger
	callTimeout   time.Duration
	newContainer  ContainerFactory
	lock          *lockfile.Service
	bridgeOpts    []hostfunc.BridgeOption
	authorize     SandboxAuthorizer

	configsMu sync.RWMutex
	configs   map[string]entities.ExtensionConfig

	extensionsMu sync.RWMutex
	extensions   map[string]Extension

	loads singleflight.Group
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the registry's logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// WithCallTimeout sets the default per-call budget passed to containers.
func WithCallTimeout(d time.Duration) Option {
	return func(r *Registry) { r.callTimeout = d }
}

// WithContainerFactory replaces how containers are constructed.
func WithContainerFactory(f ContainerFactory) Option {
	return func(r *Registry) { r.newContainer = f }
}

// WithLockfile enables lockfile pinning: resolved modules are verified
// against and recorded into the workspace lockfile.
func WithLockfile(s *lockfile.Service) Option {
	return func(r *Registry) { r.lock = s }
}

// WithBridgeOptions applies host-bridge options to every loaded
// container, such as enabling the outbound HTTP host function.
func WithBridgeOptions(opts ...hostfunc.BridgeOption) Option {
	return func(r *Registry) { r.bridgeOpts = append(r.bridgeOpts, opts...) }
}

// WithSandboxAuthorizer routes each load through an authorizer that may
// widen the extension's sandbox beyond the strict workspace mappings.
func WithSandboxAuthorizer(a SandboxAuthorizer) Option {
	return func(r *Registry) { r.authorize = a }
}

// New creates a registry scoped to a workspace.
func New(ld ports.Loader, workspaceRoot, outputDir string, opts ...Option) *Registry {
	r := &Registry{
		loader:        ld,
		workspaceRoot: workspaceRoot,
		outputDir:     outputDir,
		logger:        slog.Default(),
		newContainer:  defaultFactory,
		configs:       make(map[string]entities.ExtensionConfig),
		extensions:    make(map[string]Extension),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register upserts an extension configuration. The last register wins for
// a given id.
func (r *Registry) Register(config entities.ExtensionConfig) error {
	if config.ID == "" {
		return fmt.Errorf("extension config has no id")
	}
	r.configsMu.Lock()
	r.configs[config.ID] = config
	r.configsMu.Unlock()
	r.logger.Debug("extension registered", slog.String("id", config.ID))
	return nil
}

// RegisterBuiltin registers an always-enabled path-sourced extension.
func (r *Registry) RegisterBuiltin(id, path string) error {
	return r.Register(entities.ExtensionConfig{
		ID:      id,
		Source:  entities.PathSource(path),
		Enabled: true,
	})
}

// DiscoverFromConfig bulk-registers configurations; the map keys are the
// canonical ids. Every entry is registered independently.
func (r *Registry) DiscoverFromConfig(configs map[string]entities.ExtensionConfig) error {
	ids := make([]string, 0, len(configs))
	for id := range configs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		config := configs[id]
		config.ID = id
		if err := r.Register(config); err != nil {
			return err
		}
	}
	return nil
}

// DiscoverDir registers every module in dir whose relative path matches
// the doublestar pattern (for example "**/*.wasm"), using the file stem
// as the extension id.
func (r *Registry) DiscoverDir(dir, pattern string) ([]string, error) {
	matches, err := doublestar.Glob(os.DirFS(dir), pattern)
	if err != nil {
		return nil, fmt.Errorf("glob %q in %s: %w", pattern, dir, err)
	}
	sort.Strings(matches)

	var ids []string
	for _, match := range matches {
		base := filepath.Base(match)
		id := strings.TrimSuffix(base, filepath.Ext(base))
		if err := r.RegisterBuiltin(id, filepath.Join(dir, filepath.FromSlash(match))); err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Load returns the container for an id, constructing it on first use.
// The fast path is a shared read of the cache; a cold load fetches the
// module bytes, builds a workspace-scoped host bridge, and constructs the
// container with no registry lock held.
func (r *Registry) Load(ctx context.Context, id string) (Extension, error) {
	if ext, ok := r.Get(id); ok {
		return ext, nil
	}

	v, err, _ := r.loads.Do(id, func() (any, error) {
		return r.loadCold(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return v.(Extension), nil
}

func (r *Registry) loadCold(ctx context.Context, id string) (Extension, error) {
	// A waiter may have queued behind a load that just completed.
	if ext, ok := r.Get(id); ok {
		return ext, nil
	}

	r.configsMu.RLock()
	config, ok := r.configs[id]
	r.configsMu.RUnlock()
	if !ok {
		return nil, &entities.NotFoundError{ID: id}
	}
	if !config.Enabled {
		return nil, &entities.DisabledError{ID: id}
	}

	wasmPath, err := r.resolveSource(ctx, config)
	if err != nil {
		return nil, &entities.LoadError{ID: id, Err: err}
	}
	if config.SHA256 != "" {
		if err := loader.VerifySHA256(id, wasmPath, config.SHA256); err != nil {
			return nil, err
		}
	}
	if r.lock != nil {
		if err := r.lock.VerifyModule(ctx, id, wasmPath); err != nil {
			return nil, err
		}
	}

	state := hostfunc.NewHostState(r.workspaceRoot, r.outputDir)
	bridgeOpts := append([]hostfunc.BridgeOption(nil), r.bridgeOpts...)
	if r.authorize != nil {
		paths := sandbox.ForWorkspace(r.workspaceRoot, r.outputDir, "")
		sb, err := r.authorize(config, paths)
		if err != nil {
			return nil, fmt.Errorf("authorize extension %s: %w", id, err)
		}
		if sb != nil {
			bridgeOpts = append(bridgeOpts, hostfunc.WithSandbox(sb))
		}
	}
	ext, err := r.newContainer(ctx, id, wasmPath, state,
		container.WithLogger(r.logger),
		container.WithDefaultCallTimeout(r.callTimeout),
		container.WithBridgeOptions(bridgeOpts...))
	if err != nil {
		return nil, err
	}

	// Brief check-then-insert; first writer wins.
	r.extensionsMu.Lock()
	if existing, ok := r.extensions[id]; ok {
		r.extensionsMu.Unlock()
		_ = ext.Close(ctx)
		return existing, nil
	}
	r.extensions[id] = ext
	r.extensionsMu.Unlock()

	if r.lock != nil {
		if digest, derr := values.SHA256File(wasmPath); derr == nil {
			if lerr := r.lock.Record(ctx, id, config.Source.Describe(), ext.Info().Version, digest.String()); lerr != nil {
				r.logger.Warn("lockfile update failed", slog.String("id", id), slog.Any("error", lerr))
			}
		}
	}

	r.logger.Info("extension loaded",
		slog.String("id", id),
		slog.String("name", ext.Info().Name),
		slog.String("version", ext.Info().Version))
	return ext, nil
}

// resolveSource obtains local module bytes for a config via the loader.
func (r *Registry) resolveSource(ctx context.Context, config entities.ExtensionConfig) (string, error) {
	if err := config.Source.Validate(); err != nil {
		return "", err
	}
	switch config.Source.Type {
	case entities.SourcePath:
		return r.loader.LoadFromPath(ctx, config.Source.Path)
	case entities.SourceURL:
		return r.loader.LoadFromURL(ctx, config.ID, config.Source.URL)
	case entities.SourceGitHub:
		return r.loader.LoadFromGitHub(ctx, config.ID, config.Source.Repo, config.Source.Tag, config.Source.Asset)
	case entities.SourceOCI:
		return r.loader.LoadFromOCI(ctx, config.ID, config.Source.Reference)
	default:
		return "", fmt.Errorf("unknown source type: %q", config.Source.Type)
	}
}

// LoadFromPath registers a path-sourced extension and loads it.
func (r *Registry) LoadFromPath(ctx context.Context, id, path string) (Extension, error) {
	if err := r.RegisterBuiltin(id, path); err != nil {
		return nil, err
	}
	return r.Load(ctx, id)
}

// LoadAll loads every registered extension independently; one failure
// never aborts the batch. Results are ordered by id.
func (r *Registry) LoadAll(ctx context.Context) []LoadResult {
	r.configsMu.RLock()
	ids := make([]string, 0, len(r.configs))
	for id := range r.configs {
		ids = append(ids, id)
	}
	r.configsMu.RUnlock()
	sort.Strings(ids)

	results := make([]LoadResult, 0, len(ids))
	for _, id := range ids {
		ext, err := r.Load(ctx, id)
		results = append(results, LoadResult{ID: id, Extension: ext, Err: err})
	}
	return results
}

// Unload removes a loaded container and releases its sandbox.
func (r *Registry) Unload(ctx context.Context, id string) error {
	r.extensionsMu.Lock()
	ext, ok := r.extensions[id]
	delete(r.extensions, id)
	r.extensionsMu.Unlock()

	if !ok {
		return &entities.NotFoundError{ID: id}
	}
	r.logger.Info("extension unloaded", slog.String("id", id))
	return ext.Close(ctx)
}

// Get returns a loaded container without triggering a load.
func (r *Registry) Get(id string) (Extension, bool) {
	r.extensionsMu.RLock()
	ext, ok := r.extensions[id]
	r.extensionsMu.RUnlock()
	return ext, ok
}

// List snapshots the metadata of all loaded extensions, ordered by id.
func (r *Registry) List() []entities.ExtensionInfo {
	exts := r.snapshot()
	out := make([]entities.ExtensionInfo, len(exts))
	for i, ext := range exts {
		out[i] = ext.Info()
	}
	return out
}

// ListByType returns the loaded extensions supporting a capability.
func (r *Registry) ListByType(t entities.ExtensionType) []Extension {
	var out []Extension
	for _, ext := range r.snapshot() {
		if ext.Supports(t) {
			out = append(out, ext)
		}
	}
	return out
}

// FindByType returns some loaded extension supporting the capability.
func (r *Registry) FindByType(t entities.ExtensionType) (Extension, bool) {
	for _, ext := range r.snapshot() {
		if ext.Supports(t) {
			return ext, true
		}
	}
	return nil, false
}

// FindExtensionByLanguage locates a frontend for a source language: first
// by loading an extension whose id equals the language (covers builtins
// keyed by language name), then by scanning already-loaded extensions by
// id or advertised language.
func (r *Registry) FindExtensionByLanguage(ctx context.Context, language string) (Extension, bool) {
	if ext, err := r.Load(ctx, language); err == nil && ext.Supports(entities.TypeFrontend) {
		return ext, true
	}
	for _, ext := range r.snapshot() {
		if !ext.Supports(entities.TypeFrontend) {
			continue
		}
		if ext.ID() == language || ext.Capabilities().SupportsLanguage(language) {
			return ext, true
		}
	}
	return nil, false
}

// FindExtensionByTarget locates a backend for a generation target, with
// the same strategy as FindExtensionByLanguage.
func (r *Registry) FindExtensionByTarget(ctx context.Context, target string) (Extension, bool) {
	if ext, err := r.Load(ctx, target); err == nil && ext.Supports(entities.TypeBackend) {
		return ext, true
	}
	for _, ext := range r.snapshot() {
		if !ext.Supports(entities.TypeBackend) {
			continue
		}
		if ext.ID() == target || ext.Capabilities().SupportsTarget(target) {
			return ext, true
		}
	}
	return nil, false
}

// Close unloads every extension, returning the first error encountered.
func (r *Registry) Close(ctx context.Context) error {
	r.extensionsMu.Lock()
	exts := make([]Extension, 0, len(r.extensions))
	for _, ext := range r.extensions {
		exts = append(exts, ext)
	}
	r.extensions = make(map[string]Extension)
	r.extensionsMu.Unlock()

	var firstErr error
	for _, ext := range exts {
		if err := ext.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// snapshot copies the loaded set under the read lock, ordered by id so
// scan results are deterministic.
func (r *Registry) snapshot() []Extension {
	r.extensionsMu.RLock()
	out := make([]Extension, 0, len(r.extensions))
	for _, ext := range r.extensions {
		out = append(out, ext)
	}
	r.extensionsMu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}
