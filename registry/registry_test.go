package registry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/morphir-dev/exthost/container"
	"github.com/morphir-dev/exthost/extension/entities"
	"github.com/morphir-dev/exthost/hostfunc"
	"github.com/morphir-dev/exthost/sandbox"
)

// fakeLoader resolves every source to a fixed local path and counts
// fetches.
type fakeLoader struct {
	fetches atomic.Int32
	path    string
	err     error
}

func (l *fakeLoader) resolve() (string, error) {
	l.fetches.Add(1)
	if l.err != nil {
		return "", l.err
	}
	return l.path, nil
}

func (l *fakeLoader) LoadFromPath(ctx context.Context, path string) (string, error) {
	l.fetches.Add(1)
	if l.err != nil {
		return "", l.err
	}
	return path, nil
}

func (l *fakeLoader) LoadFromURL(ctx context.Context, id, url string) (string, error) {
	return l.resolve()
}

func (l *fakeLoader) LoadFromGitHub(ctx context.Context, id, repo, tag, asset string) (string, error) {
	return l.resolve()
}

func (l *fakeLoader) LoadFromOCI(ctx context.Context, id, reference string) (string, error) {
	return l.resolve()
}

// fakeExtension satisfies Extension without a sandbox instance.
type fakeExtension struct {
	id     string
	info   entities.ExtensionInfo
	caps   entities.Capabilities
	closed atomic.Bool
}

func (e *fakeExtension) ID() string                          { return e.id }
func (e *fakeExtension) Info() entities.ExtensionInfo        { return e.info }
func (e *fakeExtension) Capabilities() entities.Capabilities { return e.caps }

func (e *fakeExtension) Supports(t entities.ExtensionType) bool {
	return e.info.HasType(t)
}

func (e *fakeExtension) Call(ctx context.Context, method string, params, out any) error {
	return nil
}

func (e *fakeExtension) CallRaw(ctx context.Context, export string, input []byte) ([]byte, error) {
	return nil, nil
}

func (e *fakeExtension) Close(ctx context.Context) error {
	e.closed.Store(true)
	return nil
}

type factoryStats struct {
	calls atomic.Int32
	delay time.Duration
}

func fakeFactory(stats *factoryStats, types ...entities.ExtensionType) ContainerFactory {
	return func(ctx context.Context, id, wasmPath string, state *hostfunc.HostState, opts ...container.Option) (Extension, error) {
		stats.calls.Add(1)
		if stats.delay > 0 {
			time.Sleep(stats.delay)
		}
		return &fakeExtension{
			id: id,
			info: entities.ExtensionInfo{
				ID:      id,
				Name:    "Fake " + id,
				Version: "1.0.0",
				Types:   types,
			},
		}, nil
	}
}

func newTestRegistry(t *testing.T, factory ContainerFactory) (*Registry, *fakeLoader) {
	t.Helper()
	ld := &fakeLoader{path: writeModule(t, "mod.wasm", "\x00asm")}
	r := New(ld, t.TempDir(), t.TempDir(),
		WithContainerFactory(factory))
	t.Cleanup(func() { _ = r.Close(context.Background()) })
	return r, ld
}

func writeModule(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func pathConfig(id, path string) entities.ExtensionConfig {
	return entities.ExtensionConfig{ID: id, Source: entities.PathSource(path), Enabled: true}
}

func TestLoadUnknownID(t *testing.T) {
	r, _ := newTestRegistry(t, fakeFactory(&factoryStats{}))

	_, err := r.Load(context.Background(), "ghost")
	require.Error(t, err)
	assert.ErrorIs(t, err, entities.ErrNotFound)
	assert.NotErrorIs(t, err, entities.ErrDisabled)
}

func TestLoadDisabledExtension(t *testing.T) {
	r, ld := newTestRegistry(t, fakeFactory(&factoryStats{}))
	config := pathConfig("scala-backend", ld.path)
	config.Enabled = false
	require.NoError(t, r.Register(config))

	_, err := r.Load(context.Background(), "scala-backend")
	require.Error(t, err)
	assert.ErrorIs(t, err, entities.ErrDisabled)
	assert.NotErrorIs(t, err, entities.ErrNotFound)
	assert.Equal(t, int32(0), ld.fetches.Load())
}

func TestLoadCachesContainer(t *testing.T) {
	stats := &factoryStats{}
	r, ld := newTestRegistry(t, fakeFactory(stats, entities.TypeFrontend))
	require.NoError(t, r.Register(pathConfig("elm", ld.path)))

	first, err := r.Load(context.Background(), "elm")
	require.NoError(t, err)
	second, err := r.Load(context.Background(), "elm")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, int32(1), stats.calls.Load())
	assert.Equal(t, int32(1), ld.fetches.Load())
}

func TestConcurrentColdLoadsDeduplicated(t *testing.T) {
	stats := &factoryStats{delay: 20 * time.Millisecond}
	r, ld := newTestRegistry(t, fakeFactory(stats, entities.TypeFrontend))
	require.NoError(t, r.Register(pathConfig("elm", ld.path)))

	var wg sync.WaitGroup
	exts := make([]Extension, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ext, err := r.Load(context.Background(), "elm")
			assert.NoError(t, err)
			exts[i] = ext
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), stats.calls.Load())
	for _, ext := range exts[1:] {
		assert.Same(t, exts[0], ext)
	}
}

func TestLoadFailurePropagates(t *testing.T) {
	ld := &fakeLoader{err: errors.New("network down")}
	r := New(ld, t.TempDir(), t.TempDir(), WithContainerFactory(fakeFactory(&factoryStats{})))
	require.NoError(t, r.Register(entities.ExtensionConfig{
		ID:      "remote",
		Source:  entities.URLSource("https://e.com/r.wasm"),
		Enabled: true,
	}))

	_, err := r.Load(context.Background(), "remote")
	require.Error(t, err)
	assert.ErrorIs(t, err, entities.ErrLoadFailed)
}

func TestDigestPinning(t *testing.T) {
	r, ld := newTestRegistry(t, fakeFactory(&factoryStats{}))
	config := pathConfig("pinned", ld.path)
	config.SHA256 = "0000000000000000000000000000000000000000000000000000000000000000"
	require.NoError(t, r.Register(config))

	_, err := r.Load(context.Background(), "pinned")
	require.Error(t, err)

	var mismatch *entities.DigestMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "pinned", mismatch.ID)
}

func TestUnload(t *testing.T) {
	r, ld := newTestRegistry(t, fakeFactory(&factoryStats{}, entities.TypeFrontend))
	require.NoError(t, r.Register(pathConfig("elm", ld.path)))

	ext, err := r.Load(context.Background(), "elm")
	require.NoError(t, err)

	require.NoError(t, r.Unload(context.Background(), "elm"))
	assert.True(t, ext.(*fakeExtension).closed.Load())

	_, ok := r.Get("elm")
	assert.False(t, ok)

	err = r.Unload(context.Background(), "elm")
	assert.ErrorIs(t, err, entities.ErrNotFound)
}

func TestLoadAllCollectsPerIDResults(t *testing.T) {
	r, ld := newTestRegistry(t, fakeFactory(&factoryStats{}, entities.TypeFrontend))
	require.NoError(t, r.Register(pathConfig("alpha", ld.path)))
	require.NoError(t, r.Register(pathConfig("beta", ld.path)))
	disabled := pathConfig("omega", ld.path)
	disabled.Enabled = false
	require.NoError(t, r.Register(disabled))

	results := r.LoadAll(context.Background())
	require.Len(t, results, 3)

	assert.Equal(t, "alpha", results[0].ID)
	assert.NoError(t, results[0].Err)
	assert.Equal(t, "beta", results[1].ID)
	assert.NoError(t, results[1].Err)
	assert.Equal(t, "omega", results[2].ID)
	assert.ErrorIs(t, results[2].Err, entities.ErrDisabled)
}

func TestListAndFindByType(t *testing.T) {
	ld := &fakeLoader{}
	r := New(ld, t.TempDir(), t.TempDir(), WithContainerFactory(
		func(ctx context.Context, id, wasmPath string, state *hostfunc.HostState, opts ...container.Option) (Extension, error) {
			types := []entities.ExtensionType{entities.TypeFrontend}
			if id == "scala" {
				types = []entities.ExtensionType{entities.TypeBackend}
			}
			return &fakeExtension{id: id, info: entities.ExtensionInfo{ID: id, Name: id, Version: "1.0.0", Types: types}}, nil
		}))
	t.Cleanup(func() { _ = r.Close(context.Background()) })

	path := writeModule(t, "m.wasm", "\x00asm")
	require.NoError(t, r.Register(pathConfig("elm", path)))
	require.NoError(t, r.Register(pathConfig("scala", path)))
	_, err := r.Load(context.Background(), "elm")
	require.NoError(t, err)
	_, err = r.Load(context.Background(), "scala")
	require.NoError(t, err)

	infos := r.List()
	require.Len(t, infos, 2)
	assert.Equal(t, "elm", infos[0].ID)
	assert.Equal(t, "scala", infos[1].ID)

	frontends := r.ListByType(entities.TypeFrontend)
	require.Len(t, frontends, 1)
	assert.Equal(t, "elm", frontends[0].ID())

	backend, ok := r.FindByType(entities.TypeBackend)
	require.True(t, ok)
	assert.Equal(t, "scala", backend.ID())

	_, ok = r.FindByType(entities.TypeValidator)
	assert.False(t, ok)
}

func TestFindExtensionByLanguage(t *testing.T) {
	ld := &fakeLoader{}
	r := New(ld, t.TempDir(), t.TempDir(), WithContainerFactory(
		func(ctx context.Context, id, wasmPath string, state *hostfunc.HostState, opts ...container.Option) (Extension, error) {
			return &fakeExtension{
				id:   id,
				info: entities.ExtensionInfo{ID: id, Name: id, Version: "1.0.0", Types: []entities.ExtensionType{entities.TypeFrontend}},
				caps: entities.Capabilities{Languages: []string{"elm", "elm-lang"}},
			}, nil
		}))
	t.Cleanup(func() { _ = r.Close(context.Background()) })

	path := writeModule(t, "m.wasm", "\x00asm")
	require.NoError(t, r.Register(pathConfig("elm", path)))

	// Id match loads on demand.
	ext, ok := r.FindExtensionByLanguage(context.Background(), "elm")
	require.True(t, ok)
	assert.Equal(t, "elm", ext.ID())

	// Advertised language match against the loaded set.
	ext, ok = r.FindExtensionByLanguage(context.Background(), "elm-lang")
	require.True(t, ok)
	assert.Equal(t, "elm", ext.ID())

	_, ok = r.FindExtensionByLanguage(context.Background(), "cobol")
	assert.False(t, ok)
}

func TestDiscoverFromConfig(t *testing.T) {
	r, ld := newTestRegistry(t, fakeFactory(&factoryStats{}, entities.TypeFrontend))

	require.NoError(t, r.DiscoverFromConfig(map[string]entities.ExtensionConfig{
		"elm":   {Source: entities.PathSource(ld.path), Enabled: true},
		"scala": {Source: entities.PathSource(ld.path), Enabled: true},
	}))

	_, err := r.Load(context.Background(), "elm")
	require.NoError(t, err)
	_, err = r.Load(context.Background(), "scala")
	require.NoError(t, err)
}

func TestDiscoverDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "elm.wasm"), []byte("\x00asm"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nested", "scala.wasm"), []byte("\x00asm"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("x"), 0o644))

	r, _ := newTestRegistry(t, fakeFactory(&factoryStats{}, entities.TypeFrontend))

	ids, err := r.DiscoverDir(dir, "**/*.wasm")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"elm", "scala"}, ids)

	for _, id := range ids {
		_, err := r.Load(context.Background(), id)
		assert.NoError(t, err, id)
	}
}

func TestRegisterRequiresID(t *testing.T) {
	r, _ := newTestRegistry(t, fakeFactory(&factoryStats{}))
	err := r.Register(entities.ExtensionConfig{Source: entities.PathSource("/x.wasm")})
	require.Error(t, err)
}

func TestLoadFromPath(t *testing.T) {
	r, ld := newTestRegistry(t, fakeFactory(&factoryStats{}, entities.TypeValidator))

	ext, err := r.LoadFromPath(context.Background(), "checker", ld.path)
	require.NoError(t, err)
	assert.Equal(t, "checker", ext.ID())

	_, ok := r.Get("checker")
	assert.True(t, ok)
}

func TestRegisterLastWins(t *testing.T) {
	r, ld := newTestRegistry(t, fakeFactory(&factoryStats{}))

	first := pathConfig("elm", ld.path)
	first.Enabled = false
	require.NoError(t, r.Register(first))
	require.NoError(t, r.Register(pathConfig("elm", ld.path)))

	_, err := r.Load(context.Background(), "elm")
	require.NoError(t, err)
}

func TestSandboxAuthorizerGrantsAndLoads(t *testing.T) {
	var authorized []string
	ld := &fakeLoader{path: writeModule(t, "mod.wasm", "\x00asm")}
	r := New(ld, t.TempDir(), t.TempDir(),
		WithContainerFactory(fakeFactory(&factoryStats{}, entities.TypeFrontend)),
		WithSandboxAuthorizer(func(config entities.ExtensionConfig, paths *sandbox.VirtualPathConfig) (*sandbox.FileSandbox, error) {
			authorized = append(authorized, config.ID)
			return sandbox.WithExternalAccess(paths, true, false), nil
		}))
	t.Cleanup(func() { _ = r.Close(context.Background()) })

	config := pathConfig("elm", ld.path)
	config.Config = map[string]any{"allow_external_reads": true}
	require.NoError(t, r.Register(config))

	_, err := r.Load(context.Background(), "elm")
	require.NoError(t, err)
	assert.Equal(t, []string{"elm"}, authorized)
}

func TestSandboxAuthorizerDenialBlocksLoad(t *testing.T) {
	ld := &fakeLoader{path: writeModule(t, "mod.wasm", "\x00asm")}
	r := New(ld, t.TempDir(), t.TempDir(),
		WithContainerFactory(fakeFactory(&factoryStats{})),
		WithSandboxAuthorizer(func(config entities.ExtensionConfig, paths *sandbox.VirtualPathConfig) (*sandbox.FileSandbox, error) {
			return nil, errors.New("external write access denied")
		}))
	t.Cleanup(func() { _ = r.Close(context.Background()) })

	require.NoError(t, r.Register(pathConfig("elm", ld.path)))

	_, err := r.Load(context.Background(), "elm")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "denied")

	_, ok := r.Get("elm")
	assert.False(t, ok)
}
