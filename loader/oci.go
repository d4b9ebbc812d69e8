package loader

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"oras.land/oras-go/v2"
	"oras.land/oras-go/v2/content/memory"
	"oras.land/oras-go/v2/registry"
	"oras.land/oras-go/v2/registry/remote"
	"oras.land/oras-go/v2/registry/remote/auth"
)

// wasmLayerMediaType is the layer media type carrying the module bytes in
// a wasm OCI artifact.
const wasmLayerMediaType = "application/vnd.module.wasm.content.layer.v1+wasm"

// LoadFromOCI pulls the wasm layer of an OCI artifact and caches it under
// the extension id. The reference includes a tag or digest, e.g.
// ghcr.io/org/ext:1.2.0.
func (l *Loader) LoadFromOCI(ctx context.Context, id, reference string) (string, error) {
	cachePath := filepath.Join(l.cacheDir, id+".wasm")
	if _, err := os.Stat(cachePath); err == nil {
		l.logger.DebugContext(ctx, "using cached extension",
			slog.String("id", id), slog.String("path", cachePath))
		return cachePath, nil
	}

	ref, err := registry.ParseReference(reference)
	if err != nil {
		return "", fmt.Errorf("parse OCI reference %q: %w", reference, err)
	}
	version := ref.Reference
	if version == "" {
		version = "latest"
	}

	l.logger.InfoContext(ctx, "pulling extension artifact",
		slog.String("id", id), slog.String("reference", reference))

	repo, err := remote.NewRepository(ref.Registry + "/" + ref.Repository)
	if err != nil {
		return "", fmt.Errorf("create repository client: %w", err)
	}
	if cred := envCredential(ref.Registry); cred != nil {
		repo.Client = &auth.Client{
			Client:     l.client,
			Cache:      auth.NewCache(),
			Credential: cred,
		}
	}

	store := memory.New()
	manifestDesc, err := oras.Copy(ctx, repo, version, store, version, oras.DefaultCopyOptions)
	if err != nil {
		return "", fmt.Errorf("pull artifact %s: %w", reference, err)
	}

	manifest, err := fetchManifest(ctx, store, manifestDesc)
	if err != nil {
		return "", err
	}
	wasmDesc, err := findWASMLayer(manifest)
	if err != nil {
		return "", fmt.Errorf("artifact %s: %w", reference, err)
	}
	if wasmDesc.Size > l.maxSize {
		return "", fmt.Errorf("artifact %s: wasm layer is %d bytes, limit is %d", reference, wasmDesc.Size, l.maxSize)
	}

	rc, err := store.Fetch(ctx, wasmDesc)
	if err != nil {
		return "", fmt.Errorf("fetch wasm layer: %w", err)
	}
	defer func() {
		_ = rc.Close()
	}()

	if err := l.storeModule(id, cachePath, rc); err != nil {
		return "", err
	}
	return cachePath, nil
}

func fetchManifest(ctx context.Context, store *memory.Store, desc ocispec.Descriptor) (*ocispec.Manifest, error) {
	rc, err := store.Fetch(ctx, desc)
	if err != nil {
		return nil, fmt.Errorf("fetch manifest: %w", err)
	}
	defer func() {
		_ = rc.Close()
	}()

	raw, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var manifest ocispec.Manifest
	if err := json.Unmarshal(raw, &manifest); err != nil {
		return nil, fmt.Errorf("invalid manifest JSON: %w", err)
	}
	return &manifest, nil
}

// findWASMLayer prefers the dedicated wasm media type but accepts a
// single-layer artifact of any type.
func findWASMLayer(manifest *ocispec.Manifest) (ocispec.Descriptor, error) {
	for _, layer := range manifest.Layers {
		if layer.MediaType == wasmLayerMediaType {
			return layer, nil
		}
	}
	if len(manifest.Layers) == 1 {
		return manifest.Layers[0], nil
	}
	return ocispec.Descriptor{}, fmt.Errorf("no wasm layer in manifest (%d layers)", len(manifest.Layers))
}
