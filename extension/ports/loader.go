// Package ports declares the interfaces the extension runtime depends on
// but does not implement itself. Concrete adapters live in loader and
// capability.
package ports

import "context"

// Loader resolves extension module bytes from a configured source and
// returns a local path to them, fetching and caching as needed. Failures
// surface as load failures to the registry.
type Loader interface {
	// LoadFromPath validates a local module file and returns its path.
	LoadFromPath(ctx context.Context, path string) (string, error)

	// LoadFromURL downloads a module, caching it under the extension id.
	LoadFromURL(ctx context.Context, id, url string) (string, error)

	// LoadFromGitHub fetches a release asset. An empty tag means latest.
	LoadFromGitHub(ctx context.Context, id, repo, tag, asset string) (string, error)

	// LoadFromOCI pulls the wasm layer of an OCI artifact.
	LoadFromOCI(ctx context.Context, id, reference string) (string, error)
}
