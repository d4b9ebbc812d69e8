package entities

import (
	"encoding/json"
	"fmt"
)

// SourceType discriminates the ways extension bytes can be obtained.
type SourceType string

const (
	SourcePath   SourceType = "path"
	SourceURL    SourceType = "url"
	SourceGitHub SourceType = "github"
	SourceOCI    SourceType = "oci"
)

// ExtensionSource describes where an extension module comes from. The Type
// field selects which of the remaining fields are meaningful.
type ExtensionSource struct {
	Type SourceType `json:"type"`

	// Path source.
	Path string `json:"path,omitempty"`

	// URL source.
	URL string `json:"url,omitempty"`

	// GitHub release source.
	Repo  string `json:"repo,omitempty"`
	Tag   string `json:"tag,omitempty"`
	Asset string `json:"asset,omitempty"`

	// OCI artifact source.
	Reference string `json:"reference,omitempty"`
}

// PathSource builds a local-file source.
func PathSource(path string) ExtensionSource {
	return ExtensionSource{Type: SourcePath, Path: path}
}

// URLSource builds a download-by-URL source.
func URLSource(url string) ExtensionSource {
	return ExtensionSource{Type: SourceURL, URL: url}
}

// GitHubSource builds a GitHub release source. An empty tag means the
// latest release.
func GitHubSource(repo, tag, asset string) ExtensionSource {
	return ExtensionSource{Type: SourceGitHub, Repo: repo, Tag: tag, Asset: asset}
}

// OCISource builds an OCI artifact source.
func OCISource(reference string) ExtensionSource {
	return ExtensionSource{Type: SourceOCI, Reference: reference}
}

// Describe returns a short human-readable form of the source, suitable
// for logs and lockfile entries.
func (s ExtensionSource) Describe() string {
	switch s.Type {
	case SourcePath:
		return s.Path
	case SourceURL:
		return s.URL
	case SourceGitHub:
		if s.Tag == "" {
			return fmt.Sprintf("github:%s@latest/%s", s.Repo, s.Asset)
		}
		return fmt.Sprintf("github:%s@%s/%s", s.Repo, s.Tag, s.Asset)
	case SourceOCI:
		return "oci:" + s.Reference
	default:
		return string(s.Type)
	}
}

// Validate checks that the fields required by the source type are present.
func (s ExtensionSource) Validate() error {
	switch s.Type {
	case SourcePath:
		if s.Path == "" {
			return fmt.Errorf("path source requires a path")
		}
	case SourceURL:
		if s.URL == "" {
			return fmt.Errorf("url source requires a url")
		}
	case SourceGitHub:
		if s.Repo == "" || s.Asset == "" {
			return fmt.Errorf("github source requires repo and asset")
		}
	case SourceOCI:
		if s.Reference == "" {
			return fmt.Errorf("oci source requires a reference")
		}
	default:
		return fmt.Errorf("unknown source type: %q", s.Type)
	}
	return nil
}

// ExtensionConfig is the externally supplied configuration for one
// extension. The registry owns a snapshot keyed by id; the last register
// wins for a given id.
type ExtensionConfig struct {
	ID     string          `json:"id"`
	Source ExtensionSource `json:"source"`
	// Enabled defaults to true when absent from the serialized form.
	Enabled bool `json:"enabled"`
	// SHA256, when set, pins the expected digest of the module bytes.
	SHA256 string `json:"sha256,omitempty"`
	// Config carries extension-specific settings, opaque to the host.
	Config map[string]any `json:"config,omitempty"`
}

// UnmarshalJSON decodes a config with enabled defaulting to true.
func (c *ExtensionConfig) UnmarshalJSON(data []byte) error {
	type plain ExtensionConfig
	aux := plain{Enabled: true}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*c = ExtensionConfig(aux)
	return nil
}
