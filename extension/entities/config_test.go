package entities

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtensionConfigEnabledDefaultsTrue(t *testing.T) {
	var config ExtensionConfig
	require.NoError(t, json.Unmarshal([]byte(`{"id":"elm","source":{"type":"path","path":"/x.wasm"}}`), &config))
	assert.True(t, config.Enabled)

	require.NoError(t, json.Unmarshal([]byte(`{"id":"elm","source":{"type":"path","path":"/x.wasm"},"enabled":false}`), &config))
	assert.False(t, config.Enabled)
}

func TestExtensionSourceValidate(t *testing.T) {
	tests := []struct {
		name    string
		source  ExtensionSource
		wantErr bool
	}{
		{name: "path ok", source: PathSource("/ext/elm.wasm")},
		{name: "path missing", source: ExtensionSource{Type: SourcePath}, wantErr: true},
		{name: "url ok", source: URLSource("https://example.com/ext.wasm")},
		{name: "url missing", source: ExtensionSource{Type: SourceURL}, wantErr: true},
		{name: "github ok", source: GitHubSource("org/repo", "v1.0.0", "ext.wasm")},
		{name: "github latest ok", source: GitHubSource("org/repo", "", "ext.wasm")},
		{name: "github missing asset", source: ExtensionSource{Type: SourceGitHub, Repo: "org/repo"}, wantErr: true},
		{name: "oci ok", source: OCISource("ghcr.io/org/ext:1.0.0")},
		{name: "oci missing", source: ExtensionSource{Type: SourceOCI}, wantErr: true},
		{name: "unknown type", source: ExtensionSource{Type: "ftp"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.source.Validate()
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestExtensionSourceDescribe(t *testing.T) {
	assert.Equal(t, "/ext/elm.wasm", PathSource("/ext/elm.wasm").Describe())
	assert.Equal(t, "https://e.com/x.wasm", URLSource("https://e.com/x.wasm").Describe())
	assert.Equal(t, "github:org/repo@v1/x.wasm", GitHubSource("org/repo", "v1", "x.wasm").Describe())
	assert.Equal(t, "github:org/repo@latest/x.wasm", GitHubSource("org/repo", "", "x.wasm").Describe())
	assert.Equal(t, "oci:ghcr.io/org/ext:1", OCISource("ghcr.io/org/ext:1").Describe())
}

func TestExtensionSourceJSONRoundTrip(t *testing.T) {
	source := GitHubSource("finos/morphir-elm", "v2.90.0", "morphir-elm.wasm")

	raw, err := json.Marshal(source)
	require.NoError(t, err)

	var decoded ExtensionSource
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, source, decoded)
}
