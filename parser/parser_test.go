package parser

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/morphir-dev/exthost/extension/entities"
)

const yamlConfig = `
extensions:
  morphir-elm:
    source:
      type: github
      repo: finos/morphir-elm
      tag: v2.90.0
      asset: morphir-elm.wasm
    config:
      target_version: "0.19"
  scala-backend:
    source:
      type: path
      path: ./extensions/scala.wasm
    enabled: false
  checker:
    source:
      type: url
      url: https://example.com/checker.wasm
    sha256: 2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824
`

const jsonConfig = `{
  "extensions": {
    "morphir-elm": {
      "source": {
        "type": "github",
        "repo": "finos/morphir-elm",
        "tag": "v2.90.0",
        "asset": "morphir-elm.wasm"
      },
      "config": {"target_version": "0.19"}
    },
    "scala-backend": {
      "source": {"type": "path", "path": "./extensions/scala.wasm"},
      "enabled": false
    },
    "checker": {
      "source": {"type": "url", "url": "https://example.com/checker.wasm"},
      "sha256": "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
    }
  }
}`

func assertParsedConfig(t *testing.T, configs map[string]entities.ExtensionConfig) {
	t.Helper()
	require.Len(t, configs, 3)

	elm := configs["morphir-elm"]
	assert.Equal(t, "morphir-elm", elm.ID)
	assert.Equal(t, entities.SourceGitHub, elm.Source.Type)
	assert.Equal(t, "finos/morphir-elm", elm.Source.Repo)
	assert.Equal(t, "v2.90.0", elm.Source.Tag)
	assert.True(t, elm.Enabled, "enabled must default to true")
	assert.Equal(t, "0.19", elm.Config["target_version"])

	scala := configs["scala-backend"]
	assert.Equal(t, entities.SourcePath, scala.Source.Type)
	assert.False(t, scala.Enabled)

	checker := configs["checker"]
	assert.Equal(t, entities.SourceURL, checker.Source.Type)
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", checker.SHA256)
	assert.True(t, checker.Enabled)
}

func TestYAMLAndJSONParseIdentically(t *testing.T) {
	fromYAML, err := NewYAMLConfigParser().Parse([]byte(yamlConfig))
	require.NoError(t, err)
	fromJSON, err := NewJSONConfigParser().Parse([]byte(jsonConfig))
	require.NoError(t, err)

	assertParsedConfig(t, fromYAML)
	assertParsedConfig(t, fromJSON)
	assert.Equal(t, fromJSON, fromYAML)
}

func TestParseRejectsInvalidSource(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "unknown source type",
			yaml: "extensions:\n  x:\n    source:\n      type: ftp\n      path: /x.wasm\n",
		},
		{
			name: "path source without path",
			yaml: "extensions:\n  x:\n    source:\n      type: path\n",
		},
		{
			name: "github source without repo",
			yaml: "extensions:\n  x:\n    source:\n      type: github\n      asset: x.wasm\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewYAMLConfigParser().Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), `"x"`)
		})
	}
}

func TestParseMalformedInput(t *testing.T) {
	_, err := NewYAMLConfigParser().Parse([]byte("extensions: [not: a map"))
	assert.Error(t, err)

	_, err = NewJSONConfigParser().Parse([]byte("{not json"))
	assert.Error(t, err)
}

func TestParseEmptyDocument(t *testing.T) {
	configs, err := NewYAMLConfigParser().Parse([]byte("extensions: {}\n"))
	require.NoError(t, err)
	assert.Empty(t, configs)
}

func TestForPath(t *testing.T) {
	tests := []struct {
		path    string
		want    any
		wantErr bool
	}{
		{path: "morphir.config.yaml", want: &YAMLConfigParser{}},
		{path: "morphir.config.YML", want: &YAMLConfigParser{}},
		{path: "morphir.config.json", want: &JSONConfigParser{}},
		{path: "morphir.config.toml", wantErr: true},
		{path: "no-extension", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			p, err := ForPath(tt.path)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, p)
		})
	}
}

func TestParseFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "morphir.config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yamlConfig), 0o644))

	configs, err := ParseFile(path)
	require.NoError(t, err)
	assertParsedConfig(t, configs)

	_, err = ParseFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
