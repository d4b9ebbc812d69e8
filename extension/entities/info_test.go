package entities

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseExtensionType(t *testing.T) {
	tests := []struct {
		input   string
		want    ExtensionType
		wantErr bool
	}{
		{input: "frontend", want: TypeFrontend},
		{input: "backend", want: TypeBackend},
		{input: "transform", want: TypeTransform},
		{input: "validator", want: TypeValidator},
		{input: " Frontend ", want: TypeFrontend},
		{input: "compiler", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseExtensionType(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtensionTypeUnmarshalRejectsUnknown(t *testing.T) {
	var info ExtensionInfo
	err := json.Unmarshal([]byte(`{"id":"x","name":"x","version":"1.0.0","types":["linker"]}`), &info)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown extension type")
}

func TestExtensionInfoDecode(t *testing.T) {
	raw := `{
		"id": "morphir-elm",
		"name": "Elm Frontend",
		"version": "1.4.0",
		"types": ["frontend", "validator"],
		"min_sdk_version": "0.3.0"
	}`

	var info ExtensionInfo
	require.NoError(t, json.Unmarshal([]byte(raw), &info))

	assert.Equal(t, "morphir-elm", info.ID)
	assert.Equal(t, "1.4.0", info.Version)
	assert.True(t, info.HasType(TypeFrontend))
	assert.True(t, info.HasType(TypeValidator))
	assert.False(t, info.HasType(TypeBackend))
	assert.Equal(t, "0.3.0", info.MinSDKVersion)
}
