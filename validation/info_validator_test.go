package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/morphir-dev/exthost/extension/entities"
)

func TestValidateAcceptsWellFormedInfo(t *testing.T) {
	v, err := NewInfoValidator()
	require.NoError(t, err)

	info, err := v.Validate([]byte(`{
		"id": "morphir-elm",
		"name": "Elm Frontend",
		"version": "2.90.0",
		"description": "Compiles Elm sources to Morphir IR",
		"types": ["frontend"],
		"min_sdk_version": "0.2.0"
	}`))
	require.NoError(t, err)

	assert.Equal(t, "morphir-elm", info.ID)
	assert.Equal(t, "Elm Frontend", info.Name)
	assert.Equal(t, "2.90.0", info.Version)
	assert.True(t, info.HasType(entities.TypeFrontend))
}

func TestValidateRejectsBadInfo(t *testing.T) {
	v, err := NewInfoValidator()
	require.NoError(t, err)

	tests := []struct {
		name string
		raw  string
	}{
		{name: "not json", raw: `garbage`},
		{name: "missing id", raw: `{"name":"X","version":"1.0.0"}`},
		{name: "missing name", raw: `{"id":"x","version":"1.0.0"}`},
		{name: "missing version", raw: `{"id":"x","name":"X"}`},
		{name: "empty id", raw: `{"id":"","name":"X","version":"1.0.0"}`},
		{name: "wrong types shape", raw: `{"id":"x","name":"X","version":"1.0.0","types":"frontend"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Validate([]byte(tt.raw))
			require.Error(t, err)
		})
	}
}

func TestValidatorSatisfiesInterface(t *testing.T) {
	v, err := NewInfoValidator()
	require.NoError(t, err)
	var _ Validator = v
}
