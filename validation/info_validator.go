// Package validation checks guest-reported metadata against a generated
// JSON schema before a container accepts it.
package validation

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	schemavalidate "github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/morphir-dev/exthost/extension/entities"
)

const infoSchemaURL = "exthost://schema/extension-info.json"

// InfoValidator validates the JSON an extension returns from its info
// export. The schema is generated once from the ExtensionInfo type, so the
// wire contract and the Go type cannot drift apart.
type InfoValidator struct {
	schema *schemavalidate.Schema
}

// NewInfoValidator generates and compiles the info schema.
func NewInfoValidator() (*InfoValidator, error) {
	reflector := new(jsonschema.Reflector)
	reflector.ExpandedStruct = true
	generated := reflector.Reflect(&entities.ExtensionInfo{})

	raw, err := json.Marshal(generated)
	if err != nil {
		return nil, fmt.Errorf("marshal generated schema: %w", err)
	}

	compiler := schemavalidate.NewCompiler()
	if err := compiler.AddResource(infoSchemaURL, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := compiler.Compile(infoSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile info schema: %w", err)
	}

	return &InfoValidator{schema: schema}, nil
}

// Validate checks raw info JSON and decodes it on success.
func (v *InfoValidator) Validate(raw []byte) (entities.ExtensionInfo, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return entities.ExtensionInfo{}, fmt.Errorf("info is not valid JSON: %w", err)
	}
	if err := v.schema.Validate(doc); err != nil {
		return entities.ExtensionInfo{}, fmt.Errorf("info does not match schema: %w", err)
	}

	var info entities.ExtensionInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return entities.ExtensionInfo{}, fmt.Errorf("decode info: %w", err)
	}
	if info.ID == "" || info.Name == "" || info.Version == "" {
		return entities.ExtensionInfo{}, fmt.Errorf("info is missing id, name, or version")
	}
	return info, nil
}
