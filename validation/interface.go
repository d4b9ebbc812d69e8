package validation

import "github.com/morphir-dev/exthost/extension/entities"

// Validator checks a guest's self-reported metadata document.
type Validator interface {
	// Validate decodes and validates raw info bytes.
	Validate(raw []byte) (entities.ExtensionInfo, error)
}
