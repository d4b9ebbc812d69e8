// Package entities defines the domain types of the extension system:
// extension metadata, capability types, configuration, and the error
// taxonomy shared by the container, registry, and loader.
package entities

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtensionType identifies one capability of an extension.
type ExtensionType string

const (
	TypeFrontend  ExtensionType = "frontend"
	TypeBackend   ExtensionType = "backend"
	TypeTransform ExtensionType = "transform"
	TypeValidator ExtensionType = "validator"
)

// ParseExtensionType parses a kebab-case capability name.
func ParseExtensionType(s string) (ExtensionType, error) {
	switch ExtensionType(strings.ToLower(strings.TrimSpace(s))) {
	case TypeFrontend:
		return TypeFrontend, nil
	case TypeBackend:
		return TypeBackend, nil
	case TypeTransform:
		return TypeTransform, nil
	case TypeValidator:
		return TypeValidator, nil
	default:
		return "", fmt.Errorf("unknown extension type: %q", s)
	}
}

// UnmarshalJSON validates the capability name on decode.
func (t *ExtensionType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseExtensionType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ExtensionInfo is the self-reported metadata of a loaded extension.
// It is populated once from the guest's info export and immutable after.
type ExtensionInfo struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Version       string          `json:"version"`
	Description   string          `json:"description,omitempty"`
	Types         []ExtensionType `json:"types,omitempty"`
	Author        string          `json:"author,omitempty"`
	License       string          `json:"license,omitempty"`
	MinSDKVersion string          `json:"min_sdk_version,omitempty"`
}

// HasType reports whether the extension advertises the given capability.
func (i ExtensionInfo) HasType(t ExtensionType) bool {
	for _, have := range i.Types {
		if have == t {
			return true
		}
	}
	return false
}
