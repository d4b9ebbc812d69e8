// Package parser reads extension configuration documents. A document
// maps extension ids to their source and settings; YAML and JSON carry
// the same shape.
package parser

import "github.com/morphir-dev/exthost/extension/entities"

// ConfigParser parses raw configuration bytes into extension configs
// keyed by id.
type ConfigParser interface {
	// Parse unmarshals configuration bytes. Keys become the canonical
	// extension ids.
	Parse(data []byte) (map[string]entities.ExtensionConfig, error)
}
