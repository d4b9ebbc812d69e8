package parser

import (
	"encoding/json"
	"fmt"

	"github.com/morphir-dev/exthost/extension/entities"
)

// configDocument is the on-disk shape: extension configs live under an
// "extensions" key so the document can grow other sections later.
type configDocument struct {
	Extensions map[string]entities.ExtensionConfig `json:"extensions"`
}

// JSONConfigParser implements ConfigParser for JSON documents.
type JSONConfigParser struct{}

// NewJSONConfigParser creates a new JSONConfigParser.
func NewJSONConfigParser() ConfigParser {
	return &JSONConfigParser{}
}

// Parse unmarshals a JSON configuration document.
func (p *JSONConfigParser) Parse(data []byte) (map[string]entities.ExtensionConfig, error) {
	var doc configDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse extensions config: %w", err)
	}
	return canonicalize(doc.Extensions)
}

// canonicalize stamps map keys as ids and validates each entry's source.
func canonicalize(configs map[string]entities.ExtensionConfig) (map[string]entities.ExtensionConfig, error) {
	out := make(map[string]entities.ExtensionConfig, len(configs))
	for id, config := range configs {
		config.ID = id
		if err := config.Source.Validate(); err != nil {
			return nil, fmt.Errorf("extension %q: %w", id, err)
		}
		out[id] = config
	}
	return out, nil
}
