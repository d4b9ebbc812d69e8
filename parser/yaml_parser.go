package parser

import (
	"encoding/json"
	"fmt"

	"github.com/goccy/go-yaml"

	"github.com/morphir-dev/exthost/extension/entities"
)

// YAMLConfigParser implements ConfigParser for YAML documents.
type YAMLConfigParser struct{}

// NewYAMLConfigParser creates a new YAMLConfigParser.
func NewYAMLConfigParser() ConfigParser {
	return &YAMLConfigParser{}
}

// Parse unmarshals a YAML configuration document. The YAML is converted
// to JSON first so both formats share one decoding path, including the
// enabled-by-default rule.
func (p *YAMLConfigParser) Parse(data []byte) (map[string]entities.ExtensionConfig, error) {
	jsonBytes, err := yaml.YAMLToJSON(data)
	if err != nil {
		return nil, fmt.Errorf("parse extensions config: %w", err)
	}

	var doc configDocument
	if err := json.Unmarshal(jsonBytes, &doc); err != nil {
		return nil, fmt.Errorf("parse extensions config: %w", err)
	}
	return canonicalize(doc.Extensions)
}
