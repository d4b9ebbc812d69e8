package parser

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/morphir-dev/exthost/extension/entities"
)

// ForPath selects a parser from a file extension.
func ForPath(path string) (ConfigParser, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return NewYAMLConfigParser(), nil
	case ".json":
		return NewJSONConfigParser(), nil
	default:
		return nil, fmt.Errorf("unsupported config format: %s", path)
	}
}

// ParseFile reads and parses a configuration file, choosing the format
// from its extension.
func ParseFile(path string) (map[string]entities.ExtensionConfig, error) {
	p, err := ForPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read extensions config: %w", err)
	}
	return p.Parse(data)
}
