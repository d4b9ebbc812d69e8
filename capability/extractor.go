package capability

import (
	"strconv"
	"sync"

	"github.com/morphir-dev/exthost/extension/entities"
	"github.com/morphir-dev/exthost/extension/ports"
)

// Extractor derives the escape hatches an extension is asking for from
// its configuration.
type Extractor interface {
	// Extract returns the requested grant for the given configuration.
	Extract(config entities.ExtensionConfig) ports.Grant
}

// ConfigExtractor reads the conventional allow_external_reads and
// allow_external_writes keys from the extension's opaque config section.
// Both booleans and their string forms are accepted.
type ConfigExtractor struct{}

// NewConfigExtractor creates the default extractor.
func NewConfigExtractor() *ConfigExtractor {
	return &ConfigExtractor{}
}

// Extract derives the requested grant.
func (e *ConfigExtractor) Extract(config entities.ExtensionConfig) ports.Grant {
	return ports.Grant{
		ExtensionID:    config.ID,
		ExternalReads:  truthy(config.Config["allow_external_reads"]),
		ExternalWrites: truthy(config.Config["allow_external_writes"]),
	}
}

func truthy(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		b, err := strconv.ParseBool(val)
		return err == nil && b
	default:
		return false
	}
}

// ExtractorRegistry maps extension ids to custom extractors, falling
// back to the config extractor for unregistered ids.
type ExtractorRegistry struct {
	extractors map[string]Extractor
	fallback   Extractor
	mu         sync.RWMutex
}

// NewExtractorRegistry creates a registry with the default fallback.
func NewExtractorRegistry() *ExtractorRegistry {
	return &ExtractorRegistry{
		extractors: make(map[string]Extractor),
		fallback:   NewConfigExtractor(),
	}
}

// Register adds an extractor for a specific extension id.
func (r *ExtractorRegistry) Register(extensionID string, extractor Extractor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.extractors[extensionID] = extractor
}

// For returns the extractor responsible for an extension id.
func (r *ExtractorRegistry) For(extensionID string) Extractor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.extractors[extensionID]; ok {
		return e
	}
	return r.fallback
}
