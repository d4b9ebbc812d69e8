// Package sandbox maps the virtual paths an extension sees onto real
// filesystem locations and enforces read/write policy on them.
package sandbox

import (
	"path/filepath"
	"sort"
	"strings"
)

type mapping struct {
	prefix   string
	realBase string
}

// VirtualPathConfig holds the ordered set of virtual-prefix to real-base
// mappings for one extension. Prefixes are stored without trailing
// separators. Resolution is deterministic: the longest matching prefix
// wins regardless of insertion order.
type VirtualPathConfig struct {
	mappings []mapping
}

// NewVirtualPathConfig creates an empty configuration.
func NewVirtualPathConfig() *VirtualPathConfig {
	return &VirtualPathConfig{}
}

// ForWorkspace builds the standard workspace mapping set:
// /workspace, /output, and /cache.
func ForWorkspace(workspaceRoot, outputDir, cacheDir string) *VirtualPathConfig {
	c := NewVirtualPathConfig()
	c.AddMapping("/workspace", workspaceRoot)
	c.AddMapping("/output", outputDir)
	if cacheDir != "" {
		c.AddMapping("/cache", cacheDir)
	}
	return c
}

// AddMapping registers a virtual prefix for a real base path, replacing
// any existing mapping for the same prefix.
func (c *VirtualPathConfig) AddMapping(virtualPrefix, realBase string) {
	prefix := strings.TrimRight(virtualPrefix, "/")
	if prefix == "" {
		prefix = "/"
	}
	for i := range c.mappings {
		if c.mappings[i].prefix == prefix {
			c.mappings[i].realBase = realBase
			return
		}
	}
	c.mappings = append(c.mappings, mapping{prefix: prefix, realBase: realBase})
	// Longest prefix first keeps resolution deterministic when prefixes nest.
	sort.SliceStable(c.mappings, func(i, j int) bool {
		return len(c.mappings[i].prefix) > len(c.mappings[j].prefix)
	})
}

// RemoveMapping drops the mapping for a virtual prefix, if present.
func (c *VirtualPathConfig) RemoveMapping(virtualPrefix string) {
	prefix := strings.TrimRight(virtualPrefix, "/")
	for i := range c.mappings {
		if c.mappings[i].prefix == prefix {
			c.mappings = append(c.mappings[:i], c.mappings[i+1:]...)
			return
		}
	}
}

// Resolve maps a virtual path to its real location. An exact prefix match
// returns the real base; otherwise the longest prefix followed by '/' in
// the query matches and the suffix is joined onto its base. The root
// mapping "/" catches any absolute path no longer prefix claims. No
// match returns ok=false.
func (c *VirtualPathConfig) Resolve(virtualPath string) (string, bool) {
	for _, m := range c.mappings {
		if virtualPath == m.prefix {
			return m.realBase, true
		}
		if m.prefix == "/" {
			if strings.HasPrefix(virtualPath, "/") {
				return filepath.Join(m.realBase, strings.TrimLeft(virtualPath, "/")), true
			}
			continue
		}
		if strings.HasPrefix(virtualPath, m.prefix) {
			suffix := virtualPath[len(m.prefix):]
			if strings.HasPrefix(suffix, "/") {
				return filepath.Join(m.realBase, strings.TrimLeft(suffix, "/")), true
			}
		}
	}
	return "", false
}

// Virtualize is the inverse of Resolve: it strips a matching real base and
// re-attaches its virtual prefix. When real bases nest, the longest match
// wins so the most specific mapping is used. An empty suffix yields the
// bare prefix.
func (c *VirtualPathConfig) Virtualize(realPath string) (string, bool) {
	best := -1
	bestRel := ""
	for i, m := range c.mappings {
		rel, err := filepath.Rel(m.realBase, realPath)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		if best == -1 || len(m.realBase) > len(c.mappings[best].realBase) {
			best = i
			bestRel = rel
		}
	}
	if best == -1 {
		return "", false
	}
	prefix := c.mappings[best].prefix
	if bestRel == "." {
		return prefix, true
	}
	if prefix == "/" {
		return "/" + filepath.ToSlash(bestRel), true
	}
	return prefix + "/" + filepath.ToSlash(bestRel), true
}

// IsValid reports whether the virtual path resolves through any mapping.
func (c *VirtualPathConfig) IsValid(virtualPath string) bool {
	_, ok := c.Resolve(virtualPath)
	return ok
}

// Prefixes returns the virtual prefixes in resolution order.
func (c *VirtualPathConfig) Prefixes() []string {
	out := make([]string, len(c.mappings))
	for i, m := range c.mappings {
		out[i] = m.prefix
	}
	return out
}

// Mapping returns the real base registered for a prefix.
func (c *VirtualPathConfig) Mapping(virtualPrefix string) (string, bool) {
	prefix := strings.TrimRight(virtualPrefix, "/")
	for _, m := range c.mappings {
		if m.prefix == prefix {
			return m.realBase, true
		}
	}
	return "", false
}
