// Package hostfunc implements the host function bridge: the state shared
// with one extension container and the callable functions exposed into
// the sandbox.
package hostfunc

import (
	"encoding/json"
	"sync"
)

// WorkspaceInfo is the payload returned to guests asking about their
// workspace.
type WorkspaceInfo struct {
	Root      string `json:"root"`
	OutputDir string `json:"output_dir"`
}

// HostState is the state shared by reference across all host functions of
// one container. It lives for the session that created it and is never
// process-global. The IR cache has its own lock, independent of the
// container's call lock: host functions run on the same stack as an
// in-progress guest call, so this lock is only ever held for the copy
// in or out, never across a call back into guest code.
type HostState struct {
	WorkspaceRoot string
	OutputDir     string

	mu      sync.RWMutex
	irCache map[string]json.RawMessage
}

// NewHostState creates state scoped to a workspace.
func NewHostState(workspaceRoot, outputDir string) *HostState {
	return &HostState{
		WorkspaceRoot: workspaceRoot,
		OutputDir:     outputDir,
		irCache:       make(map[string]json.RawMessage),
	}
}

// WorkspaceInfo snapshots the workspace paths for the guest.
func (s *HostState) WorkspaceInfo() WorkspaceInfo {
	return WorkspaceInfo{Root: s.WorkspaceRoot, OutputDir: s.OutputDir}
}

// CacheIR stores an IR document under a key. The payload is opaque JSON.
func (s *HostState) CacheIR(key string, ir json.RawMessage) {
	doc := make(json.RawMessage, len(ir))
	copy(doc, ir)
	s.mu.Lock()
	s.irCache[key] = doc
	s.mu.Unlock()
}

// CachedIR returns the IR document stored under key, if any.
func (s *HostState) CachedIR(key string) (json.RawMessage, bool) {
	s.mu.RLock()
	doc, ok := s.irCache[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	out := make(json.RawMessage, len(doc))
	copy(out, doc)
	return out, true
}

// ClearIRCache drops all cached IR documents.
func (s *HostState) ClearIRCache() {
	s.mu.Lock()
	s.irCache = make(map[string]json.RawMessage)
	s.mu.Unlock()
}

// IRCacheLen reports the number of cached documents.
func (s *HostState) IRCacheLen() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.irCache)
}
