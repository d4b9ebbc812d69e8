package sandbox

import (
	"errors"
	"fmt"
)

// Sentinel errors for sandbox decisions. AccessDenied is a security
// decision; InvalidPath is a configuration gap. Callers must be able to
// tell them apart.
var (
	ErrAccessDenied = errors.New("access denied")
	ErrInvalidPath  = errors.New("invalid path")
)

// AccessDeniedError reports a path rejected by policy.
type AccessDeniedError struct {
	Path string
}

func (e *AccessDeniedError) Error() string {
	return fmt.Sprintf("access denied: %s", e.Path)
}

func (e *AccessDeniedError) Is(target error) bool { return target == ErrAccessDenied }

// InvalidPathError reports a path that passed policy but matches no
// mapping. Reachable only when an external-access flag is set and the
// path is unmapped.
type InvalidPathError struct {
	Path string
}

func (e *InvalidPathError) Error() string {
	return fmt.Sprintf("invalid path: %s", e.Path)
}

func (e *InvalidPathError) Is(target error) bool { return target == ErrInvalidPath }

// FileSandbox combines a virtual path configuration with read/write
// policy. The external-access flags are an explicit escape hatch used only
// for trusted, non-sandboxed extensions.
type FileSandbox struct {
	config              *VirtualPathConfig
	allowExternalReads  bool
	allowExternalWrites bool
}

// New creates a strict sandbox: only mapped paths are accessible.
func New(config *VirtualPathConfig) *FileSandbox {
	return &FileSandbox{config: config}
}

// Permissive creates a sandbox that also allows access outside the
// mappings, for trusted extension hosts.
func Permissive(config *VirtualPathConfig) *FileSandbox {
	return &FileSandbox{
		config:              config,
		allowExternalReads:  true,
		allowExternalWrites: true,
	}
}

// WithExternalAccess creates a sandbox with individually chosen escape
// hatches, as granted by the capability gatekeeper.
func WithExternalAccess(config *VirtualPathConfig, reads, writes bool) *FileSandbox {
	return &FileSandbox{
		config:              config,
		allowExternalReads:  reads,
		allowExternalWrites: writes,
	}
}

// CanRead reports whether reading the virtual path is permitted.
func (s *FileSandbox) CanRead(path string) bool {
	return s.config.IsValid(path) || s.allowExternalReads
}

// CanWrite reports whether writing the virtual path is permitted.
func (s *FileSandbox) CanWrite(path string) bool {
	return s.config.IsValid(path) || s.allowExternalWrites
}

// ResolveRead checks read policy and resolves the path.
func (s *FileSandbox) ResolveRead(virtualPath string) (string, error) {
	if !s.CanRead(virtualPath) {
		return "", &AccessDeniedError{Path: virtualPath}
	}
	real, ok := s.config.Resolve(virtualPath)
	if !ok {
		return "", &InvalidPathError{Path: virtualPath}
	}
	return real, nil
}

// ResolveWrite checks write policy and resolves the path.
func (s *FileSandbox) ResolveWrite(virtualPath string) (string, error) {
	if !s.CanWrite(virtualPath) {
		return "", &AccessDeniedError{Path: virtualPath}
	}
	real, ok := s.config.Resolve(virtualPath)
	if !ok {
		return "", &InvalidPathError{Path: virtualPath}
	}
	return real, nil
}

// Config returns the sandbox's virtual path configuration.
func (s *FileSandbox) Config() *VirtualPathConfig {
	return s.config
}
