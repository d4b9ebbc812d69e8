// Package gatekeeper decides whether an extension gets sandbox escape
// hatches: it loads stored grants, diffs against what is requested,
// prompts for anything missing, and persists "always" decisions.
package gatekeeper

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/morphir-dev/exthost/capability"
	"github.com/morphir-dev/exthost/capability/grantstore"
	"github.com/morphir-dev/exthost/extension/entities"
	"github.com/morphir-dev/exthost/extension/ports"
	"github.com/morphir-dev/exthost/sandbox"
)

// SecurityLevel controls the gatekeeper's prompting behavior.
type SecurityLevel string

const (
	SecurityStrict     SecurityLevel = "strict"
	SecurityStandard   SecurityLevel = "standard"
	SecurityPermissive SecurityLevel = "permissive"
)

// Gatekeeper authorizes sandbox escape hatches with a pluggable store
// and prompter.
type Gatekeeper struct {
	store         ports.GrantStore
	prompter      ports.Prompter
	securityLevel SecurityLevel
	logger        *slog.Logger
}

// Option configures a Gatekeeper.
type Option func(*Gatekeeper)

// WithStore sets the grant store.
func WithStore(s ports.GrantStore) Option {
	return func(g *Gatekeeper) { g.store = s }
}

// WithPrompter sets the prompter.
func WithPrompter(p ports.Prompter) Option {
	return func(g *Gatekeeper) { g.prompter = p }
}

// WithSecurityLevel sets the policy level.
func WithSecurityLevel(level SecurityLevel) Option {
	return func(g *Gatekeeper) { g.securityLevel = level }
}

// WithLogger sets the gatekeeper's logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gatekeeper) { g.logger = l }
}

// New creates a gatekeeper; by default it persists to the user's grant
// file and prompts on the terminal at the standard level.
func New(opts ...Option) *Gatekeeper {
	g := &Gatekeeper{
		securityLevel: SecurityStandard,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.store == nil {
		g.store = grantstore.NewFileStore()
	}
	if g.prompter == nil {
		g.prompter = NewTerminalPrompter()
	}
	return g
}

// Authorize decides the escape hatches for one extension. The returned
// grant never exceeds the request. trustAll approves everything without
// prompting.
func (g *Gatekeeper) Authorize(requested ports.Grant, trustAll bool) (ports.Grant, error) {
	granted := ports.Grant{ExtensionID: requested.ExtensionID}
	if !requested.ExternalReads && !requested.ExternalWrites {
		return granted, nil
	}

	if trustAll {
		g.logger.Warn("auto-granting external access (trust-all enabled)",
			slog.String("extension", requested.ExtensionID))
		return requested, nil
	}

	existing, err := g.store.Load()
	if err != nil {
		existing = map[string]ports.Grant{}
	}
	if stored, ok := existing[requested.ExtensionID]; ok {
		granted.ExternalReads = stored.ExternalReads && requested.ExternalReads
		granted.ExternalWrites = stored.ExternalWrites && requested.ExternalWrites
		if granted.ExternalReads == requested.ExternalReads &&
			granted.ExternalWrites == requested.ExternalWrites {
			return granted, nil
		}
	}

	if g.securityLevel == SecurityPermissive {
		g.logger.Warn("auto-granting external access (permissive mode)",
			slog.String("extension", requested.ExtensionID))
		return requested, nil
	}

	if !g.prompter.IsInteractive() {
		return granted, nonInteractiveError(requested)
	}

	shouldSave := false
	if requested.ExternalReads && !granted.ExternalReads {
		approved, always, err := g.evaluate(requested.ExtensionID, "read files outside the workspace", false)
		if err != nil {
			return granted, err
		}
		if !approved {
			return granted, fmt.Errorf("external read access denied for extension %q", requested.ExtensionID)
		}
		granted.ExternalReads = true
		shouldSave = shouldSave || always
	}
	if requested.ExternalWrites && !granted.ExternalWrites {
		approved, always, err := g.evaluate(requested.ExtensionID, "write files outside the workspace", true)
		if err != nil {
			return granted, err
		}
		if !approved {
			return granted, fmt.Errorf("external write access denied for extension %q", requested.ExtensionID)
		}
		granted.ExternalWrites = true
		shouldSave = shouldSave || always
	}

	if shouldSave {
		existing[granted.ExtensionID] = granted
		if err := g.store.Save(existing); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to save grants: %v\n", err)
		} else {
			fmt.Fprintf(os.Stderr, "Permissions saved to %s\n", g.store.ConfigPath())
		}
	}
	return granted, nil
}

// evaluate applies the security level, then prompts. Writes are the
// high-impact hatch, so the strict level refuses them without asking.
func (g *Gatekeeper) evaluate(extensionID, action string, isWrite bool) (bool, bool, error) {
	if isWrite && g.securityLevel == SecurityStrict {
		g.logger.Error("external write denied by security policy",
			slog.String("level", string(SecurityStrict)),
			slog.String("extension", extensionID))
		return false, false, fmt.Errorf("external write access denied by strict security policy: %s", extensionID)
	}

	report := capability.AnalyzeRisk(ports.Grant{
		ExtensionID:    extensionID,
		ExternalReads:  !isWrite,
		ExternalWrites: isWrite,
	})
	desc := fmt.Sprintf("Extension %q wants to %s.", extensionID, action)
	if len(report.Factors) > 0 {
		desc = fmt.Sprintf("%s\nRisk: %s", desc, report.Factors[0].Description)
	}
	return g.prompter.Confirm("Extension Requesting Permission", desc)
}

// SandboxFor builds a file sandbox honoring an authorized grant.
func SandboxFor(config *sandbox.VirtualPathConfig, grant ports.Grant) *sandbox.FileSandbox {
	return sandbox.WithExternalAccess(config, grant.ExternalReads, grant.ExternalWrites)
}

// ConfigAuthorizer returns the per-load authorization step the registry
// runs before constructing a container: it extracts the escape hatches
// an extension's configuration asks for, authorizes them, and builds the
// sandbox its host bridge will enforce. A denial blocks the load.
func (g *Gatekeeper) ConfigAuthorizer(extractors *capability.ExtractorRegistry, trustAll bool) func(entities.ExtensionConfig, *sandbox.VirtualPathConfig) (*sandbox.FileSandbox, error) {
	if extractors == nil {
		extractors = capability.NewExtractorRegistry()
	}
	return func(config entities.ExtensionConfig, paths *sandbox.VirtualPathConfig) (*sandbox.FileSandbox, error) {
		requested := extractors.For(config.ID).Extract(config)
		granted, err := g.Authorize(requested, trustAll)
		if err != nil {
			return nil, err
		}
		return SandboxFor(paths, granted), nil
	}
}

func nonInteractiveError(requested ports.Grant) error {
	return fmt.Errorf(`extension %q requires additional permissions (running in non-interactive mode)

Required permissions:
  - external reads: %v
  - external writes: %v

To grant these permissions:
  1. Run interactively and approve when prompted
  2. Use --trust-extensions (grants all permissions)
  3. Manually edit: ~/.morphir/grants.yaml`,
		requested.ExtensionID, requested.ExternalReads, requested.ExternalWrites)
}
