package ports

// Grant records the sandbox escape hatches a user has approved for one
// extension. The booleans correspond to FileSandbox's external-access
// flags and are only honored for trusted, non-sandboxed extensions.
type Grant struct {
	ExtensionID    string `yaml:"extension_id" json:"extension_id"`
	ExternalReads  bool   `yaml:"external_reads" json:"external_reads"`
	ExternalWrites bool   `yaml:"external_writes" json:"external_writes"`
}

// GrantStore persists escape-hatch grants across sessions.
type GrantStore interface {
	Load() (map[string]Grant, error)
	Save(grants map[string]Grant) error
	ConfigPath() string
}

// Prompter asks the user whether to approve a grant request.
type Prompter interface {
	// IsInteractive reports whether prompting is possible at all.
	IsInteractive() bool

	// Confirm asks for a yes/no decision and whether to remember it.
	Confirm(title, description string) (approved, always bool, err error)
}
