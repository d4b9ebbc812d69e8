package entities

// Capabilities is the optional payload returned by an extension's
// capabilities export. It refines the info metadata with the languages and
// targets the extension handles and the resource budget a single call may
// consume.
type Capabilities struct {
	Types     []ExtensionType `json:"types,omitempty"`
	Languages []string        `json:"languages,omitempty"`
	Targets   []string        `json:"targets,omitempty"`
	// MaxTimeMS bounds the wall-clock duration of one call. Zero means the
	// host default applies.
	MaxTimeMS uint64 `json:"max_time_ms,omitempty"`
	// MaxFuel bounds the abstract instruction budget of one call. Zero
	// means unlimited.
	MaxFuel uint64 `json:"max_fuel,omitempty"`
}

// SupportsLanguage reports whether the extension advertises the given
// source language.
func (c Capabilities) SupportsLanguage(lang string) bool {
	for _, l := range c.Languages {
		if l == lang {
			return true
		}
	}
	return false
}

// SupportsTarget reports whether the extension advertises the given
// generation target.
func (c Capabilities) SupportsTarget(target string) bool {
	for _, t := range c.Targets {
		if t == target {
			return true
		}
	}
	return false
}
