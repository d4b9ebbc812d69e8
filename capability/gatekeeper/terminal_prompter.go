package gatekeeper

import (
	"os"

	"github.com/charmbracelet/huh"
)

// TerminalPrompter asks for grant decisions on an interactive terminal.
type TerminalPrompter struct{}

// NewTerminalPrompter creates a new TerminalPrompter.
func NewTerminalPrompter() *TerminalPrompter {
	return &TerminalPrompter{}
}

// IsInteractive checks whether stdin is a terminal.
func (p *TerminalPrompter) IsInteractive() bool {
	fileInfo, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (fileInfo.Mode() & os.ModeCharDevice) != 0
}

// Confirm asks the user to approve a permission, offering a remembered
// "always" variant.
func (p *TerminalPrompter) Confirm(title, description string) (approved, always bool, err error) {
	const (
		optionYes    = "Yes, grant for this session"
		optionAlways = "Always grant (save to config)"
		optionNo     = "No, deny"
	)

	var selection string
	err = huh.NewSelect[string]().
		Title(title).
		Description(description).
		Options(
			huh.NewOption(optionYes, optionYes),
			huh.NewOption(optionAlways, optionAlways),
			huh.NewOption(optionNo, optionNo),
		).
		Value(&selection).
		Run()
	if err != nil {
		return false, false, err
	}

	switch selection {
	case optionYes:
		return true, false, nil
	case optionAlways:
		return true, true, nil
	default:
		return false, false, nil
	}
}
