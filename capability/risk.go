// Package capability handles sandbox escape hatches: analyzing what an
// extension asks for beyond its virtual paths, prompting the user, and
// persisting approved grants.
package capability

import (
	"fmt"

	"github.com/morphir-dev/exthost/extension/ports"
)

// RiskLevel ranks the security impact of an escape-hatch grant.
type RiskLevel int

const (
	RiskNone RiskLevel = iota
	RiskMedium
	RiskHigh
)

// RiskFactor describes one risk element in a grant request.
type RiskFactor struct {
	Description string
	Level       RiskLevel
}

// RiskReport is the overall assessment for a grant request.
type RiskReport struct {
	Factors []RiskFactor
	Level   RiskLevel
}

// AnalyzeRisk evaluates a requested grant. External writes rank above
// external reads: a write escape can alter files anywhere the host
// process can.
func AnalyzeRisk(grant ports.Grant) RiskReport {
	report := RiskReport{Level: RiskNone}

	add := func(level RiskLevel, desc string) {
		report.Factors = append(report.Factors, RiskFactor{Level: level, Description: desc})
		if level > report.Level {
			report.Level = level
		}
	}

	if grant.ExternalWrites {
		add(RiskHigh, fmt.Sprintf("extension %q may write files outside the workspace sandbox", grant.ExtensionID))
	}
	if grant.ExternalReads {
		add(RiskMedium, fmt.Sprintf("extension %q may read files outside the workspace sandbox", grant.ExtensionID))
	}
	return report
}
