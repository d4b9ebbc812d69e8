package capability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/morphir-dev/exthost/extension/ports"
)

func TestAnalyzeRisk(t *testing.T) {
	tests := []struct {
		name        string
		grant       ports.Grant
		wantLevel   RiskLevel
		wantFactors int
	}{
		{name: "no hatches", grant: ports.Grant{ExtensionID: "x"}, wantLevel: RiskNone},
		{
			name:        "reads only",
			grant:       ports.Grant{ExtensionID: "x", ExternalReads: true},
			wantLevel:   RiskMedium,
			wantFactors: 1,
		},
		{
			name:        "writes only",
			grant:       ports.Grant{ExtensionID: "x", ExternalWrites: true},
			wantLevel:   RiskHigh,
			wantFactors: 1,
		},
		{
			name:        "writes dominate reads",
			grant:       ports.Grant{ExtensionID: "x", ExternalReads: true, ExternalWrites: true},
			wantLevel:   RiskHigh,
			wantFactors: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := AnalyzeRisk(tt.grant)
			assert.Equal(t, tt.wantLevel, report.Level)
			require.Len(t, report.Factors, tt.wantFactors)
			for _, f := range report.Factors {
				assert.Contains(t, f.Description, `"x"`)
			}
		})
	}
}

func TestRiskLevelOrdering(t *testing.T) {
	assert.Less(t, RiskNone, RiskMedium)
	assert.Less(t, RiskMedium, RiskHigh)
}
