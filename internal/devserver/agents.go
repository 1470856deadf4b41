package devserver

import (
	"fmt"

	"github.com/ShayCichocki/nexus/pkg/models"
)

var leads = []struct {
	company  string
	location string
	score    int
}{
	{"Vizag Steel Works", "Visakhapatnam", 78},
	{"Deccan Pharma", "Hyderabad", 91},
	{"Garden City Logistics", "Bengaluru", 64},
	{"Coromandel Fintech", "Chennai", 85},
}

// agentLine returns the simulated log line an agent writes during run n.
func agentLine(stage models.StageID, n int) (string, models.LogType) {
	lead := leads[(n-1+len(leads))%len(leads)]
	switch stage {
	case models.StageDiscovery:
		return fmt.Sprintf("Discovered %s (%s), ICP score %d", lead.company, lead.location, lead.score), models.LogTypeInfo
	case models.StageComplianceCheck:
		if lead.score < 70 {
			return fmt.Sprintf("%s flagged for manual review", lead.company), models.LogTypeWarning
		}
		return fmt.Sprintf("%s passed compliance checks", lead.company), models.LogTypeSuccess
	case models.StageContentGeneration:
		return fmt.Sprintf("Drafted outreach for %s", lead.company), models.LogTypeInfo
	case models.StageConversion:
		return fmt.Sprintf("%s moved to opportunity", lead.company), models.LogTypeSuccess
	default:
		return fmt.Sprintf("Unknown stage %q skipped", stage), models.LogTypeWarning
	}
}
