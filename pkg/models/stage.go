package models

// StageID identifies one phase of a swarm run.
type StageID string

const (
	// StageDiscovery finds new work items.
	StageDiscovery StageID = "discovery"
	// StageComplianceCheck screens discovered items against policy.
	StageComplianceCheck StageID = "compliance-check"
	// StageContentGeneration drafts outreach content for screened items.
	StageContentGeneration StageID = "content-generation"
	// StageConversion promotes nurtured items to opportunities.
	StageConversion StageID = "conversion"
)

// DefaultStages returns the fixed stage order of a run.
// A fresh slice is returned on every call.
func DefaultStages() []StageID {
	return []StageID{
		StageDiscovery,
		StageComplianceCheck,
		StageContentGeneration,
		StageConversion,
	}
}

// Valid returns true if the stage is a known value.
func (s StageID) Valid() bool {
	switch s {
	case StageDiscovery, StageComplianceCheck, StageContentGeneration, StageConversion:
		return true
	default:
		return false
	}
}

// Agent returns the name of the agent persona that owns the stage.
// These names match the agent column of backend log entries.
func (s StageID) Agent() string {
	switch s {
	case StageDiscovery:
		return "HUNTER"
	case StageComplianceCheck:
		return "GUARDIAN"
	case StageContentGeneration:
		return "PROFESSOR"
	case StageConversion:
		return "CLOSER"
	default:
		return "SYSTEM"
	}
}
