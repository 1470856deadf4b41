// Package version exposes the embedded release version.
package version

import (
	_ "embed"
	"strings"
)

//go:embed VERSION
var versionContent string

// Get returns the current version, with whitespace trimmed
func Get() string {
	return strings.TrimSpace(versionContent)
}

// UserAgent is sent on every request to the swarm backend.
func UserAgent() string {
	return "nexus/" + Get()
}
