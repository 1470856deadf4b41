// Package state provides SQLite persistence for the simulation backend.
package state

import (
	"io"
	"time"

	"github.com/ShayCichocki/nexus/pkg/models"
)

// LogStore handles activity log persistence.
type LogStore interface {
	AppendLog(entry models.LogEntry) error
	RecentLogs(limit int) ([]models.LogEntry, error)
	CountLogs() (int64, error)
}

// RunStore handles run history persistence.
type RunStore interface {
	RecordRun(executionMS int64, logCount int) error
	Stats() (RunStats, error)
	PurgeOldRuns(olderThan time.Duration) (int64, error)
}

// Migrator handles database schema migrations.
// Separating this allows clients to depend only on migration functionality.
type Migrator interface {
	// Migrate applies all pending schema migrations.
	Migrate() error
}

// StateStore defines the interface for simulation backend persistence.
// The devserver depends on this rather than the concrete SQLite implementation.
type StateStore interface {
	io.Closer
	Migrator
	LogStore
	RunStore
	Reset() error
}

// Compile-time verification that DB implements all interfaces.
var (
	_ StateStore = (*DB)(nil)
	_ Migrator   = (*DB)(nil)
	_ LogStore   = (*DB)(nil)
	_ RunStore   = (*DB)(nil)
)
