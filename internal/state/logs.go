package state

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/ShayCichocki/nexus/pkg/models"
)

// MaxStoredLogs is how many log rows are retained.
const MaxStoredLogs = 200

// RunStats summarises the run history.
type RunStats struct {
	TotalRuns       int64
	LastExecutionMS int64
	LastRunAt       *time.Time
}

// AppendLog stores entry and trims the table to MaxStoredLogs rows.
func (db *DB) AppendLog(entry models.LogEntry) error {
	return db.Transaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO logs (time, agent, type, message, created_at)
			VALUES (?, ?, ?, ?, ?)
		`, entry.Time, entry.Agent, string(entry.Type), entry.Message, formatTime(time.Now()))
		if err != nil {
			return fmt.Errorf("insert log: %w", err)
		}

		_, err = tx.Exec(`
			DELETE FROM logs WHERE id NOT IN (
				SELECT id FROM logs ORDER BY id DESC LIMIT ?
			)
		`, MaxStoredLogs)
		if err != nil {
			return fmt.Errorf("trim logs: %w", err)
		}
		return nil
	})
}

// RecentLogs returns up to limit entries, newest first.
// A non-positive limit returns every stored entry.
func (db *DB) RecentLogs(limit int) ([]models.LogEntry, error) {
	if limit <= 0 {
		limit = MaxStoredLogs
	}

	rows, err := db.Query(`
		SELECT time, agent, type, message FROM logs
		ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query logs: %w", err)
	}
	defer rows.Close()

	logs := []models.LogEntry{}
	for rows.Next() {
		var e models.LogEntry
		var typ string
		if err := rows.Scan(&e.Time, &e.Agent, &typ, &e.Message); err != nil {
			return nil, fmt.Errorf("scan log: %w", err)
		}
		e.Type = models.LogType(typ)
		logs = append(logs, e)
	}
	return logs, rows.Err()
}

// CountLogs returns the number of stored log entries.
func (db *DB) CountLogs() (int64, error) {
	var n int64
	if err := db.QueryRow("SELECT COUNT(*) FROM logs").Scan(&n); err != nil {
		return 0, fmt.Errorf("count logs: %w", err)
	}
	return n, nil
}

// RecordRun stores one finished run.
func (db *DB) RecordRun(executionMS int64, logCount int) error {
	_, err := db.Exec(`
		INSERT INTO runs (execution_ms, log_count, finished_at) VALUES (?, ?, ?)
	`, executionMS, logCount, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// Stats returns the run history summary.
func (db *DB) Stats() (RunStats, error) {
	var stats RunStats
	if err := db.QueryRow("SELECT COUNT(*) FROM runs").Scan(&stats.TotalRuns); err != nil {
		return stats, fmt.Errorf("count runs: %w", err)
	}
	if stats.TotalRuns == 0 {
		return stats, nil
	}

	var finished string
	err := db.QueryRow(`
		SELECT execution_ms, finished_at FROM runs ORDER BY id DESC LIMIT 1
	`).Scan(&stats.LastExecutionMS, &finished)
	if err != nil {
		return stats, fmt.Errorf("last run: %w", err)
	}
	if t, err := parseTime(finished); err == nil {
		stats.LastRunAt = &t
	}
	return stats, nil
}

// Reset deletes every log entry and run record.
func (db *DB) Reset() error {
	return db.Transaction(func(tx *sql.Tx) error {
		if _, err := tx.Exec("DELETE FROM logs"); err != nil {
			return fmt.Errorf("clear logs: %w", err)
		}
		if _, err := tx.Exec("DELETE FROM runs"); err != nil {
			return fmt.Errorf("clear runs: %w", err)
		}
		return nil
	})
}
