// Package logstore owns the shared activity log and status snapshot.
//
// Every writer (the live feed, the stage sequencer, the initial status
// refresh) goes through the operations here so the entry cap is enforced
// in exactly one place. Readers always receive copies.
package logstore

import (
	"sync"

	"github.com/ShayCichocki/nexus/pkg/models"
)

// MaxEntries is the number of log entries retained, newest first.
const MaxEntries = 100

// Notifier is told about every mutation. It is called after the lock is released.
type Notifier interface {
	Emit(models.Event)
}

// Store is the single owned state container for the log and status snapshot.
type Store struct {
	mu      sync.RWMutex
	logs    []models.LogEntry
	status  models.Status
	version uint64

	notifier Notifier
}

// New creates an empty Store. notifier may be nil.
func New(notifier Notifier) *Store {
	return &Store{
		logs:     []models.LogEntry{},
		status:   models.Status{},
		notifier: notifier,
	}
}

// Prepend inserts entry at the head of the log and drops anything past MaxEntries.
func (s *Store) Prepend(entry models.LogEntry) {
	s.mu.Lock()
	next := make([]models.LogEntry, 0, min(len(s.logs)+1, MaxEntries))
	next = append(next, entry)
	next = append(next, s.logs[:min(len(s.logs), MaxEntries-1)]...)
	s.logs = next
	s.version++
	s.mu.Unlock()

	s.notify(models.EventLogsUpdated)
}

// ReplaceLogs swaps the whole log for entries (newest first), keeping at most MaxEntries.
func (s *Store) ReplaceLogs(entries []models.LogEntry) {
	s.mu.Lock()
	s.logs = capped(entries)
	s.version++
	s.mu.Unlock()

	s.notify(models.EventLogsUpdated)
}

// SetStatus replaces the status snapshot.
func (s *Store) SetStatus(status models.Status) {
	s.mu.Lock()
	s.status = cloneStatus(status)
	s.version++
	s.mu.Unlock()

	s.notify(models.EventStatusUpdated)
}

// ReplaceAll swaps log and status together. No reader can observe one without the other.
func (s *Store) ReplaceAll(entries []models.LogEntry, status models.Status) {
	s.mu.Lock()
	s.logs = capped(entries)
	s.status = cloneStatus(status)
	s.version++
	s.mu.Unlock()

	s.notify(models.EventLogsUpdated)
	s.notify(models.EventStatusUpdated)
}

// Logs returns a copy of the log, newest first.
func (s *Store) Logs() []models.LogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.LogEntry{}, s.logs...)
}

// Status returns a copy of the status snapshot.
func (s *Store) Status() models.Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status.Clone()
}

// Snapshot returns log, status and version read under a single lock.
func (s *Store) Snapshot() ([]models.LogEntry, models.Status, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.LogEntry{}, s.logs...), s.status.Clone(), s.version
}

// Len returns the number of retained entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.logs)
}

// Version increases on every mutation.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

func (s *Store) notify(t models.EventType) {
	if s.notifier != nil {
		s.notifier.Emit(models.NewEvent(t))
	}
}

func capped(entries []models.LogEntry) []models.LogEntry {
	n := min(len(entries), MaxEntries)
	out := make([]models.LogEntry, n)
	copy(out, entries[:n])
	return out
}

func cloneStatus(status models.Status) models.Status {
	if status == nil {
		return models.Status{}
	}
	return status.Clone()
}
