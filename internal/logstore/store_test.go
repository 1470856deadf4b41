package logstore

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/nexus/pkg/models"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []models.EventType
}

func (r *recordingNotifier) Emit(e models.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e.Type)
}

func entry(i int) models.LogEntry {
	return models.LogEntry{Time: "00:00:00", Agent: "HUNTER", Type: models.LogTypeInfo, Message: fmt.Sprintf("m%d", i)}
}

func TestStore_PrependNewestFirst(t *testing.T) {
	s := New(nil)
	for i := 1; i <= 5; i++ {
		s.Prepend(entry(i))
	}

	logs := s.Logs()
	require.Len(t, logs, 5)
	for i, e := range logs {
		assert.Equal(t, fmt.Sprintf("m%d", 5-i), e.Message)
	}
}

func TestStore_PrependCapsAtMax(t *testing.T) {
	s := New(nil)
	total := MaxEntries*2 + 17
	for i := 1; i <= total; i++ {
		s.Prepend(entry(i))
		require.LessOrEqual(t, s.Len(), MaxEntries)
	}

	logs := s.Logs()
	require.Len(t, logs, MaxEntries)
	assert.Equal(t, fmt.Sprintf("m%d", total), logs[0].Message)
	assert.Equal(t, fmt.Sprintf("m%d", total-MaxEntries+1), logs[MaxEntries-1].Message)
}

func TestStore_ReplaceLogsCapsAndCopies(t *testing.T) {
	s := New(nil)
	in := make([]models.LogEntry, 150)
	for i := range in {
		in[i] = entry(i)
	}

	s.ReplaceLogs(in)
	in[0].Message = "mutated"

	logs := s.Logs()
	require.Len(t, logs, MaxEntries)
	assert.Equal(t, "m0", logs[0].Message)
	assert.Equal(t, "m99", logs[MaxEntries-1].Message)
}

func TestStore_ReplaceAllIsSingleVersionBump(t *testing.T) {
	n := &recordingNotifier{}
	s := New(n)
	before := s.Version()

	s.ReplaceAll([]models.LogEntry{entry(1)}, models.Status{"runs": 1})

	logs, status, version := s.Snapshot()
	assert.Equal(t, before+1, version)
	assert.Len(t, logs, 1)
	assert.Equal(t, 1, status["runs"])
	assert.Equal(t, []models.EventType{models.EventLogsUpdated, models.EventStatusUpdated}, n.events)
}

func TestStore_ReadsAreCopies(t *testing.T) {
	s := New(nil)
	s.ReplaceAll([]models.LogEntry{entry(1)}, models.Status{"mode": "Simulation"})

	logs := s.Logs()
	logs[0].Message = "changed"
	status := s.Status()
	status["mode"] = "changed"

	assert.Equal(t, "m1", s.Logs()[0].Message)
	assert.Equal(t, "Simulation", s.Status()["mode"])
}

func TestStore_NilInputs(t *testing.T) {
	s := New(nil)
	s.ReplaceAll(nil, nil)
	assert.NotNil(t, s.Logs())
	assert.NotNil(t, s.Status())
	assert.Equal(t, 0, s.Len())

	logs, status, _ := s.Snapshot()
	assert.NotNil(t, logs)
	assert.NotNil(t, status)
	assert.NotNil(t, New(nil).Logs())
}

func TestStore_ConcurrentWriters(t *testing.T) {
	s := New(nil)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				if i%10 == 0 {
					s.ReplaceLogs([]models.LogEntry{entry(i)})
				} else {
					s.Prepend(entry(w*100 + i))
				}
				_ = s.Logs()
			}
		}(w)
	}
	wg.Wait()
	assert.LessOrEqual(t, s.Len(), MaxEntries)
}
