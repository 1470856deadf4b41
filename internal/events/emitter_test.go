package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/nexus/pkg/models"
)

func TestEmitter_DeliversInOrder(t *testing.T) {
	e := NewEmitter(4, nil)
	e.Emit(models.NewEvent(models.EventRunStarted))
	e.Emit(models.NewEvent(models.EventRunCompleted))

	first := <-e.Events()
	second := <-e.Events()
	assert.Equal(t, models.EventRunStarted, first.Type)
	assert.Equal(t, models.EventRunCompleted, second.Type)
}

func TestEmitter_DropsWhenFull(t *testing.T) {
	e := NewEmitter(2, nil)
	for i := 0; i < 5; i++ {
		e.Emit(models.NewEvent(models.EventLogsUpdated))
	}
	assert.Equal(t, uint64(3), e.DroppedCount())
	assert.Len(t, e.Events(), 2)
}

func TestEmitter_CloseIsIdempotent(t *testing.T) {
	e := NewEmitter(1, nil)
	e.Close()
	e.Close()
	e.Emit(models.NewEvent(models.EventLogsUpdated))

	_, ok := <-e.Events()
	require.False(t, ok, "expected closed channel")
}

func TestEmitter_NilIsNoop(t *testing.T) {
	var e *Emitter
	assert.NotPanics(t, func() { e.Emit(models.NewEvent(models.EventRunStarted)) })
}
