package models

import "time"

// EventType names a coordinator event delivered to presentation.
type EventType string

const (
	EventRunStarted       EventType = "run_started"
	EventStageActivated   EventType = "stage_activated"
	EventStageCompleted   EventType = "stage_completed"
	EventRunCompleted     EventType = "run_completed"
	EventRunFailed        EventType = "run_failed"
	EventRunRejected      EventType = "run_rejected"
	EventLogsUpdated      EventType = "logs_updated"
	EventStatusUpdated    EventType = "status_updated"
	EventFeedState        EventType = "feed_state"
	EventAutopilotChanged EventType = "autopilot_changed"
)

// Event is a notification that some piece of coordinator state changed.
// Readers should re-read state rather than reconstruct it from events.
type Event struct {
	Type      EventType `json:"type"`
	RunID     string    `json:"run_id,omitempty"`
	Stage     StageID   `json:"stage,omitempty"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEvent stamps an event with the current time.
func NewEvent(t EventType) Event {
	return Event{Type: t, Timestamp: time.Now()}
}
