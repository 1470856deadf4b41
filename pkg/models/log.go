package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// LogType is the severity tag carried by a log entry.
// Unknown values are preserved as-is.
type LogType string

const (
	LogTypeInfo    LogType = "info"
	LogTypeSuccess LogType = "success"
	LogTypeWarning LogType = "warning"
	LogTypeError   LogType = "error"
)

// LogEntry is one immutable line of the swarm activity log.
type LogEntry struct {
	// Time is the server-formatted wall clock time (HH:MM:SS).
	Time string `json:"time"`
	// Agent is the agent persona that produced the entry.
	Agent string `json:"agent"`
	// Type is the severity tag.
	Type LogType `json:"type"`
	// Message is the human-readable text.
	Message string `json:"message"`
}

// Status is the key/value metrics snapshot reported by the backend.
type Status map[string]any

// Clone returns a shallow copy of the snapshot. A nil status clones to nil.
func (s Status) Clone() Status {
	if s == nil {
		return nil
	}
	out := make(Status, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// FeedKind is the discriminator of a streaming frame.
type FeedKind string

const (
	// FeedInit replaces the whole log.
	FeedInit FeedKind = "init"
	// FeedNewLog prepends a single entry.
	FeedNewLog FeedKind = "new_log"
)

var (
	// ErrMalformedFrame is returned for frames that are not valid JSON or miss their payload.
	ErrMalformedFrame = errors.New("malformed feed frame")
	// ErrUnknownFrame is returned for well-formed frames with an unrecognised type.
	ErrUnknownFrame = errors.New("unknown feed frame")
)

// FeedMessage is a decoded streaming frame.
// Logs is set for FeedInit, Log for FeedNewLog.
type FeedMessage struct {
	Kind FeedKind
	Logs []LogEntry
	Log  LogEntry
}

type rawFeedMessage struct {
	Type string          `json:"type"`
	Logs json.RawMessage `json:"logs"`
	Log  json.RawMessage `json:"log"`
}

// DecodeFeedMessage parses a UTF-8 JSON frame from the log stream.
func DecodeFeedMessage(data []byte) (FeedMessage, error) {
	var raw rawFeedMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return FeedMessage{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	switch FeedKind(raw.Type) {
	case FeedInit:
		if len(raw.Logs) == 0 || string(raw.Logs) == "null" {
			return FeedMessage{}, fmt.Errorf("%w: init without logs", ErrMalformedFrame)
		}
		logs := []LogEntry{}
		if err := json.Unmarshal(raw.Logs, &logs); err != nil {
			return FeedMessage{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		if logs == nil {
			logs = []LogEntry{}
		}
		return FeedMessage{Kind: FeedInit, Logs: logs}, nil
	case FeedNewLog:
		if len(raw.Log) == 0 || string(raw.Log) == "null" {
			return FeedMessage{}, fmt.Errorf("%w: new_log without log", ErrMalformedFrame)
		}
		var entry LogEntry
		if err := json.Unmarshal(raw.Log, &entry); err != nil {
			return FeedMessage{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		return FeedMessage{Kind: FeedNewLog, Log: entry}, nil
	default:
		return FeedMessage{}, fmt.Errorf("%w: %q", ErrUnknownFrame, raw.Type)
	}
}

// EncodeFeedInit builds an init frame.
func EncodeFeedInit(logs []LogEntry) ([]byte, error) {
	if logs == nil {
		logs = []LogEntry{}
	}
	return json.Marshal(struct {
		Type FeedKind   `json:"type"`
		Logs []LogEntry `json:"logs"`
	}{FeedInit, logs})
}

// EncodeFeedNewLog builds a new_log frame.
func EncodeFeedNewLog(entry LogEntry) ([]byte, error) {
	return json.Marshal(struct {
		Type FeedKind `json:"type"`
		Log  LogEntry `json:"log"`
	}{FeedNewLog, entry})
}
