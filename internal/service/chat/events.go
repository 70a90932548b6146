package chat

import (
	chatmodel "github.com/zhouzirui/med-chat/backend/internal/model/chat"
)

// EventType names what changed in a session.
type EventType string

const (
	EventTranscript EventType = "transcript"
	EventBusy       EventType = "busy"
	EventNotice     EventType = "notice"
)

// Snapshot is a read-only view of a session at one point in time.
type Snapshot struct {
	SessionID    string              `json:"sessionId"`
	ProfileID    string              `json:"profileId"`
	Messages     []chatmodel.Message `json:"messages"`
	Busy         bool                `json:"busy"`
	LastResponse string              `json:"lastResponse,omitempty"`
}

// Event is delivered to subscribers after every transcript change, busy-flag
// change and raised notice. Listeners must treat the snapshot as read-only.
type Event struct {
	Type     EventType `json:"type"`
	Snapshot Snapshot  `json:"snapshot"`
	Notice   *Notice   `json:"notice,omitempty"`
}

// Listener receives session events. It runs synchronously on the goroutine
// that changed the session and must not call Submit or Reset itself.
type Listener func(Event)
