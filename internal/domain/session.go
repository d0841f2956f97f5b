package domain

import "time"

// SessionState is the lifecycle state of the recorder.
type SessionState int

const (
	StateIdle SessionState = iota
	StateRecording
	StateStopping
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// SessionRecord identifies the active recording session.
type SessionRecord struct {
	SessionID string
	StartedAt time.Time
	Status    SessionState
	// Local is set when the id was generated on-device because the remote store
	// could not be reached at start.
	Local bool
}

// SyncBatch is an ordered snapshot of buffered points removed for one transmission.
type SyncBatch []DataPoint

func (b SyncBatch) Len() int { return len(b) }

// SessionSummary is one row of the remote session history.
type SessionSummary struct {
	ID             string    `json:"id"`
	UserID         string    `json:"userId,omitempty"`
	StartTime      time.Time `json:"startTime"`
	EndTime        time.Time `json:"endTime,omitzero"`
	Status         string    `json:"status,omitempty"`
	DataPointCount int       `json:"dataPointCount,omitempty"`
}
