package models

// TranscriptEvent is the payload exported to the event bus for every
// transcript fragment the gateway accepts.
type TranscriptEvent struct {
	EventType    string `json:"eventType"`
	CommercialID string `json:"commercialId"`
	SessionID    string `json:"sessionId,omitempty"`
	Text         string `json:"text"`
	IsFinal      bool   `json:"isFinal"`
	DoorID       string `json:"doorId,omitempty"`
	DoorLabel    string `json:"doorLabel,omitempty"`
	Timestamp    int64  `json:"timestamp"`
}

// SessionCompletedEvent is exported when a transcription session is
// finalized and handed to persistence.
type SessionCompletedEvent struct {
	EventType string               `json:"eventType"`
	Session   TranscriptionSession `json:"session"`
	Timestamp int64                `json:"timestamp"`
}
