// Package models defines the data structures shared between the gateway,
// the in-memory registries and the persistence layer. JSON tags follow the
// wire format the field clients already speak (snake_case).
package models

import (
	"encoding/json"
	"time"
)

// ActiveStream represents one commercial currently broadcasting audio.
// Exactly one entry exists per commercial; a second start replaces it.
type ActiveStream struct {
	CommercialID   string          `json:"commercial_id"`
	CommercialInfo json.RawMessage `json:"commercial_info"`
	SocketID       string          `json:"socket_id"`
}

// TranscriptionSession is one continuous transcription recording window for
// one commercial. EndTime stays zero while the session is active; persisted
// rows are snapshots or finalizations, never authoritative for live state.
type TranscriptionSession struct {
	ID              string    `json:"id"`
	CommercialID    string    `json:"commercial_id"`
	CommercialName  string    `json:"commercial_name"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	FullTranscript  string    `json:"full_transcript"`
	DurationSeconds int       `json:"duration_seconds"`
	BuildingID      string    `json:"building_id,omitempty"`
	BuildingName    string    `json:"building_name,omitempty"`
	VisitedDoors    []string  `json:"visited_doors"`
}

// Active reports whether the session has not been finalized yet.
func (s TranscriptionSession) Active() bool {
	return s.EndTime.IsZero()
}

// LocationUpdate is a GPS position report from a commercial's device.
type LocationUpdate struct {
	CommercialID string     `json:"commercialId"`
	Position     [2]float64 `json:"position"`
	Timestamp    string     `json:"timestamp"`
	Speed        *float64   `json:"speed,omitempty"`
	Heading      *float64   `json:"heading,omitempty"`
	Accuracy     *float64   `json:"accuracy,omitempty"`
}

// LocationError is a GPS acquisition failure report.
type LocationError struct {
	CommercialID string `json:"commercialId"`
	Error        string `json:"error"`
	Timestamp    string `json:"timestamp"`
}

// TranscriptionUpdate is an incremental transcript fragment. Non-final
// fragments are forwarded to observers only; final fragments are also merged
// into the session transcript.
type TranscriptionUpdate struct {
	CommercialID string `json:"commercial_id"`
	Transcript   string `json:"transcript"`
	IsFinal      bool   `json:"is_final"`
	Timestamp    string `json:"timestamp"`
	DoorID       string `json:"door_id,omitempty"`
	DoorLabel    string `json:"door_label,omitempty"`
}

// CommercialStatus summarizes a commercial's live state for supervisors.
type CommercialStatus struct {
	CommercialID   string `json:"commercial_id"`
	IsOnline       bool   `json:"isOnline"`
	IsTranscribing bool   `json:"isTranscribing"`
	LastSeen       int64  `json:"lastSeen,omitempty"`
	CurrentSession string `json:"currentSession,omitempty"`
}
