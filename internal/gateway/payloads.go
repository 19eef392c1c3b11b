package gateway

import (
	"encoding/json"
	"errors"
	"strings"
)

var errMissingCommercial = errors.New("commercialId is required")

// Envelope is the wire frame for every inbound and outbound event.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type startStreamingPayload struct {
	CommercialID   string         `json:"commercialId"`
	CommercialInfo json.RawMessage `json:"commercialInfo,omitempty"`
	BuildingID     string         `json:"buildingId,omitempty"`
	BuildingName   string         `json:"buildingName,omitempty"`
}

func (p startStreamingPayload) validate() error {
	if strings.TrimSpace(p.CommercialID) == "" {
		return errMissingCommercial
	}
	return nil
}

type commercialPayload struct {
	CommercialID string `json:"commercialId"`
}

func (p commercialPayload) validate() error {
	if strings.TrimSpace(p.CommercialID) == "" {
		return errMissingCommercial
	}
	return nil
}

type roomPayload struct {
	Room string `json:"room"`
}

func (p roomPayload) validate() error {
	switch p.Room {
	case RoomGPS, RoomAudio:
		return nil
	}
	return errors.New("unknown room")
}

type managerStatusPayload struct {
	ManagerID string `json:"managerId"`
}

func (p managerStatusPayload) validate() error {
	if strings.TrimSpace(p.ManagerID) == "" {
		return errors.New("managerId is required")
	}
	return nil
}

type transcriptionStartPayload struct {
	CommercialID string `json:"commercialId"`
	BuildingID   string `json:"buildingId,omitempty"`
	BuildingName string `json:"buildingName,omitempty"`
	Language     string `json:"language,omitempty"`
	SampleRate   int    `json:"sampleRate,omitempty"`
}

func (p transcriptionStartPayload) validate() error {
	if strings.TrimSpace(p.CommercialID) == "" {
		return errMissingCommercial
	}
	return nil
}

type audioChunkPayload struct {
	CommercialID string `json:"commercialId"`
	DoorID       string `json:"doorId,omitempty"`
	DoorLabel    string `json:"doorLabel,omitempty"`
	// Chunk is base64-encoded PCM audio.
	Chunk string `json:"chunk"`
}

func (p audioChunkPayload) validate() error {
	if strings.TrimSpace(p.CommercialID) == "" {
		return errMissingCommercial
	}
	if p.Chunk == "" {
		return errors.New("chunk is required")
	}
	return nil
}

type historyRequestPayload struct {
	CommercialID string `json:"commercialId"`
	Limit        int    `json:"limit,omitempty"`
}

func (p historyRequestPayload) validate() error {
	if strings.TrimSpace(p.CommercialID) == "" {
		return errMissingCommercial
	}
	return nil
}

// signalPayload carries listen-only WebRTC signaling frames addressed to a
// specific socket. The gateway forwards them without inspecting the SDP or
// candidate contents.
type signalPayload struct {
	ToSocketID string          `json:"to_socket_id"`
	SDP        string          `json:"sdp,omitempty"`
	Type       string          `json:"type,omitempty"`
	Candidate  json.RawMessage `json:"candidate,omitempty"`
}

func (p signalPayload) validate() error {
	if strings.TrimSpace(p.ToSocketID) == "" {
		return errors.New("to_socket_id is required")
	}
	return nil
}

type commercialsStatusPayload struct {
	CommercialIDs []string `json:"commercialIds"`
}

func (p commercialsStatusPayload) validate() error {
	if len(p.CommercialIDs) == 0 {
		return errors.New("commercialIds is required")
	}
	return nil
}
