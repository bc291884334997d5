package domain

import "time"

type EventType string

const (
	EventPhotoStatus EventType = "photo_status"
	EventFinalized   EventType = "finalized"
)

// StatusEvent is published whenever a photo changes state or the diagnosis
// is finalized.
type StatusEvent struct {
	Type        EventType   `json:"type"`
	DiagnosisID int64       `json:"diagnosisId"`
	PhotoID     int64       `json:"photoId,omitempty"`
	Status      PhotoStatus `json:"status,omitempty"`
	Infected    *bool       `json:"infected,omitempty"`
	At          time.Time   `json:"at"`
}
