package types

import "time"

// Event types published to the broker
const (
	EventTypePatientCreated = "patient.created"
)

// PatientCreatedEvent is the immutable fact emitted after a patient is
// created. The event identifier exists for consumer-side deduplication:
// delivery is at-least-once and duplicates are possible.
type PatientCreatedEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	PatientID string    `json:"patient_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}
