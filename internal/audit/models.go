package audit

import "time"

// Event is an immutable, append-only anomaly record for the messaging paths.
//
// Invariants:
// - Events are never updated or deleted.
// - Recording is best-effort; never block delivery or reply processing on an
//   audit failure.
//
// Webhook anomalies (unmatched inbound messages, stale delivery callbacks,
// transition conflicts) are answered with success to the caller by design, so
// this trail is the only durable trace they leave besides logs.

type Event struct {
	ID string `json:"id" db:"id"`

	// Type indicates the anomaly category.
	Type EventType `json:"type" db:"type"`

	// Target identifiers (optional, depending on the event type).
	InteractionID string `json:"interaction_id,omitempty" db:"interaction_id"`
	SubjectID     string `json:"subject_id,omitempty" db:"subject_id"`
	Contact       string `json:"contact,omitempty" db:"contact"`
	ExternalID    string `json:"external_id,omitempty" db:"external_id"`

	// Detail is a short human-readable description for internal ops.
	Detail string `json:"detail,omitempty" db:"detail"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeUnmatchedInbound    EventType = "unmatched_inbound"
	EventTypeDuplicateInbound    EventType = "duplicate_inbound"
	EventTypeStaleDeliveryStatus EventType = "stale_delivery_status"
	EventTypeTransitionConflict  EventType = "transition_conflict"
	EventTypeContactMissing      EventType = "contact_missing"
)
