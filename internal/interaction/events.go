package interaction

import (
	"time"

	"marketplace-messaging/internal/intent"
)

// EventResponseRecorded is published after a reply is matched, classified and
// persisted. Delivery to subscribers is at-least-once; subscribers must be
// idempotent.
const EventResponseRecorded = "interaction.response_recorded"

type ResponseRecorded struct {
	InteractionID   string        `json:"interaction_id"`
	SubjectID       string        `json:"subject_id"`
	ResponseContent string        `json:"response_content"`
	ResponseIntent  intent.Intent `json:"response_intent"`
	RespondedAt     time.Time     `json:"responded_at"`
}

func (ResponseRecorded) EventType() string { return EventResponseRecorded }
