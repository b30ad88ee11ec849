package interaction

import (
	"errors"
	"fmt"
	"time"

	"marketplace-messaging/internal/intent"

	"github.com/google/uuid"
)

// Interaction is one tracked outbound/inbound message exchange tied to a
// business workflow item (the "subject"). The subject id is opaque here.
//
// All state changes go through the Mark*/Reset methods below so the lifecycle
// invariants cannot be bypassed with raw field writes. The provider-assigned
// ExternalMessageID is the idempotency key for delivery callbacks; the
// recipient contact recorded at send time is the matching key for inbound
// replies.
type Interaction struct {
	ID        string `json:"id" db:"id"`
	SubjectID string `json:"subject_id" db:"subject_id"`

	Type      Type      `json:"type" db:"type"`
	Direction Direction `json:"direction" db:"direction"`

	// Channel tags the delivery channel (e.g. "WHATSAPP").
	Channel string `json:"channel" db:"channel"`

	Status Status `json:"status" db:"status"`

	MessageTemplate string `json:"message_template" db:"message_template"`

	// MessageContent is rendered once at creation and never mutates after the
	// first successful send attempt of a cycle.
	MessageContent string `json:"message_content" db:"message_content"`

	ResponseContent string        `json:"response_content,omitempty" db:"response_content"`
	ResponseIntent  intent.Intent `json:"response_intent,omitempty" db:"response_intent"`

	// ScheduledFor is the earliest send time. Retries advance it.
	ScheduledFor time.Time `json:"scheduled_for" db:"scheduled_for"`

	SentAt      *time.Time `json:"sent_at,omitempty" db:"sent_at"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty" db:"delivered_at"`
	RespondedAt *time.Time `json:"responded_at,omitempty" db:"responded_at"`

	// ExternalMessageID is provider-assigned, unique when present.
	ExternalMessageID string `json:"external_message_id,omitempty" db:"external_message_id"`

	// ExternalStatus is the last raw provider status observed, verbatim.
	ExternalStatus string `json:"external_status,omitempty" db:"external_status"`

	Metadata Metadata `json:"metadata" db:"metadata"`

	// Version increments on every save; stale writers are rejected.
	Version int64 `json:"version" db:"version"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusResponded Status = "responded"
	StatusFailed    Status = "failed"
)

type Type string

const (
	TypeFollowUp     Type = "follow_up"
	TypeStatusUpdate Type = "status_update"
	TypeConfirmation Type = "confirmation"
)

type Direction string

const (
	DirectionToOwner        Direction = "to_subject_owner"
	DirectionToCounterparty Direction = "to_subject_counterparty"
)

// Metadata carries send/retry bookkeeping plus an open key/value bag for raw
// vendor payloads that must round-trip untouched.
type Metadata struct {
	// RecipientContact is set at send time; it is the matching key for
	// inbound replies when the channel does not echo a correlatable id.
	RecipientContact string `json:"recipient_contact,omitempty"`

	// InboundMessageID is the external id of the reply already recorded,
	// used to detect replayed inbound callbacks.
	InboundMessageID string `json:"inbound_message_id,omitempty"`

	FailureDetail string `json:"failure_detail,omitempty"`

	Retry RetryState `json:"retry"`

	Extra map[string]string `json:"extra,omitempty"`
}

// RetryState is the structured retry record: attempt count, next-attempt time
// and last error.
type RetryState struct {
	Attempts      int        `json:"attempts"`
	NextAttemptAt *time.Time `json:"next_attempt_at,omitempty"`
	LastError     string     `json:"last_error,omitempty"`

	// Permanent marks a failure that must never be retried, regardless of the
	// remaining attempt budget.
	Permanent bool `json:"permanent,omitempty"`
}

var (
	ErrInvalidTransition = errors.New("interaction: invalid transition")
	ErrNotFound          = errors.New("interaction: not found")
	ErrVersionConflict   = errors.New("interaction: version conflict")
)

// New creates a pending interaction scheduled for scheduledFor.
func New(subjectID string, typ Type, dir Direction, channel, template, content string, scheduledFor, now time.Time) Interaction {
	return Interaction{
		ID:              uuid.NewString(),
		SubjectID:       subjectID,
		Type:            typ,
		Direction:       dir,
		Channel:         channel,
		Status:          StatusPending,
		MessageTemplate: template,
		MessageContent:  content,
		ScheduledFor:    scheduledFor.UTC(),
		CreatedAt:       now.UTC(),
		UpdatedAt:       now.UTC(),
	}
}

// MarkSent records a successful provider send. Legal only from pending.
func (i *Interaction) MarkSent(externalID, recipientContact string, now time.Time) error {
	if i.Status != StatusPending {
		return fmt.Errorf("%w: mark sent from %s", ErrInvalidTransition, i.Status)
	}
	if externalID == "" {
		return errors.New("interaction: external message id required")
	}
	ts := now.UTC()
	i.Status = StatusSent
	i.SentAt = &ts
	i.ExternalMessageID = externalID
	i.Metadata.RecipientContact = recipientContact
	i.touch(now)
	return nil
}

// MarkDelivered records a provider delivery confirmation. Legal only from sent.
func (i *Interaction) MarkDelivered(rawStatus string, now time.Time) error {
	if i.Status != StatusSent {
		return fmt.Errorf("%w: mark delivered from %s", ErrInvalidTransition, i.Status)
	}
	ts := now.UTC()
	i.Status = StatusDelivered
	i.DeliveredAt = &ts
	i.ExternalStatus = rawStatus
	i.touch(now)
	return nil
}

// MarkResponded records the first (and only) inbound reply. Legal from any
// state except responded; a reply proves delivery, so DeliveredAt is
// backfilled when the delivery callback was missed.
func (i *Interaction) MarkResponded(content string, in intent.Intent, now time.Time) error {
	if i.Status == StatusResponded {
		return fmt.Errorf("%w: already responded", ErrInvalidTransition)
	}
	ts := now.UTC()
	i.Status = StatusResponded
	i.ResponseContent = content
	i.ResponseIntent = in
	i.RespondedAt = &ts
	if i.DeliveredAt == nil {
		i.DeliveredAt = &ts
	}
	i.touch(now)
	return nil
}

// MarkFailed records a permanent failure. Legal from any non-terminal state;
// a retry-eligible failure may be escalated to permanent.
func (i *Interaction) MarkFailed(detail string, now time.Time) error {
	if i.Status == StatusResponded || (i.Status == StatusFailed && i.Metadata.Retry.Permanent) {
		return fmt.Errorf("%w: mark failed from %s", ErrInvalidTransition, i.Status)
	}
	i.Status = StatusFailed
	i.Metadata.FailureDetail = detail
	i.Metadata.Retry.LastError = detail
	i.Metadata.Retry.Permanent = true
	i.touch(now)
	return nil
}

// RecordSendFailure consumes one attempt of the retry budget. A nil
// nextAttempt makes the failure permanent (non-retryable error class or
// budget exhausted); otherwise the interaction stays retry-eligible with
// ScheduledFor advanced to nextAttempt.
func (i *Interaction) RecordSendFailure(errMsg string, nextAttempt *time.Time, now time.Time) error {
	if i.Status != StatusPending {
		return fmt.Errorf("%w: record send failure from %s", ErrInvalidTransition, i.Status)
	}
	i.Metadata.Retry.Attempts++
	i.Metadata.Retry.LastError = errMsg
	i.Metadata.FailureDetail = errMsg
	i.Status = StatusFailed
	if nextAttempt == nil {
		i.Metadata.Retry.Permanent = true
		i.Metadata.Retry.NextAttemptAt = nil
	} else {
		next := nextAttempt.UTC()
		i.Metadata.Retry.NextAttemptAt = &next
		i.ScheduledFor = next
	}
	i.touch(now)
	return nil
}

// ResetForRetry returns a retry-eligible failed interaction to pending for a
// fresh send cycle. Provider identifiers from the aborted cycle are cleared so
// the new cycle is unambiguous; the attempt counter is preserved.
func (i *Interaction) ResetForRetry(now time.Time) error {
	if i.Status != StatusFailed || i.Metadata.Retry.Permanent {
		return fmt.Errorf("%w: reset from %s", ErrInvalidTransition, i.Status)
	}
	i.Status = StatusPending
	i.ExternalMessageID = ""
	i.ExternalStatus = ""
	i.SentAt = nil
	i.touch(now)
	return nil
}

// RecordExternalStatus stores a raw provider status that does not map to a
// lifecycle transition.
func (i *Interaction) RecordExternalStatus(rawStatus string, now time.Time) {
	i.ExternalStatus = rawStatus
	i.touch(now)
}

// RetryEligible reports whether a failed interaction may still be retried
// under the given attempt budget.
func (i *Interaction) RetryEligible(maxAttempts int) bool {
	return i.Status == StatusFailed &&
		!i.Metadata.Retry.Permanent &&
		i.Metadata.Retry.Attempts < maxAttempts
}

// Terminal reports whether the interaction will never be touched again by the
// dispatch worker or the ingestion paths.
func (i *Interaction) Terminal(maxAttempts int) bool {
	switch i.Status {
	case StatusResponded:
		return true
	case StatusFailed:
		return !i.RetryEligible(maxAttempts)
	default:
		return false
	}
}

func (i *Interaction) touch(now time.Time) {
	i.UpdatedAt = now.UTC()
}
