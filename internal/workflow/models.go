package workflow

import (
	"errors"

	"marketplace-messaging/internal/intent"
)

// Status is the lifecycle state of the business workflow item (the subject)
// an interaction is about. The messaging engine only moves it through the
// fixed transition table below; everything else about the subject is owned
// elsewhere.
type Status string

const (
	StatusAwaitingConfirmation Status = "awaiting_confirmation"
	StatusConfirmed            Status = "confirmed"
	StatusInProgress           Status = "in_progress"
	StatusCompleted            Status = "completed"
	StatusCancelled            Status = "cancelled"
)

var ErrSubjectNotFound = errors.New("workflow: subject not found")

// Subject is the read model the effect mapper needs: current status plus the
// locale used when rendering a follow-up confirmation message.
type Subject struct {
	ID     string
	Status Status
	Locale string
}

type transitionKey struct {
	intent intent.Intent
	status Status
}

// transitions is the fixed (intent, current status) lookup. An absent pair
// means the reply produces no workflow transition. Duplicate events from the
// bus are harmless: after the first application the (intent, new status) pair
// is no longer in the table.
var transitions = map[transitionKey]Status{
	{intent.IntentConfirmed, StatusAwaitingConfirmation}: StatusConfirmed,

	{intent.IntentStarted, StatusConfirmed}: StatusInProgress,

	{intent.IntentCompleted, StatusConfirmed}:  StatusCompleted,
	{intent.IntentCompleted, StatusInProgress}: StatusCompleted,

	{intent.IntentCancelled, StatusAwaitingConfirmation}: StatusCancelled,
	{intent.IntentCancelled, StatusConfirmed}:            StatusCancelled,
	{intent.IntentCancelled, StatusInProgress}:           StatusCancelled,
}

// Next returns the status a subject moves to when a reply with the given
// intent arrives, and whether the pair maps at all.
func Next(in intent.Intent, cur Status) (Status, bool) {
	next, ok := transitions[transitionKey{in, cur}]
	return next, ok
}
