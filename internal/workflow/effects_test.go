package workflow

import (
	"context"
	"testing"
	"time"

	"marketplace-messaging/internal/eventbus"
	"marketplace-messaging/internal/intent"
	"marketplace-messaging/internal/interaction"
	"marketplace-messaging/internal/template"
)

var t0 = time.Unix(1700000000, 0).UTC()

func newEffectsFixture(t *testing.T) (*Effects, *MemorySubjects, *interaction.MemoryStore) {
	t.Helper()
	subjects := NewMemorySubjects()
	store := interaction.NewMemoryStore()

	reg := template.NewRegistry("es")
	reg.Register(confirmationTemplate, "es", "Tu solicitud {{subject_id}} fue confirmada.")

	e := NewEffects(subjects, store, reg, nil)
	e.clock = func() time.Time { return t0 }
	return e, subjects, store
}

func event(subjectID string, in intent.Intent) interaction.ResponseRecorded {
	return interaction.ResponseRecorded{
		InteractionID:   "int-1",
		SubjectID:       subjectID,
		ResponseContent: "x",
		ResponseIntent:  in,
		RespondedAt:     t0,
	}
}

func TestNext_Table(t *testing.T) {
	cases := []struct {
		in     intent.Intent
		cur    Status
		want   Status
		mapped bool
	}{
		{intent.IntentConfirmed, StatusAwaitingConfirmation, StatusConfirmed, true},
		{intent.IntentStarted, StatusConfirmed, StatusInProgress, true},
		{intent.IntentCompleted, StatusInProgress, StatusCompleted, true},
		{intent.IntentCompleted, StatusConfirmed, StatusCompleted, true},
		{intent.IntentCancelled, StatusInProgress, StatusCancelled, true},
		{intent.IntentConfirmed, StatusConfirmed, "", false},
		{intent.IntentNeedsInfo, StatusConfirmed, "", false},
		{intent.IntentUnknown, StatusAwaitingConfirmation, "", false},
		{intent.IntentCancelled, StatusCompleted, "", false},
	}
	for _, c := range cases {
		got, ok := Next(c.in, c.cur)
		if ok != c.mapped || got != c.want {
			t.Fatalf("Next(%s, %s) = (%s, %v), want (%s, %v)", c.in, c.cur, got, ok, c.want, c.mapped)
		}
	}
}

func TestEffects_ConfirmationTransitionsAndEnqueues(t *testing.T) {
	e, subjects, store := newEffectsFixture(t)
	subjects.Put(Subject{ID: "s1", Status: StatusAwaitingConfirmation, Locale: "es"})

	if err := e.Apply(context.Background(), event("s1", intent.IntentConfirmed)); err != nil {
		t.Fatalf("apply: %v", err)
	}

	subj, _ := subjects.Get(context.Background(), "s1")
	if subj.Status != StatusConfirmed {
		t.Fatalf("expected confirmed, got %s", subj.Status)
	}

	due, err := store.FindPendingDueBy(context.Background(), t0)
	if err != nil {
		t.Fatalf("find pending: %v", err)
	}
	if len(due) != 1 {
		t.Fatalf("expected 1 enqueued confirmation, got %d", len(due))
	}
	got := due[0]
	if got.Type != interaction.TypeConfirmation || got.SubjectID != "s1" {
		t.Fatalf("unexpected enqueued interaction: %+v", got)
	}
	if got.MessageContent != "Tu solicitud s1 fue confirmada." {
		t.Fatalf("unexpected rendered content %q", got.MessageContent)
	}
}

func TestEffects_DuplicateEventIsIdempotent(t *testing.T) {
	e, subjects, store := newEffectsFixture(t)
	subjects.Put(Subject{ID: "s1", Status: StatusAwaitingConfirmation, Locale: "es"})

	ev := event("s1", intent.IntentConfirmed)
	if err := e.Apply(context.Background(), ev); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	if err := e.Apply(context.Background(), ev); err != nil {
		t.Fatalf("second apply: %v", err)
	}

	subj, _ := subjects.Get(context.Background(), "s1")
	if subj.Status != StatusConfirmed {
		t.Fatalf("expected confirmed, got %s", subj.Status)
	}
	due, _ := store.FindPendingDueBy(context.Background(), t0)
	if len(due) != 1 {
		t.Fatalf("duplicate event must not enqueue a second confirmation, got %d", len(due))
	}
}

func TestEffects_UnmappedIntentLeavesSubjectAlone(t *testing.T) {
	e, subjects, store := newEffectsFixture(t)
	subjects.Put(Subject{ID: "s1", Status: StatusCompleted, Locale: "es"})

	if err := e.Apply(context.Background(), event("s1", intent.IntentCancelled)); err != nil {
		t.Fatalf("apply: %v", err)
	}

	subj, _ := subjects.Get(context.Background(), "s1")
	if subj.Status != StatusCompleted {
		t.Fatalf("completed subject must not transition, got %s", subj.Status)
	}
	if due, _ := store.FindPendingDueBy(context.Background(), t0); len(due) != 0 {
		t.Fatalf("no interaction should be enqueued")
	}
}

func TestEffects_UnknownSubjectIsLoggedNotFatal(t *testing.T) {
	e, _, _ := newEffectsFixture(t)
	if err := e.Apply(context.Background(), event("nope", intent.IntentConfirmed)); err != nil {
		t.Fatalf("unknown subject must not error: %v", err)
	}
}

func TestEffects_ConsumesBusEvents(t *testing.T) {
	e, subjects, _ := newEffectsFixture(t)
	subjects.Put(Subject{ID: "s1", Status: StatusConfirmed, Locale: "es"})

	bus := eventbus.New(nil)
	e.Register(bus)
	bus.Publish(event("s1", intent.IntentStarted))

	subj, _ := subjects.Get(context.Background(), "s1")
	if subj.Status != StatusInProgress {
		t.Fatalf("expected in_progress after bus delivery, got %s", subj.Status)
	}
}
