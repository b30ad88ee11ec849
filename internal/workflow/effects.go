package workflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"marketplace-messaging/internal/eventbus"
	"marketplace-messaging/internal/intent"
	"marketplace-messaging/internal/interaction"
	"marketplace-messaging/internal/template"
)

// confirmationTemplate is the key rendered for the acknowledgement message
// enqueued after a subject is confirmed.
const confirmationTemplate = "workflow_confirmed_ack"

// Effects consumes interaction.ResponseRecorded events and applies the
// workflow side of a classified reply: transition the subject per the fixed
// table, and on a successful confirmation enqueue a fresh pending
// acknowledgement interaction for the dispatch worker to pick up.
//
// The bus delivers at least once, so Apply must tolerate duplicates; it does,
// because a replayed event finds the subject already transitioned and the
// (intent, status) pair no longer maps.
type Effects struct {
	subjects Subjects
	store    interaction.Store
	renderer template.Renderer
	log      *slog.Logger
	clock    func() time.Time
}

func NewEffects(subjects Subjects, store interaction.Store, renderer template.Renderer, log *slog.Logger) *Effects {
	if log == nil {
		log = slog.Default()
	}
	return &Effects{
		subjects: subjects,
		store:    store,
		renderer: renderer,
		log:      log,
		clock:    time.Now,
	}
}

// Register subscribes the effect mapper to the bus.
func (e *Effects) Register(bus *eventbus.Bus) {
	bus.Subscribe(interaction.EventResponseRecorded, func(ev eventbus.Event) {
		rec, ok := ev.(interaction.ResponseRecorded)
		if !ok {
			return
		}
		if err := e.Apply(context.Background(), rec); err != nil {
			e.log.Error("workflow effect failed",
				"interaction_id", rec.InteractionID, "subject_id", rec.SubjectID, "error", err)
		}
	})
}

// Apply maps one recorded response onto the subject's workflow.
func (e *Effects) Apply(ctx context.Context, rec interaction.ResponseRecorded) error {
	subj, err := e.subjects.Get(ctx, rec.SubjectID)
	if err != nil {
		if errors.Is(err, ErrSubjectNotFound) {
			e.log.Warn("response for unknown subject ignored",
				"subject_id", rec.SubjectID, "interaction_id", rec.InteractionID)
			return nil
		}
		return err
	}

	next, ok := Next(rec.ResponseIntent, subj.Status)
	if !ok {
		e.log.Debug("no workflow transition for reply",
			"subject_id", subj.ID, "intent", string(rec.ResponseIntent), "status", string(subj.Status))
		return nil
	}

	if err := e.subjects.SetStatus(ctx, subj.ID, next); err != nil {
		return err
	}
	e.log.Info("workflow transitioned",
		"subject_id", subj.ID, "from", string(subj.Status), "to", string(next),
		"intent", string(rec.ResponseIntent))

	if rec.ResponseIntent == intent.IntentConfirmed && next == StatusConfirmed {
		return e.enqueueConfirmation(ctx, subj)
	}
	return nil
}

// enqueueConfirmation creates the pending acknowledgement interaction. It
// goes through the same entity constructor and store as every other
// interaction, so the dispatch worker treats it like any scheduled send.
func (e *Effects) enqueueConfirmation(ctx context.Context, subj Subject) error {
	now := e.clock().UTC()
	content := e.renderer.Render(confirmationTemplate, subj.Locale, map[string]string{
		"subject_id": subj.ID,
	})

	it := interaction.New(subj.ID, interaction.TypeConfirmation, interaction.DirectionToOwner,
		"WHATSAPP", confirmationTemplate, content, now, now)
	if _, err := e.store.Save(ctx, it); err != nil {
		return err
	}
	e.log.Info("confirmation interaction enqueued",
		"subject_id", subj.ID, "interaction_id", it.ID)
	return nil
}
