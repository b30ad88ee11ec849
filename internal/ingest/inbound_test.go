package ingest

import (
	"context"
	"testing"
	"time"

	"marketplace-messaging/internal/audit"
	"marketplace-messaging/internal/eventbus"
	"marketplace-messaging/internal/intent"
	"marketplace-messaging/internal/interaction"
)

type capturedEvents struct {
	events []interaction.ResponseRecorded
}

func newReplyFixture(t *testing.T) (*ReplyPipeline, *interaction.MemoryStore, *audit.MemoryRepo, *capturedEvents) {
	t.Helper()
	store := interaction.NewMemoryStore()
	repo := audit.NewMemoryRepo()
	bus := eventbus.New(nil)

	sink := &capturedEvents{}
	bus.Subscribe(interaction.EventResponseRecorded, func(ev eventbus.Event) {
		sink.events = append(sink.events, ev.(interaction.ResponseRecorded))
	})

	p := NewReplyPipeline(store, intent.NewClassifier(), bus, nil, audit.NewService(repo, nil), nil)
	p.clock = func() time.Time { return t0.Add(5 * time.Minute) }
	return p, store, repo, sink
}

func TestReply_MatchClassifyRecordPublish(t *testing.T) {
	p, store, _, sink := newReplyFixture(t)
	seeded := seedSent(t, store, "wamid.out.1")

	if err := p.Handle(context.Background(), "+54911", "sí, gracias", "wamid.in.1"); err != nil {
		t.Fatalf("handle: %v", err)
	}

	got, _ := store.FindByID(context.Background(), seeded.ID)
	if got.Status != interaction.StatusResponded {
		t.Fatalf("expected responded, got %s", got.Status)
	}
	if got.ResponseIntent != intent.IntentConfirmed {
		t.Fatalf("expected CONFIRMED, got %s", got.ResponseIntent)
	}
	if got.ResponseContent != "sí, gracias" {
		t.Fatalf("unexpected content %q", got.ResponseContent)
	}
	if got.Metadata.InboundMessageID != "wamid.in.1" {
		t.Fatalf("expected inbound id stamped")
	}
	if got.DeliveredAt == nil {
		t.Fatalf("expected delivered_at backfilled by the reply")
	}

	if len(sink.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(sink.events))
	}
	ev := sink.events[0]
	if ev.InteractionID != seeded.ID || ev.SubjectID != "subject-1" || ev.ResponseIntent != intent.IntentConfirmed {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestReply_ReplayedInboundIsNoop(t *testing.T) {
	p, store, _, sink := newReplyFixture(t)
	seeded := seedSent(t, store, "wamid.out.1")

	if err := p.Handle(context.Background(), "+54911", "sí", "wamid.in.1"); err != nil {
		t.Fatalf("first handle: %v", err)
	}
	first, _ := store.FindByID(context.Background(), seeded.ID)

	// Same inbound id delivered again by the channel.
	if err := p.Handle(context.Background(), "+54911", "sí", "wamid.in.1"); err != nil {
		t.Fatalf("replay handle: %v", err)
	}
	second, _ := store.FindByID(context.Background(), seeded.ID)

	if second.Version != first.Version {
		t.Fatalf("replay must not write")
	}
	if len(sink.events) != 1 {
		t.Fatalf("replay must not publish again, got %d events", len(sink.events))
	}
}

func TestReply_SecondDifferentReplyIsDroppedAndAudited(t *testing.T) {
	p, store, repo, sink := newReplyFixture(t)
	seeded := seedSent(t, store, "wamid.out.1")

	if err := p.Handle(context.Background(), "+54911", "sí", "wamid.in.1"); err != nil {
		t.Fatalf("first handle: %v", err)
	}
	if err := p.Handle(context.Background(), "+54911", "mejor cancelar", "wamid.in.2"); err != nil {
		t.Fatalf("second handle: %v", err)
	}

	got, _ := store.FindByID(context.Background(), seeded.ID)
	if got.ResponseContent != "sí" || got.Metadata.InboundMessageID != "wamid.in.1" {
		t.Fatalf("second reply must not overwrite the first")
	}
	if len(sink.events) != 1 {
		t.Fatalf("second reply must not publish")
	}

	evs := repo.Events()
	if len(evs) != 1 || evs[0].Type != audit.EventTypeDuplicateInbound {
		t.Fatalf("expected duplicate-inbound anomaly, got %+v", evs)
	}
}

func TestReply_UnmatchedPersistsNothing(t *testing.T) {
	p, store, repo, sink := newReplyFixture(t)

	if err := p.Handle(context.Background(), "+54999", "hola", "wamid.in.1"); err != nil {
		t.Fatalf("handle: %v", err)
	}

	if got, _ := store.FindPendingDueBy(context.Background(), t0.Add(time.Hour)); len(got) != 0 {
		t.Fatalf("unmatched reply must not create state")
	}
	if len(sink.events) != 0 {
		t.Fatalf("unmatched reply must not publish")
	}
	evs := repo.Events()
	if len(evs) != 1 || evs[0].Type != audit.EventTypeUnmatchedInbound {
		t.Fatalf("expected unmatched anomaly, got %+v", evs)
	}
}

func TestReply_MatchesMostRecentOpenConversation(t *testing.T) {
	// A contact with two concurrent open conversations: the fallback matcher
	// attributes the reply to the newest one. That can misattribute replies
	// meant for the older conversation; this test documents the ambiguity.
	p, store, _, _ := newReplyFixture(t)

	older := interaction.New("subject-old", interaction.TypeFollowUp, interaction.DirectionToCounterparty, "WHATSAPP", "tpl", "m1", t0, t0)
	_ = older.MarkSent("wamid.out.1", "+54911", t0)
	if _, err := store.Save(context.Background(), older); err != nil {
		t.Fatalf("save older: %v", err)
	}

	newer := interaction.New("subject-new", interaction.TypeFollowUp, interaction.DirectionToCounterparty, "WHATSAPP", "tpl", "m2", t0, t0.Add(time.Minute))
	_ = newer.MarkSent("wamid.out.2", "+54911", t0.Add(time.Minute))
	if _, err := store.Save(context.Background(), newer); err != nil {
		t.Fatalf("save newer: %v", err)
	}

	if err := p.Handle(context.Background(), "+54911", "listo", "wamid.in.9"); err != nil {
		t.Fatalf("handle: %v", err)
	}

	gotNewer, _ := store.FindByID(context.Background(), newer.ID)
	gotOlder, _ := store.FindByID(context.Background(), older.ID)
	if gotNewer.Status != interaction.StatusResponded {
		t.Fatalf("expected newest conversation to take the reply")
	}
	if gotOlder.Status != interaction.StatusSent {
		t.Fatalf("older conversation must be untouched")
	}
}

func TestReply_DeliveredInteractionIsEligible(t *testing.T) {
	p, store, _, _ := newReplyFixture(t)

	it := interaction.New("s1", interaction.TypeFollowUp, interaction.DirectionToOwner, "WHATSAPP", "tpl", "m", t0, t0)
	_ = it.MarkSent("wamid.out.1", "+54911", t0)
	_ = it.MarkDelivered("delivered", t0)
	stored, _ := store.Save(context.Background(), it)

	if err := p.Handle(context.Background(), "+54911", "done", "wamid.in.1"); err != nil {
		t.Fatalf("handle: %v", err)
	}
	got, _ := store.FindByID(context.Background(), stored.ID)
	if got.Status != interaction.StatusResponded || got.ResponseIntent != intent.IntentCompleted {
		t.Fatalf("expected responded/COMPLETED, got %s/%s", got.Status, got.ResponseIntent)
	}
}
