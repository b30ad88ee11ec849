package audit

import (
	"context"
	"testing"
)

func TestService_AppendsAnomalies(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo, nil)

	svc.UnmatchedInbound(context.Background(), "+54911", "wamid.in.1", "no open interaction")
	svc.ContactMissing(context.Background(), "i1", "s1")

	evs := repo.Events()
	if len(evs) != 2 {
		t.Fatalf("expected 2 events, got %d", len(evs))
	}
	if evs[0].Type != EventTypeUnmatchedInbound || evs[0].Contact != "+54911" {
		t.Fatalf("unexpected first event: %+v", evs[0])
	}
	if evs[0].ID == "" || evs[0].CreatedAt.IsZero() {
		t.Fatalf("expected id and timestamp filled in")
	}
	if evs[1].Type != EventTypeContactMissing || evs[1].InteractionID != "i1" {
		t.Fatalf("unexpected second event: %+v", evs[1])
	}
}

func TestService_NilServiceIsSafe(t *testing.T) {
	var svc *Service
	// Audit is best-effort; a nil service must be a no-op, not a panic.
	svc.UnmatchedInbound(context.Background(), "c", "x", "d")
}
