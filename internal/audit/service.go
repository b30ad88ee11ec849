package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for anomaly events.
//
// It MUST be append-only. No Update/Delete methods are provided by design.

type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service records messaging anomalies. Callers treat it as best-effort: an
// append failure is logged and swallowed so ingestion paths never fail
// because of auditing.

type Service struct {
	repo  Repository
	log   *slog.Logger
	clock func() time.Time
}

func NewService(repo Repository, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{repo: repo, log: log, clock: time.Now}
}

func (s *Service) append(ctx context.Context, e Event) {
	if s == nil || s.repo == nil {
		return
	}
	if e.Type == "" {
		s.log.Warn("audit event without type dropped")
		return
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	if err := s.repo.Append(ctx, e); err != nil {
		s.log.Warn("audit append failed", "type", e.Type, "err", err)
	}
}

// UnmatchedInbound records an inbound message that matched no open interaction.
func (s *Service) UnmatchedInbound(ctx context.Context, contact, externalID, detail string) {
	s.append(ctx, Event{
		Type:       EventTypeUnmatchedInbound,
		Contact:    contact,
		ExternalID: externalID,
		Detail:     detail,
	})
}

// DuplicateInbound records an extra reply for an already-responded interaction.
func (s *Service) DuplicateInbound(ctx context.Context, interactionID, subjectID, externalID, detail string) {
	s.append(ctx, Event{
		Type:          EventTypeDuplicateInbound,
		InteractionID: interactionID,
		SubjectID:     subjectID,
		ExternalID:    externalID,
		Detail:        detail,
	})
}

// StaleDeliveryStatus records a delivery callback arriving for a state that
// cannot accept it.
func (s *Service) StaleDeliveryStatus(ctx context.Context, interactionID, externalID, detail string) {
	s.append(ctx, Event{
		Type:          EventTypeStaleDeliveryStatus,
		InteractionID: interactionID,
		ExternalID:    externalID,
		Detail:        detail,
	})
}

// TransitionConflict records a lost optimistic-concurrency race.
func (s *Service) TransitionConflict(ctx context.Context, interactionID, detail string) {
	s.append(ctx, Event{
		Type:          EventTypeTransitionConflict,
		InteractionID: interactionID,
		Detail:        detail,
	})
}

// ContactMissing records a send abandoned because no verified contact exists.
func (s *Service) ContactMissing(ctx context.Context, interactionID, subjectID string) {
	s.append(ctx, Event{
		Type:          EventTypeContactMissing,
		InteractionID: interactionID,
		SubjectID:     subjectID,
		Detail:        "no verified contact for subject/direction",
	})
}
