package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"marketplace-messaging/internal/audit"
	"marketplace-messaging/internal/eventbus"
	"marketplace-messaging/internal/intent"
	"marketplace-messaging/internal/interaction"
)

// replyEligible are the statuses an interaction may be in to receive a first
// reply. StatusResponded is included so replays of an already-recorded reply
// are detected instead of silently unmatched.
var replyEligible = []interaction.Status{
	interaction.StatusSent,
	interaction.StatusDelivered,
	interaction.StatusResponded,
}

// ReplyPipeline matches inbound messages to the interaction that provoked
// them, classifies the reply's intent, records it and publishes the domain
// event the workflow side consumes.
//
// Matching falls back to "most recent open interaction for this contact".
// A contact with several concurrent open conversations can therefore have a
// reply attributed to the newest one even when the human meant an older one;
// see the pipeline tests for the documented ambiguity.
type ReplyPipeline struct {
	store      interaction.Store
	classifier *intent.Classifier
	bus        *eventbus.Bus
	locks      Locker
	anomalies  *audit.Service
	log        *slog.Logger
	clock      func() time.Time
}

func NewReplyPipeline(store interaction.Store, classifier *intent.Classifier, bus *eventbus.Bus, locks Locker, anomalies *audit.Service, log *slog.Logger) *ReplyPipeline {
	if locks == nil {
		locks = NoopLocker{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &ReplyPipeline{
		store:      store,
		classifier: classifier,
		bus:        bus,
		locks:      locks,
		anomalies:  anomalies,
		log:        log,
		clock:      time.Now,
	}
}

// Handle processes one inbound message. Unmatched and duplicate messages
// return nil so the webhook caller does not retry; only infrastructure
// failures surface as errors.
func (p *ReplyPipeline) Handle(ctx context.Context, fromContact, messageText, externalInboundID string) error {
	if fromContact == "" || externalInboundID == "" {
		return errors.New("ingest: contact and inbound id are required")
	}

	// Some providers reuse the outbound message id for threaded replies; a
	// responded interaction that already recorded this exact inbound id is a
	// replay.
	if it, ok, err := p.store.FindByExternalID(ctx, externalInboundID); err != nil {
		return fmt.Errorf("ingest: lookup by inbound id: %w", err)
	} else if ok && it.Status == interaction.StatusResponded && it.Metadata.InboundMessageID == externalInboundID {
		return nil
	}

	it, ok, err := p.store.FindMostRecentByContact(ctx, fromContact, replyEligible)
	if err != nil {
		return fmt.Errorf("ingest: match by contact: %w", err)
	}
	if !ok {
		p.log.Info("inbound message unmatched", "contact", fromContact, "inbound_id", externalInboundID)
		p.anomalies.UnmatchedInbound(ctx, fromContact, externalInboundID, "no open interaction for contact")
		return nil
	}

	release, locked, err := p.locks.Acquire(ctx, LockKey(it.ID))
	if err != nil {
		return fmt.Errorf("ingest: acquire lock: %w", err)
	}
	if !locked {
		p.log.Debug("inbound skipped, interaction locked", "interaction_id", it.ID)
		return nil
	}
	defer release()

	it, err = p.store.FindByID(ctx, it.ID)
	if err != nil {
		return fmt.Errorf("ingest: reload interaction: %w", err)
	}

	if it.Status == interaction.StatusResponded {
		if it.Metadata.InboundMessageID == externalInboundID {
			// Same message replayed by the channel.
			return nil
		}
		// One reply per interaction; extras are not appended.
		p.log.Info("extra reply for responded interaction dropped",
			"interaction_id", it.ID, "inbound_id", externalInboundID)
		p.anomalies.DuplicateInbound(ctx, it.ID, it.SubjectID, externalInboundID, "interaction already responded")
		return nil
	}

	now := p.clock().UTC()
	classified := p.classifier.Classify(messageText)

	if err := it.MarkResponded(messageText, classified, now); err != nil {
		p.anomalies.TransitionConflict(ctx, it.ID, "mark responded rejected: "+err.Error())
		return nil
	}
	it.Metadata.InboundMessageID = externalInboundID

	stored, err := p.store.Save(ctx, it)
	if err != nil {
		if errors.Is(err, interaction.ErrVersionConflict) {
			p.anomalies.TransitionConflict(ctx, it.ID, "inbound reply lost write race")
			return nil
		}
		return fmt.Errorf("ingest: save interaction: %w", err)
	}

	if p.bus != nil {
		p.bus.Publish(interaction.ResponseRecorded{
			InteractionID:   stored.ID,
			SubjectID:       stored.SubjectID,
			ResponseContent: stored.ResponseContent,
			ResponseIntent:  stored.ResponseIntent,
			RespondedAt:     *stored.RespondedAt,
		})
	}
	return nil
}
