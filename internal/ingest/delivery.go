package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"marketplace-messaging/internal/audit"
	"marketplace-messaging/internal/interaction"
)

// deliveredStatuses and failedStatuses map the provider's raw vocabulary onto
// lifecycle transitions. Anything else is recorded verbatim without a
// transition.
var deliveredStatuses = map[string]bool{
	"delivered": true,
	"read":      true,
}

var failedStatuses = map[string]bool{
	"failed":      true,
	"undelivered": true,
}

// DeliveryIngestor applies provider delivery callbacks to interactions.
//
// The external message id is the idempotency key: unknown ids and replayed
// statuses are no-ops, and a callback that arrives for a state that cannot
// accept it is recorded as an anomaly instead of failing the webhook — the
// provider retries on non-2xx and a retry cannot fix any of these cases.
type DeliveryIngestor struct {
	store     interaction.Store
	locks     Locker
	anomalies *audit.Service
	log       *slog.Logger
	clock     func() time.Time
}

func NewDeliveryIngestor(store interaction.Store, locks Locker, anomalies *audit.Service, log *slog.Logger) *DeliveryIngestor {
	if locks == nil {
		locks = NoopLocker{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &DeliveryIngestor{
		store:     store,
		locks:     locks,
		anomalies: anomalies,
		log:       log,
		clock:     time.Now,
	}
}

// Apply processes one delivery-status callback. It returns an error only for
// infrastructure failures; unmatched and duplicate callbacks return nil.
func (g *DeliveryIngestor) Apply(ctx context.Context, externalID, rawStatus string) error {
	if externalID == "" || rawStatus == "" {
		return errors.New("ingest: external message id and status are required")
	}

	it, ok, err := g.store.FindByExternalID(ctx, externalID)
	if err != nil {
		return fmt.Errorf("ingest: lookup by external id: %w", err)
	}
	if !ok {
		g.log.Debug("delivery status for unknown message", "external_id", externalID, "status", rawStatus)
		return nil
	}

	release, locked, err := g.locks.Acquire(ctx, LockKey(it.ID))
	if err != nil {
		return fmt.Errorf("ingest: acquire lock: %w", err)
	}
	if !locked {
		// Another writer is active; the provider will redeliver.
		g.log.Debug("delivery status skipped, interaction locked", "interaction_id", it.ID)
		return nil
	}
	defer release()

	// Re-read under the lock so we never apply onto a stale snapshot.
	it, err = g.store.FindByID(ctx, it.ID)
	if err != nil {
		return fmt.Errorf("ingest: reload interaction: %w", err)
	}

	if it.ExternalStatus == rawStatus {
		// Duplicate callback.
		return nil
	}

	now := g.clock().UTC()
	switch {
	case deliveredStatuses[rawStatus]:
		if err := it.MarkDelivered(rawStatus, now); err != nil {
			g.log.Warn("delivered status for interaction not in sent",
				"interaction_id", it.ID, "status", it.Status, "raw_status", rawStatus)
			g.anomalies.StaleDeliveryStatus(ctx, it.ID, externalID,
				fmt.Sprintf("delivered-equivalent %q while %s", rawStatus, it.Status))
			it.RecordExternalStatus(rawStatus, now)
		}
	case failedStatuses[rawStatus]:
		if err := it.MarkFailed("provider reported "+rawStatus, now); err != nil {
			g.log.Warn("failed status for terminal interaction",
				"interaction_id", it.ID, "status", it.Status, "raw_status", rawStatus)
			g.anomalies.StaleDeliveryStatus(ctx, it.ID, externalID,
				fmt.Sprintf("failed-equivalent %q while %s", rawStatus, it.Status))
			return nil
		}
		it.RecordExternalStatus(rawStatus, now)
	default:
		// Unmapped provider status: keep the raw value, no transition.
		it.RecordExternalStatus(rawStatus, now)
	}

	if _, err := g.store.Save(ctx, it); err != nil {
		if errors.Is(err, interaction.ErrVersionConflict) {
			g.anomalies.TransitionConflict(ctx, it.ID, "delivery callback lost write race")
			return nil
		}
		return fmt.Errorf("ingest: save interaction: %w", err)
	}
	return nil
}
