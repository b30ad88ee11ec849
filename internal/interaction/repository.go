package interaction

import (
	"context"
	"time"
)

// Store is the persistence contract for interactions. Save has upsert
// semantics keyed by id; implementations must reject writes carrying a stale
// Version with ErrVersionConflict so concurrent writers for the same
// interaction are serialized.
type Store interface {
	FindByID(ctx context.Context, id string) (Interaction, error)

	// FindPendingDueBy returns pending interactions with ScheduledFor <= now.
	FindPendingDueBy(ctx context.Context, now time.Time) ([]Interaction, error)

	// FindFailedRetryableBy returns failed interactions that are not
	// permanent, still have budget under maxAttempts, and whose ScheduledFor
	// has passed.
	FindFailedRetryableBy(ctx context.Context, now time.Time, maxAttempts int) ([]Interaction, error)

	// FindByExternalID looks up by provider message id.
	FindByExternalID(ctx context.Context, externalID string) (Interaction, bool, error)

	// FindMostRecentByContact returns the newest interaction addressed to
	// contact (by recorded recipient contact) whose status is in statuses.
	FindMostRecentByContact(ctx context.Context, contact string, statuses []Status) (Interaction, bool, error)

	// FindSentNotDelivered returns sent interactions without a delivery
	// confirmation whose SentAt is at or after sentAfter.
	FindSentNotDelivered(ctx context.Context, sentAfter time.Time) ([]Interaction, error)

	// Save creates or replaces by id and returns the stored row with its
	// bumped version.
	Save(ctx context.Context, it Interaction) (Interaction, error)
}
