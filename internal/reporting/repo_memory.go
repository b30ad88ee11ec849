package reporting

import (
	"context"
	"time"

	"marketplace-messaging/internal/interaction"
)

// MemoryRepo adapts the in-memory interaction store for tests and local runs.
type MemoryRepo struct {
	store *interaction.MemoryStore
}

func NewMemoryRepo(store *interaction.MemoryStore) *MemoryRepo {
	return &MemoryRepo{store: store}
}

func (r *MemoryRepo) ListInteractions(ctx context.Context, from, to time.Time) ([]interaction.Interaction, error) {
	return r.store.FindCreatedBetween(ctx, from, to)
}
