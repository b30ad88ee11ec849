package reporting

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"marketplace-messaging/internal/interaction"
)

// PostgresRepo reads interactions for aggregation. It reuses the interaction
// store's table; reporting never writes.
type PostgresRepo struct {
	store *interaction.PostgresStore
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{store: interaction.NewPostgresStore(db)}
}

func (r *PostgresRepo) ListInteractions(ctx context.Context, from, to time.Time) ([]interaction.Interaction, error) {
	rows, err := r.store.FindCreatedBetween(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("reporting: list interactions: %w", err)
	}
	return rows, nil
}
