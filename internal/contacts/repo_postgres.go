package contacts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"marketplace-messaging/internal/interaction"
)

// NOTE: This resolver assumes the following table exists, maintained by the
// marketplace CRUD side:
//
//   subject_contacts (
//     subject_id text not null,
//     direction  text not null,
//     contact    text not null,
//     verified   boolean not null default false,
//     primary key (subject_id, direction)
//   )

// PostgresResolver resolves verified contact addresses from the shared
// marketplace database.
type PostgresResolver struct {
	db *sql.DB
}

func NewPostgresResolver(db *sql.DB) *PostgresResolver {
	return &PostgresResolver{db: db}
}

func (r *PostgresResolver) Resolve(ctx context.Context, subjectID string, dir interaction.Direction) (string, bool, error) {
	const q = `
SELECT contact
FROM subject_contacts
WHERE subject_id = $1 AND direction = $2 AND verified = true
`
	var contact string
	err := r.db.QueryRowContext(ctx, q, subjectID, string(dir)).Scan(&contact)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("contacts: resolve %s/%s: %w", subjectID, dir, err)
	}
	if contact == "" {
		return "", false, nil
	}
	return contact, true, nil
}
