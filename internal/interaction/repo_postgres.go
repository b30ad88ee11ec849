package interaction

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"marketplace-messaging/internal/intent"
)

// NOTE: This store assumes the following table exists:
//
//   interactions (
//     id                  text primary key,
//     subject_id          text not null,
//     type                text not null,
//     direction           text not null,
//     channel             text not null,
//     status              text not null,
//     message_template    text not null,
//     message_content     text not null,
//     response_content    text,
//     response_intent     text,
//     scheduled_for       timestamptz not null,
//     sent_at             timestamptz,
//     delivered_at        timestamptz,
//     responded_at        timestamptz,
//     external_message_id text unique,
//     external_status     text,
//     metadata            jsonb not null default '{}',
//     version             bigint not null,
//     created_at          timestamptz not null,
//     updated_at          timestamptz not null
//   )
//
// The UNIQUE constraint on external_message_id backs the delivery-callback
// idempotency key. Recommended indexes:
//   (status, scheduled_for) for the dispatch queries,
//   ((metadata->>'recipient_contact'), created_at) for reply matching.

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const interactionColumns = `
id, subject_id, type, direction, channel, status,
message_template, message_content, response_content, response_intent,
scheduled_for, sent_at, delivered_at, responded_at,
external_message_id, external_status, metadata, version, created_at, updated_at
`

func (s *PostgresStore) FindByID(ctx context.Context, id string) (Interaction, error) {
	q := `SELECT ` + interactionColumns + ` FROM interactions WHERE id = $1`
	it, err := scanInteraction(s.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Interaction{}, ErrNotFound
	}
	return it, err
}

func (s *PostgresStore) FindPendingDueBy(ctx context.Context, now time.Time) ([]Interaction, error) {
	q := `
SELECT ` + interactionColumns + `
FROM interactions
WHERE status = $1 AND scheduled_for <= $2
ORDER BY scheduled_for
`
	return s.queryMany(ctx, q, StatusPending, now.UTC())
}

func (s *PostgresStore) FindFailedRetryableBy(ctx context.Context, now time.Time, maxAttempts int) ([]Interaction, error) {
	q := `
SELECT ` + interactionColumns + `
FROM interactions
WHERE status = $1
  AND scheduled_for <= $2
  AND COALESCE((metadata -> 'retry' ->> 'permanent')::boolean, false) = false
  AND COALESCE((metadata -> 'retry' ->> 'attempts')::int, 0) < $3
ORDER BY scheduled_for
`
	return s.queryMany(ctx, q, StatusFailed, now.UTC(), maxAttempts)
}

func (s *PostgresStore) FindByExternalID(ctx context.Context, externalID string) (Interaction, bool, error) {
	if externalID == "" {
		return Interaction{}, false, nil
	}
	q := `SELECT ` + interactionColumns + ` FROM interactions WHERE external_message_id = $1`
	it, err := scanInteraction(s.db.QueryRowContext(ctx, q, externalID))
	if errors.Is(err, sql.ErrNoRows) {
		return Interaction{}, false, nil
	}
	if err != nil {
		return Interaction{}, false, err
	}
	return it, true, nil
}

func (s *PostgresStore) FindMostRecentByContact(ctx context.Context, contact string, statuses []Status) (Interaction, bool, error) {
	if contact == "" || len(statuses) == 0 {
		return Interaction{}, false, nil
	}
	q := `
SELECT ` + interactionColumns + `
FROM interactions
WHERE metadata ->> 'recipient_contact' = $1
  AND status = ANY($2)
ORDER BY created_at DESC
LIMIT 1
`
	ss := make([]string, len(statuses))
	for i, st := range statuses {
		ss[i] = string(st)
	}
	it, err := scanInteraction(s.db.QueryRowContext(ctx, q, contact, ss))
	if errors.Is(err, sql.ErrNoRows) {
		return Interaction{}, false, nil
	}
	if err != nil {
		return Interaction{}, false, err
	}
	return it, true, nil
}

func (s *PostgresStore) FindSentNotDelivered(ctx context.Context, sentAfter time.Time) ([]Interaction, error) {
	q := `
SELECT ` + interactionColumns + `
FROM interactions
WHERE status = $1 AND delivered_at IS NULL AND sent_at >= $2
ORDER BY sent_at
`
	return s.queryMany(ctx, q, StatusSent, sentAfter.UTC())
}

// FindCreatedBetween serves reporting; not part of the Store contract.
func (s *PostgresStore) FindCreatedBetween(ctx context.Context, from, to time.Time) ([]Interaction, error) {
	q := `
SELECT ` + interactionColumns + `
FROM interactions
WHERE created_at >= $1 AND created_at < $2
ORDER BY created_at
`
	return s.queryMany(ctx, q, from.UTC(), to.UTC())
}

// Save upserts by id. The version predicate rejects stale writers: when the
// stored row has moved past the version the caller loaded, no row is written
// and ErrVersionConflict is returned.
func (s *PostgresStore) Save(ctx context.Context, it Interaction) (Interaction, error) {
	meta, err := json.Marshal(it.Metadata)
	if err != nil {
		return Interaction{}, fmt.Errorf("interaction: marshal metadata: %w", err)
	}

	q := `
INSERT INTO interactions (` + interactionColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
ON CONFLICT (id) DO UPDATE SET
  subject_id = EXCLUDED.subject_id,
  type = EXCLUDED.type,
  direction = EXCLUDED.direction,
  channel = EXCLUDED.channel,
  status = EXCLUDED.status,
  message_template = EXCLUDED.message_template,
  message_content = EXCLUDED.message_content,
  response_content = EXCLUDED.response_content,
  response_intent = EXCLUDED.response_intent,
  scheduled_for = EXCLUDED.scheduled_for,
  sent_at = EXCLUDED.sent_at,
  delivered_at = EXCLUDED.delivered_at,
  responded_at = EXCLUDED.responded_at,
  external_message_id = EXCLUDED.external_message_id,
  external_status = EXCLUDED.external_status,
  metadata = EXCLUDED.metadata,
  version = interactions.version + 1,
  updated_at = EXCLUDED.updated_at
WHERE interactions.version = $21
RETURNING ` + interactionColumns

	row := s.db.QueryRowContext(ctx, q,
		it.ID,
		it.SubjectID,
		string(it.Type),
		string(it.Direction),
		it.Channel,
		string(it.Status),
		it.MessageTemplate,
		it.MessageContent,
		nullString(it.ResponseContent),
		nullString(string(it.ResponseIntent)),
		it.ScheduledFor.UTC(),
		nullTime(it.SentAt),
		nullTime(it.DeliveredAt),
		nullTime(it.RespondedAt),
		nullString(it.ExternalMessageID),
		nullString(it.ExternalStatus),
		meta,
		it.Version+1,
		it.CreatedAt.UTC(),
		it.UpdatedAt.UTC(),
		it.Version,
	)

	stored, err := scanInteraction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Interaction{}, ErrVersionConflict
	}
	return stored, err
}

func (s *PostgresStore) queryMany(ctx context.Context, q string, args ...any) ([]Interaction, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Interaction
	for rows.Next() {
		it, err := scanInteraction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInteraction(r rowScanner) (Interaction, error) {
	var (
		it             Interaction
		respContent    sql.NullString
		respIntent     sql.NullString
		sentAt         sql.NullTime
		deliveredAt    sql.NullTime
		respondedAt    sql.NullTime
		externalID     sql.NullString
		externalStatus sql.NullString
		meta           []byte
	)
	err := r.Scan(
		&it.ID,
		&it.SubjectID,
		&it.Type,
		&it.Direction,
		&it.Channel,
		&it.Status,
		&it.MessageTemplate,
		&it.MessageContent,
		&respContent,
		&respIntent,
		&it.ScheduledFor,
		&sentAt,
		&deliveredAt,
		&respondedAt,
		&externalID,
		&externalStatus,
		&meta,
		&it.Version,
		&it.CreatedAt,
		&it.UpdatedAt,
	)
	if err != nil {
		return Interaction{}, err
	}

	it.ResponseContent = respContent.String
	it.ResponseIntent = intentFromNull(respIntent)
	it.SentAt = timePtr(sentAt)
	it.DeliveredAt = timePtr(deliveredAt)
	it.RespondedAt = timePtr(respondedAt)
	it.ExternalMessageID = externalID.String
	it.ExternalStatus = externalStatus.String

	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &it.Metadata); err != nil {
			return Interaction{}, fmt.Errorf("interaction: unmarshal metadata: %w", err)
		}
	}
	return it, nil
}

func intentFromNull(s sql.NullString) intent.Intent {
	if !s.Valid {
		return ""
	}
	return intent.Intent(s.String)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	ts := t.Time.UTC()
	return &ts
}
