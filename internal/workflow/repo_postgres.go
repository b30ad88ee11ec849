package workflow

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// NOTE: This store assumes the following table exists, shared with the
// marketplace CRUD side:
//
//   subjects (
//     id     text primary key,
//     status text not null,
//     locale text not null default 'es'
//   )

// PostgresSubjects reads and transitions workflow subjects in the shared
// marketplace database.
type PostgresSubjects struct {
	db *sql.DB
}

func NewPostgresSubjects(db *sql.DB) *PostgresSubjects {
	return &PostgresSubjects{db: db}
}

func (s *PostgresSubjects) Get(ctx context.Context, subjectID string) (Subject, error) {
	const q = `SELECT id, status, locale FROM subjects WHERE id = $1`
	var subj Subject
	var status string
	err := s.db.QueryRowContext(ctx, q, subjectID).Scan(&subj.ID, &status, &subj.Locale)
	if errors.Is(err, sql.ErrNoRows) {
		return Subject{}, ErrSubjectNotFound
	}
	if err != nil {
		return Subject{}, fmt.Errorf("workflow: get subject %s: %w", subjectID, err)
	}
	subj.Status = Status(status)
	return subj, nil
}

func (s *PostgresSubjects) SetStatus(ctx context.Context, subjectID string, status Status) error {
	const q = `UPDATE subjects SET status = $2 WHERE id = $1`
	res, err := s.db.ExecContext(ctx, q, subjectID, string(status))
	if err != nil {
		return fmt.Errorf("workflow: set subject %s status: %w", subjectID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrSubjectNotFound
	}
	return nil
}
