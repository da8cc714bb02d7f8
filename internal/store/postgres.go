package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/lib/pq"

	apperrors "parasearch/pkg/errors"
	"parasearch/pkg/postgres"
)

// PostgresStore implements Store on top of a paragraphs table:
//
//	CREATE TABLE paragraphs (
//	    id         BIGSERIAL PRIMARY KEY,
//	    content    TEXT NOT NULL,
//	    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
//	);
type PostgresStore struct {
	db     *postgres.Client
	logger *slog.Logger
}

// NewPostgresStore creates a paragraph store backed by PostgreSQL.
func NewPostgresStore(db *postgres.Client) *PostgresStore {
	return &PostgresStore{
		db:     db,
		logger: slog.Default().With("component", "paragraph-store"),
	}
}

// EnsureSchema creates the paragraphs table when it does not exist yet.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.DB.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS paragraphs (
			id         BIGSERIAL PRIMARY KEY,
			content    TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	if err != nil {
		return fmt.Errorf("creating paragraphs table: %w", err)
	}
	return nil
}

func (s *PostgresStore) Insert(ctx context.Context, content string) (*Paragraph, error) {
	var p Paragraph
	err := s.db.DB.QueryRowContext(ctx,
		`INSERT INTO paragraphs (content) VALUES ($1) RETURNING id, content, created_at`,
		content,
	).Scan(&p.ID, &p.Content, &p.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: inserting paragraph: %v", apperrors.ErrStoreUnavailable, err)
	}
	return &p, nil
}

func (s *PostgresStore) GetByID(ctx context.Context, id int64) (*Paragraph, error) {
	var p Paragraph
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT id, content, created_at FROM paragraphs WHERE id = $1`,
		id,
	).Scan(&p.ID, &p.Content, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, apperrors.Newf(apperrors.ErrParagraphNotFound, 404, "paragraph %d", id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: querying paragraph %d: %v", apperrors.ErrStoreUnavailable, id, err)
	}
	return &p, nil
}

// GetByIDs fetches the given paragraphs ordered by id. Missing ids are
// silently skipped: the index may briefly reference paragraphs a racing
// rebuild has not seen.
func (s *PostgresStore) GetByIDs(ctx context.Context, ids []int64) ([]Paragraph, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT id, content, created_at FROM paragraphs WHERE id = ANY($1) ORDER BY id`,
		pq.Array(ids),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: querying paragraphs by id: %v", apperrors.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	paragraphs := make([]Paragraph, 0, len(ids))
	for rows.Next() {
		var p Paragraph
		if err := rows.Scan(&p.ID, &p.Content, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning paragraph row: %w", err)
		}
		paragraphs = append(paragraphs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating paragraph rows: %v", apperrors.ErrStoreUnavailable, err)
	}
	return paragraphs, nil
}

func (s *PostgresStore) ScanAll(ctx context.Context, fn func(p Paragraph) error) error {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT id, content, created_at FROM paragraphs ORDER BY id`)
	if err != nil {
		return fmt.Errorf("%w: scanning paragraphs: %v", apperrors.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	for rows.Next() {
		var p Paragraph
		if err := rows.Scan(&p.ID, &p.Content, &p.CreatedAt); err != nil {
			return fmt.Errorf("scanning paragraph row: %w", err)
		}
		if err := fn(p); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("%w: iterating paragraph rows: %v", apperrors.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM paragraphs`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("%w: counting paragraphs: %v", apperrors.ErrStoreUnavailable, err)
	}
	return count, nil
}
