// Package store provides the authoritative paragraph store. PostgreSQL holds
// the source of truth; the index cache is always a derived, rebuildable
// projection of it.
package store

import (
	"context"
	"time"
)

// Paragraph is a stored text document. IDs are assigned by the store.
type Paragraph struct {
	ID        int64     `json:"id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is the persistence surface the rest of the service depends on.
// ScanAll drives rebuilds and the slow search path; it must be restartable
// and visit every paragraph exactly once per call.
type Store interface {
	Insert(ctx context.Context, content string) (*Paragraph, error)
	GetByID(ctx context.Context, id int64) (*Paragraph, error)
	GetByIDs(ctx context.Context, ids []int64) ([]Paragraph, error)
	ScanAll(ctx context.Context, fn func(p Paragraph) error) error
	Count(ctx context.Context) (int64, error)
}
