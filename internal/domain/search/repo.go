package search

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// Upsert inserts the search with count 1, or increments the count of
	// the owner's search with the same fingerprint.
	Upsert(ctx context.Context, s *Search) error
	GetByID(ctx context.Context, id uuid.UUID) (*Search, error)
	Rename(ctx context.Context, id uuid.UUID, name string) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Search, int, error)
	// Top sums counts per fingerprint across users, highest first.
	Top(ctx context.Context, limit int) ([]Popular, error)
}
