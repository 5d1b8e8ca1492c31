package comment

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, c *Comment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Comment, error)
	Delete(ctx context.Context, id uuid.UUID) error
	// List returns the owner's comments, oldest first. A non-empty contains
	// keeps only comments whose text includes it.
	List(ctx context.Context, owner Owner, contains string) ([]*Comment, error)
}
