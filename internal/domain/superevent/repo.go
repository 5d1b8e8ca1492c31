package superevent

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, se *SuperEvent) error
	GetByID(ctx context.Context, id uuid.UUID) (*SuperEvent, error)
	List(ctx context.Context, limit, offset int) ([]*SuperEvent, int, error)
	// AddEvents links events, ignoring ones already linked, and stamps
	// modified_by.
	AddEvents(ctx context.Context, id uuid.UUID, eventIDs []uuid.UUID, modifiedBy uuid.UUID) error
}

// Transactor runs fn inside one database transaction.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}
