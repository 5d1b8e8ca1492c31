package notification

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, n *Notification) error
	GetByID(ctx context.Context, id uuid.UUID) (*Notification, error)
	MarkRead(ctx context.Context, id uuid.UUID) error
	ListByRecipient(ctx context.Context, recipientID uuid.UUID, unreadOnly bool, limit, offset int) ([]*Notification, int, error)
}

type CueRepository interface {
	// SaveStandard creates the user's cue of that type, or updates the
	// preference of the one that exists.
	SaveStandard(ctx context.Context, c *StandardCue) error
	CreateCustom(ctx context.Context, c *CustomCue) error
	// StandardCues and CustomCues return every user's cues when userID is nil.
	StandardCues(ctx context.Context, userID *uuid.UUID) ([]*StandardCue, error)
	CustomCues(ctx context.Context, userID *uuid.UUID) ([]*CustomCue, error)
	// CueOwner returns the user of the standard or custom cue with id.
	CueOwner(ctx context.Context, id uuid.UUID) (uuid.UUID, error)
	DeleteCue(ctx context.Context, id uuid.UUID) error
}

type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}
