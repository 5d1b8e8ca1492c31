package identity

import (
	"context"

	"github.com/google/uuid"
)

type OrganizationRepository interface {
	Create(ctx context.Context, o *Organization) error
	GetByID(ctx context.Context, id uuid.UUID) (*Organization, error)
	List(ctx context.Context, limit, offset int) ([]*Organization, int, error)
	// Laboratories reports the laboratory flag of each existing id.
	Laboratories(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]bool, error)
	// Lineage returns id followed by its parent organizations up to the root.
	Lineage(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error)
}

type UserRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	ByEmails(ctx context.Context, emails []string) ([]*User, error)
	ByIDs(ctx context.Context, ids []uuid.UUID) ([]*User, error)
	// Emails maps user ids to their email addresses.
	Emails(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error)
}

type ContactRepository interface {
	Create(ctx context.Context, c *Contact) error
	// List returns contacts owned by ownerOrg, or every contact when ownerOrg is nil.
	List(ctx context.Context, ownerOrg *uuid.UUID, limit, offset int) ([]*Contact, int, error)
}

type CircleRepository interface {
	Create(ctx context.Context, c *Circle) error
	// List returns circles created by createdBy, or every circle when it is nil.
	List(ctx context.Context, createdBy *uuid.UUID, limit, offset int) ([]*Circle, int, error)
	Members(ctx context.Context, circleIDs []uuid.UUID) ([]uuid.UUID, error)
}
