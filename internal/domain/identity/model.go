package identity

import (
	"time"

	"github.com/google/uuid"

	"github.com/whispers/whispers/internal/platform/auth"
)

// Organization maps to the organizations table.
type Organization struct {
	ID                   uuid.UUID  `db:"id" json:"id"`
	Name                 string     `db:"name" json:"name"`
	ParentOrganizationID *uuid.UUID `db:"parent_organization_id" json:"parent_organization,omitempty"`
	Laboratory           bool       `db:"laboratory" json:"laboratory"`
	Private              bool       `db:"private" json:"private"`
	CreatedBy            uuid.UUID  `db:"created_by" json:"created_by"`
	ModifiedBy           uuid.UUID  `db:"modified_by" json:"modified_by"`
	CreatedAt            time.Time  `db:"created_at" json:"created_date"`
	UpdatedAt            time.Time  `db:"updated_at" json:"modified_date"`
}

// User maps to the users table.
type User struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	Username       string     `db:"username" json:"username"`
	Email          string     `db:"email" json:"email"`
	FirstName      string     `db:"first_name" json:"first_name"`
	LastName       string     `db:"last_name" json:"last_name"`
	Role           auth.Role  `db:"role" json:"role"`
	OrganizationID *uuid.UUID `db:"organization_id" json:"organization,omitempty"`
	Active         bool       `db:"active" json:"active"`
	CreatedAt      time.Time  `db:"created_at" json:"created_date"`
	UpdatedAt      time.Time  `db:"updated_at" json:"modified_date"`
}

// Contact is a person record owned by an organization.
type Contact struct {
	ID                  uuid.UUID  `db:"id" json:"id"`
	FirstName           string     `db:"first_name" json:"first_name"`
	LastName            string     `db:"last_name" json:"last_name"`
	Email               string     `db:"email" json:"email"`
	Phone               string     `db:"phone" json:"phone"`
	Title               string     `db:"title" json:"title"`
	OrganizationID      *uuid.UUID `db:"organization_id" json:"organization,omitempty"`
	OwnerOrganizationID *uuid.UUID `db:"owner_organization_id" json:"owner_organization,omitempty"`
	CreatedBy           uuid.UUID  `db:"created_by" json:"created_by"`
	ModifiedBy          uuid.UUID  `db:"modified_by" json:"modified_by"`
	CreatedAt           time.Time  `db:"created_at" json:"created_date"`
	UpdatedAt           time.Time  `db:"updated_at" json:"modified_date"`
}

// Circle is a named group of users that can be shared into an event's
// collaborator lists.
type Circle struct {
	ID          uuid.UUID   `db:"id" json:"id"`
	Name        string      `db:"name" json:"name"`
	Description string      `db:"description" json:"description"`
	UserIDs     []uuid.UUID `json:"users"`
	CreatedBy   uuid.UUID   `db:"created_by" json:"created_by"`
	ModifiedBy  uuid.UUID   `db:"modified_by" json:"modified_by"`
	CreatedAt   time.Time   `db:"created_at" json:"created_date"`
	UpdatedAt   time.Time   `db:"updated_at" json:"modified_date"`
}
