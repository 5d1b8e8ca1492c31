package superevent

import (
	"time"

	"github.com/google/uuid"
)

// SuperEvent groups related events under one admin-curated umbrella.
type SuperEvent struct {
	ID         uuid.UUID   `db:"id" json:"id"`
	CategoryID *int        `db:"category_id" json:"category,omitempty"`
	EventIDs   []uuid.UUID `json:"events"`
	CreatedBy  uuid.UUID   `db:"created_by" json:"created_by"`
	ModifiedBy uuid.UUID   `db:"modified_by" json:"modified_by"`
	CreatedAt  time.Time   `db:"created_at" json:"created_date"`
	UpdatedAt  time.Time   `db:"updated_at" json:"modified_date"`
}
