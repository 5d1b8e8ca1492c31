package search

import (
	"time"

	"github.com/google/uuid"
)

// SystemUserID owns searches run by anonymous visitors.
var SystemUserID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

// Search is a recorded event query and how often its owner ran it.
type Search struct {
	ID          uuid.UUID         `db:"id" json:"id"`
	Name        string            `db:"name" json:"name"`
	Data        map[string]string `db:"data" json:"data"`
	Fingerprint string            `db:"fingerprint" json:"-"`
	Count       int               `db:"count" json:"count"`
	CreatedBy   uuid.UUID         `db:"created_by" json:"created_by"`
	CreatedAt   time.Time         `db:"created_at" json:"created_date"`
	UpdatedAt   time.Time         `db:"updated_at" json:"modified_date"`
}

// Popular is one entry of the most-used searches across all users.
type Popular struct {
	Data     map[string]string `json:"data"`
	UseCount int               `json:"use_count"`
}
