package servicerequest

import (
	"time"

	"github.com/google/uuid"

	"github.com/whispers/whispers/internal/domain/comment"
)

// ServiceRequest asks NWHC for diagnostic or consultation services on an
// event.
type ServiceRequest struct {
	ID                uuid.UUID  `db:"id" json:"id"`
	EventID           uuid.UUID  `db:"event_id" json:"event"`
	RequestTypeID     int        `db:"request_type_id" json:"request_type"`
	RequestResponseID *int       `db:"request_response_id" json:"request_response,omitempty"`
	ResponseBy        *uuid.UUID `db:"response_by" json:"response_by,omitempty"`
	CreatedBy         uuid.UUID  `db:"created_by" json:"created_by"`
	ModifiedBy        uuid.UUID  `db:"modified_by" json:"modified_by"`
	CreatedAt         time.Time  `db:"created_at" json:"created_date"`
	UpdatedAt         time.Time  `db:"updated_at" json:"modified_date"`
}

// NewServiceRequest is the create payload with optional nested comments.
type NewServiceRequest struct {
	ServiceRequest
	NewComments []comment.NewComment `json:"new_comments,omitempty"`
}
