package comment

import (
	"time"

	"github.com/google/uuid"
)

// OwnerKind names the record type a comment is attached to.
type OwnerKind string

const (
	KindEvent          OwnerKind = "event"
	KindEventLocation  OwnerKind = "eventlocation"
	KindServiceRequest OwnerKind = "servicerequest"
	KindSuperEvent     OwnerKind = "superevent"
)

// Owner identifies the record a comment belongs to.
type Owner struct {
	Kind OwnerKind `db:"owner_kind" json:"object_type"`
	ID   uuid.UUID `db:"owner_id" json:"object_id"`
}

func EventOwner(id uuid.UUID) Owner          { return Owner{Kind: KindEvent, ID: id} }
func LocationOwner(id uuid.UUID) Owner       { return Owner{Kind: KindEventLocation, ID: id} }
func ServiceRequestOwner(id uuid.UUID) Owner { return Owner{Kind: KindServiceRequest, ID: id} }
func SuperEventOwner(id uuid.UUID) Owner     { return Owner{Kind: KindSuperEvent, ID: id} }

// Comment maps to the comments table.
type Comment struct {
	ID uuid.UUID `db:"id" json:"id"`
	Owner
	Comment     string    `db:"comment" json:"comment"`
	CommentType string    `db:"comment_type" json:"comment_type"`
	CreatedBy   uuid.UUID `db:"created_by" json:"created_by"`
	ModifiedBy  uuid.UUID `db:"modified_by" json:"modified_by"`
	CreatedAt   time.Time `db:"created_at" json:"created_date"`
	UpdatedAt   time.Time `db:"updated_at" json:"modified_date"`
}
