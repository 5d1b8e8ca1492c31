package event

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/whispers/whispers/internal/platform/auth"
)

// Repository persists the event graph. Every method runs on the
// transaction bound to ctx when there is one.
type Repository interface {
	CreateEvent(ctx context.Context, e *Event) error
	GetEvent(ctx context.Context, id uuid.UUID) (*Event, error)
	// GetEventForUpdate locks the event row until the transaction ends.
	GetEventForUpdate(ctx context.Context, id uuid.UUID) (*Event, error)
	UpdateEvent(ctx context.Context, e *Event) error
	// UpdateAggregates writes only the derived columns.
	UpdateAggregates(ctx context.Context, id uuid.UUID, a Aggregates) error
	// BumpVersion increments the version and stamps modified_by.
	BumpVersion(ctx context.Context, id, modifiedBy uuid.UUID) (int, error)
	DeleteEvent(ctx context.Context, id uuid.UUID) error
	SetCollaborators(ctx context.Context, eventID uuid.UUID, read, write []uuid.UUID) error
	Search(ctx context.Context, f *Filter, scope Scope, limit, offset int) ([]*Event, int, error)
	// ChangedOn returns events created (or, when created is false, modified
	// but not created) on the given day.
	ChangedOn(ctx context.Context, day time.Time, created bool) ([]*Event, error)
	// OpenCreatedOn returns open events created on the given day.
	OpenCreatedOn(ctx context.Context, day time.Time) ([]*Event, error)

	CreateLocation(ctx context.Context, l *EventLocation) error
	GetLocation(ctx context.Context, id uuid.UUID) (*EventLocation, error)
	UpdateLocation(ctx context.Context, l *EventLocation) error
	DeleteLocation(ctx context.Context, id uuid.UUID) error
	ListLocations(ctx context.Context, eventID uuid.UUID) ([]*EventLocation, error)

	CreateSpecies(ctx context.Context, ls *LocationSpecies) error
	GetSpecies(ctx context.Context, id uuid.UUID) (*LocationSpecies, error)
	UpdateSpecies(ctx context.Context, ls *LocationSpecies) error
	DeleteSpecies(ctx context.Context, id uuid.UUID) error
	ListSpeciesByEvent(ctx context.Context, eventID uuid.UUID) ([]*LocationSpecies, error)

	CreateSpeciesDiagnosis(ctx context.Context, sd *SpeciesDiagnosis) error
	GetSpeciesDiagnosis(ctx context.Context, id uuid.UUID) (*SpeciesDiagnosis, error)
	UpdateSpeciesDiagnosis(ctx context.Context, sd *SpeciesDiagnosis) error
	DeleteSpeciesDiagnosis(ctx context.Context, id uuid.UUID) error
	ListSpeciesDiagnosesByEvent(ctx context.Context, eventID uuid.UUID) ([]*SpeciesDiagnosis, error)

	CreateEventDiagnosis(ctx context.Context, d *EventDiagnosis) error
	GetEventDiagnosis(ctx context.Context, id uuid.UUID) (*EventDiagnosis, error)
	UpdateEventDiagnosis(ctx context.Context, d *EventDiagnosis) error
	DeleteEventDiagnosis(ctx context.Context, id uuid.UUID) error
	ListEventDiagnoses(ctx context.Context, eventID uuid.UUID) ([]*EventDiagnosis, error)

	CreateLocationContact(ctx context.Context, c *EventLocationContact) error
	GetLocationContact(ctx context.Context, id uuid.UUID) (*EventLocationContact, error)
	DeleteLocationContact(ctx context.Context, id uuid.UUID) error
	ListLocationContacts(ctx context.Context, eventID uuid.UUID) ([]*EventLocationContact, error)
}

// Lookup tables referenced by event records.
const (
	TableEventTypes      = "event_types"
	TableSpecies         = "species"
	TableDiagnosisCauses = "diagnosis_causes"
	TableDiagnosisBases  = "diagnosis_bases"
	TableCountries       = "countries"
	TableAdminLevelOnes  = "administrative_level_ones"
	TableAdminLevelTwos  = "administrative_level_twos"
	TableLandOwnerships  = "land_ownerships"
	TableFlyways         = "flyways"
	TableLegalStatuses   = "legal_statuses"
	TableContactTypes    = "contact_types"
	TableDiagnosisTypes  = "diagnosis_types"

	TableServiceRequestTypes     = "service_request_types"
	TableServiceRequestResponses = "service_request_responses"
	TableSuperEventCategories    = "superevent_categories"
)

// LookupRepository reads reference data.
type LookupRepository interface {
	Diagnoses(ctx context.Context) (map[int]Diagnosis, error)
	// Names returns id to name for one lookup table.
	Names(ctx context.Context, table string) (map[int]string, error)
}

// Directory answers identity questions the event rules depend on.
type Directory interface {
	// Laboratories reports, for each existing organization id, whether it
	// is a laboratory. Unknown ids are absent from the result.
	Laboratories(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]bool, error)
	CircleMembers(ctx context.Context, circleIDs []uuid.UUID) ([]uuid.UUID, error)
}

// Transactor runs fn inside one database transaction.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ChangeEmitter records a change to be published after commit.
type ChangeEmitter interface {
	Emit(ctx context.Context, c Change) error
}

// Change describes one committed mutation of an event graph.
type Change struct {
	EventID    uuid.UUID `json:"event_id"`
	Action     string    `json:"action"`
	Record     string    `json:"record"`
	RecordID   uuid.UUID `json:"record_id"`
	Version    int       `json:"version"`
	Complete   bool      `json:"complete"`
	ActorID    uuid.UUID `json:"actor_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Scope narrows list queries; it mirrors auth.Scope with the caller's
// identity attached.
type Scope struct {
	Kind           auth.Scope
	UserID         uuid.UUID
	OrganizationID uuid.UUID
}
