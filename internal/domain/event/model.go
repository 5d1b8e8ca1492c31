package event

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Event types with derived affected-count rules. Other ids are valid and
// carry a null affected count.
const (
	TypeMorbidityMortality = 1
	TypeSurveillance       = 2
)

// LabBasisID is the "Necropsy and/or ancillary tests performed at a
// diagnostic laboratory" diagnosis basis.
const LabBasisID = 3

const (
	PendingDiagnosis      = "Pending"
	UndeterminedDiagnosis = "Undetermined"
)

const dateLayout = "2006-01-02"

// Date is a calendar date without a time of day.
type Date struct {
	time.Time
}

func NewDate(y int, m time.Month, d int) Date {
	return Date{time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	return Date{t}, nil
}

// DatePtr is a convenience for literals in tests and fixtures.
func DatePtr(y int, m time.Month, d int) *Date {
	dt := NewDate(y, m, d)
	return &dt
}

func (d Date) String() string { return d.Format(dateLayout) }

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d *Date) Scan(src interface{}) error {
	switch v := src.(type) {
	case time.Time:
		d.Time = time.Date(v.Year(), v.Month(), v.Day(), 0, 0, 0, 0, time.UTC)
		return nil
	case string:
		parsed, err := ParseDate(v)
		if err != nil {
			return err
		}
		*d = parsed
		return nil
	case nil:
		*d = Date{}
		return nil
	}
	return fmt.Errorf("cannot scan %T into Date", src)
}

func (d Date) Value() (driver.Value, error) {
	return d.Time, nil
}

// Event is the root of the reporting graph. StartDate, EndDate and
// AffectedCount are derived from the subtree and never set by callers.
type Event struct {
	ID                 uuid.UUID   `json:"id"`
	EventType          int         `json:"event_type"`
	EventReference     string      `json:"event_reference"`
	Complete           bool        `json:"complete"`
	StartDate          *Date       `json:"start_date"`
	EndDate            *Date       `json:"end_date"`
	AffectedCount      *int        `json:"affected_count"`
	Public             bool        `json:"public"`
	QualityCheck       *Date       `json:"quality_check"`
	LegalStatusID      *int        `json:"legal_status,omitempty"`
	OrganizationID     *uuid.UUID  `json:"organization,omitempty"`
	ReadCollaborators  []uuid.UUID `json:"read_collaborators"`
	WriteCollaborators []uuid.UUID `json:"write_collaborators"`
	Version            int         `json:"version"`
	CreatedBy          uuid.UUID   `json:"created_by"`
	ModifiedBy         uuid.UUID   `json:"modified_by"`
	CreatedAt          time.Time   `json:"created_date"`
	UpdatedAt          time.Time   `json:"modified_date"`
}

type EventLocation struct {
	ID                       uuid.UUID `json:"id"`
	EventID                  uuid.UUID `json:"event"`
	Name                     string    `json:"name"`
	StartDate                *Date     `json:"start_date"`
	EndDate                  *Date     `json:"end_date"`
	CountryID                *int      `json:"country"`
	AdministrativeLevelOneID *int      `json:"administrative_level_one"`
	AdministrativeLevelTwoID *int      `json:"administrative_level_two"`
	LandOwnershipID          *int      `json:"land_ownership"`
	FlywayID                 *int      `json:"flyway"`
	GNISID                   string    `json:"gnis_id"`
	GNISName                 string    `json:"gnis_name"`
	Latitude                 *float64  `json:"latitude"`
	Longitude                *float64  `json:"longitude"`
	Priority                 *int      `json:"priority"`
	CreatedBy                uuid.UUID `json:"created_by"`
	ModifiedBy               uuid.UUID `json:"modified_by"`
	CreatedAt                time.Time `json:"created_date"`
	UpdatedAt                time.Time `json:"modified_date"`
}

type LocationSpecies struct {
	ID                 uuid.UUID `json:"id"`
	EventLocationID    uuid.UUID `json:"event_location"`
	SpeciesID          int       `json:"species"`
	PopulationCount    *int      `json:"population_count"`
	SickCount          *int      `json:"sick_count"`
	DeadCount          *int      `json:"dead_count"`
	SickCountEstimated *int      `json:"sick_count_estimated"`
	DeadCountEstimated *int      `json:"dead_count_estimated"`
	Captive            bool      `json:"captive"`
	Priority           *int      `json:"priority"`
	CreatedBy          uuid.UUID `json:"created_by"`
	ModifiedBy         uuid.UUID `json:"modified_by"`
	CreatedAt          time.Time `json:"created_date"`
	UpdatedAt          time.Time `json:"modified_date"`
}

// Affected is max(dead_est, dead, 0) + max(sick_est, sick, 0).
func (ls *LocationSpecies) Affected() int {
	return maxOf(ls.DeadCountEstimated, ls.DeadCount) + maxOf(ls.SickCountEstimated, ls.SickCount)
}

// HasCount reports whether any of the four sick/dead counts is positive.
func (ls *LocationSpecies) HasCount() bool {
	return val(ls.DeadCountEstimated) > 0 || val(ls.DeadCount) > 0 ||
		val(ls.SickCountEstimated) > 0 || val(ls.SickCount) > 0
}

type SpeciesDiagnosis struct {
	ID                uuid.UUID   `json:"id"`
	LocationSpeciesID uuid.UUID   `json:"location_species"`
	DiagnosisID       int         `json:"diagnosis"`
	CauseID           *int        `json:"cause"`
	BasisID           *int        `json:"basis"`
	Suspect           bool        `json:"suspect"`
	Priority          *int        `json:"priority"`
	TestedCount       *int        `json:"tested_count"`
	DiagnosisCount    *int        `json:"diagnosis_count"`
	PositiveCount     *int        `json:"positive_count"`
	SuspectCount      *int        `json:"suspect_count"`
	Pooled            bool        `json:"pooled"`
	OrganizationIDs   []uuid.UUID `json:"organizations"`
	CreatedBy         uuid.UUID   `json:"created_by"`
	ModifiedBy        uuid.UUID   `json:"modified_by"`
	CreatedAt         time.Time   `json:"created_date"`
	UpdatedAt         time.Time   `json:"modified_date"`
}

type EventDiagnosis struct {
	ID              uuid.UUID `json:"id"`
	EventID         uuid.UUID `json:"event"`
	DiagnosisID     int       `json:"diagnosis"`
	DiagnosisString string    `json:"diagnosis_string"`
	Suspect         bool      `json:"suspect"`
	Major           bool      `json:"major"`
	Priority        *int      `json:"priority"`
	CreatedBy       uuid.UUID `json:"created_by"`
	ModifiedBy      uuid.UUID `json:"modified_by"`
	CreatedAt       time.Time `json:"created_date"`
	UpdatedAt       time.Time `json:"modified_date"`
}

// DisplayName appends " suspect" to name when the diagnosis is suspect.
func DisplayName(name string, suspect bool) string {
	if suspect {
		return name + " suspect"
	}
	return name
}

type EventLocationContact struct {
	ID              uuid.UUID `json:"id"`
	EventLocationID uuid.UUID `json:"event_location"`
	ContactID       uuid.UUID `json:"contact"`
	ContactTypeID   *int      `json:"contact_type"`
	CreatedBy       uuid.UUID `json:"created_by"`
	ModifiedBy      uuid.UUID `json:"modified_by"`
	CreatedAt       time.Time `json:"created_date"`
	UpdatedAt       time.Time `json:"modified_date"`
}

// Diagnosis is a row of the diagnoses lookup table.
type Diagnosis struct {
	ID              int    `json:"id"`
	Name            string `json:"name"`
	DiagnosisTypeID *int   `json:"diagnosis_type"`
	HighImpact      bool   `json:"high_impact"`
}

// Summary is an event with its full subtree.
type Summary struct {
	*Event
	Locations        []*LocationSummary `json:"eventlocations"`
	EventDiagnoses   []*EventDiagnosis  `json:"eventdiagnoses"`
	PermissionSource string             `json:"permission_source"`
}

type LocationSummary struct {
	*EventLocation
	Species  []*SpeciesSummary       `json:"locationspecies"`
	Contacts []*EventLocationContact `json:"locationcontacts"`
}

type SpeciesSummary struct {
	*LocationSpecies
	Diagnoses []*SpeciesDiagnosis `json:"speciesdiagnoses"`
}

func val(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

func maxOf(a, b *int) int {
	m := 0
	if v := val(a); v > m {
		m = v
	}
	if v := val(b); v > m {
		m = v
	}
	return m
}

func intPtr(v int) *int { return &v }
