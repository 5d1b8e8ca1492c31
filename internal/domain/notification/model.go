package notification

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Notification is one inbox entry for one recipient.
type Notification struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	RecipientID uuid.UUID  `db:"recipient_id" json:"recipient"`
	Source      string     `db:"source" json:"source"`
	EventID     *uuid.UUID `db:"event_id" json:"event,omitempty"`
	Read        bool       `db:"read" json:"read"`
	ClientPage  string     `db:"client_page" json:"client_page"`
	Subject     string     `db:"subject" json:"subject"`
	Body        string     `db:"body" json:"body"`
	CreatedAt   time.Time  `db:"created_at" json:"created_date"`
}

// Preference gates whether a cue fires for new events, modified events, and
// whether it also sends email.
type Preference struct {
	ID                 uuid.UUID `db:"id" json:"id"`
	CreateWhenNew      bool      `db:"create_when_new" json:"create_when_new"`
	CreateWhenModified bool      `db:"create_when_modified" json:"create_when_modified"`
	SendEmail          bool      `db:"send_email" json:"send_email"`
}

// Fires reports whether the preference asks for events in the given set.
func (p Preference) Fires(created bool) bool {
	if created {
		return p.CreateWhenNew
	}
	return p.CreateWhenModified
}

type StandardType string

const (
	StandardOwn          StandardType = "Own"
	StandardOrganization StandardType = "Organization"
	StandardCollaborator StandardType = "Collaborator"
	StandardAll          StandardType = "All"
)

// StandardTypes lists the standard cue types in evaluation order.
var StandardTypes = []StandardType{StandardOwn, StandardOrganization, StandardCollaborator, StandardAll}

func (t StandardType) Valid() bool {
	for _, s := range StandardTypes {
		if s == t {
			return true
		}
	}
	return false
}

// StandardCue subscribes a user to one of the built-in event groupings.
type StandardCue struct {
	ID           uuid.UUID    `db:"id" json:"id"`
	UserID       uuid.UUID    `db:"user_id" json:"created_by"`
	StandardType StandardType `db:"standard_type" json:"standard_type"`
	Preference   Preference   `json:"notification_cue_preference"`
}

// Operators for ValueSet.
const (
	OpAnd = "AND"
	OpOr  = "OR"
)

// ValueSet is a list of lookup ids joined by AND or OR. AND is the default.
type ValueSet struct {
	Values   []int  `json:"values,omitempty"`
	Operator string `json:"operator,omitempty"`
}

func (v ValueSet) Empty() bool { return len(v.Values) == 0 }

func (v ValueSet) op() string {
	if strings.EqualFold(v.Operator, OpOr) {
		return OpOr
	}
	return OpAnd
}

// Matches reports whether have satisfies the set.
func (v ValueSet) Matches(have []int) bool {
	set := make(map[int]bool, len(have))
	for _, h := range have {
		set[h] = true
	}
	if v.op() == OpOr {
		for _, want := range v.Values {
			if set[want] {
				return true
			}
		}
		return false
	}
	for _, want := range v.Values {
		if !set[want] {
			return false
		}
	}
	return true
}

// Affected-count comparison operators.
const (
	CountGTE = "__gte"
	CountLTE = "__lte"
)

// CustomCue matches events against user-chosen criteria.
type CustomCue struct {
	ID                    uuid.UUID  `db:"id" json:"id"`
	UserID                uuid.UUID  `db:"user_id" json:"created_by"`
	Preference            Preference `json:"notification_cue_preference"`
	EventID               *uuid.UUID `db:"event_id" json:"event,omitempty"`
	AffectedCount         *int       `db:"event_affected_count" json:"event_affected_count,omitempty"`
	AffectedCountOperator string     `db:"event_affected_count_operator" json:"event_affected_count_operator"`
	LandOwnership         ValueSet   `db:"event_location_land_ownership" json:"event_location_land_ownership"`
	AdminLevelOne         ValueSet   `db:"event_location_administrative_level_one" json:"event_location_administrative_level_one"`
	Species               ValueSet   `db:"species" json:"species"`
	Diagnosis             ValueSet   `db:"species_diagnosis_diagnosis" json:"species_diagnosis_diagnosis"`
	CreatedAt             time.Time  `db:"created_at" json:"created_date"`
}

// HasCriteria is false for a cue that would match nothing.
func (c *CustomCue) HasCriteria() bool {
	return c.EventID != nil || c.AffectedCount != nil ||
		!c.LandOwnership.Empty() || !c.AdminLevelOne.Empty() ||
		!c.Species.Empty() || !c.Diagnosis.Empty()
}

func (c *CustomCue) lte() bool {
	return strings.EqualFold(strings.TrimLeft(c.AffectedCountOperator, "_"), "lte")
}

// Draft is a notification before fan-out to its recipients.
type Draft struct {
	Recipients []uuid.UUID
	Source     string
	EventID    uuid.UUID
	ClientPage string
	Subject    string
	Body       string
	SendEmail  bool
	EmailTo    []string
	// Rule labels the metric the draft is counted under.
	Rule string
}
