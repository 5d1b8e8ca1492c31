package event

import (
	"time"

	"github.com/google/uuid"

	"github.com/whispers/whispers/internal/platform/auth"
)

// PublicEvent is what anyone may see of an event.
type PublicEvent struct {
	ID            uuid.UUID `json:"id"`
	EventType     int       `json:"event_type"`
	Complete      bool      `json:"complete"`
	StartDate     *Date     `json:"start_date"`
	EndDate       *Date     `json:"end_date"`
	AffectedCount *int      `json:"affected_count"`
}

// CollaboratorEvent adds the working fields shared with circle members and
// same-organization updaters.
type CollaboratorEvent struct {
	PublicEvent
	EventReference string     `json:"event_reference"`
	Public         bool       `json:"public"`
	LegalStatusID  *int       `json:"legal_status,omitempty"`
	OrganizationID *uuid.UUID `json:"organization,omitempty"`
	Version        int        `json:"version"`
	CreatedBy      uuid.UUID  `json:"created_by"`
	ModifiedBy     uuid.UUID  `json:"modified_by"`
	CreatedAt      time.Time  `json:"created_date"`
	UpdatedAt      time.Time  `json:"modified_date"`
}

func publicEvent(e *Event) PublicEvent {
	return PublicEvent{
		ID:            e.ID,
		EventType:     e.EventType,
		Complete:      e.Complete,
		StartDate:     e.StartDate,
		EndDate:       e.EndDate,
		AffectedCount: e.AffectedCount,
	}
}

// Present shapes an event for the decided view. Owners and administrators
// see the whole record.
func Present(e *Event, d auth.Decision) interface{} {
	switch d.View {
	case auth.ViewOwner, auth.ViewAdmin:
		return e
	case auth.ViewCollaborator:
		return &CollaboratorEvent{
			PublicEvent:    publicEvent(e),
			EventReference: e.EventReference,
			Public:         e.Public,
			LegalStatusID:  e.LegalStatusID,
			OrganizationID: e.OrganizationID,
			Version:        e.Version,
			CreatedBy:      e.CreatedBy,
			ModifiedBy:     e.ModifiedBy,
			CreatedAt:      e.CreatedAt,
			UpdatedAt:      e.UpdatedAt,
		}
	}
	pe := publicEvent(e)
	return &pe
}

// PresentList shapes a page of search results.
func PresentList(events []*Event, d auth.Decision) []interface{} {
	out := make([]interface{}, len(events))
	for i, e := range events {
		out[i] = Present(e, d)
	}
	return out
}

// PublicSummary is the anonymous rendition of an event summary.
type PublicSummary struct {
	PublicEvent
	EventDiagnoses []PublicDiagnosis `json:"eventdiagnoses"`
	Locations      []PublicLocation  `json:"eventlocations"`
}

type PublicDiagnosis struct {
	DiagnosisID     int    `json:"diagnosis"`
	DiagnosisString string `json:"diagnosis_string"`
}

type PublicLocation struct {
	CountryID                *int  `json:"country"`
	AdministrativeLevelOneID *int  `json:"administrative_level_one"`
	AdministrativeLevelTwoID *int  `json:"administrative_level_two"`
	Species                  []int `json:"species"`
}

// PresentSummary shapes a summary for the decided view. Non-public views
// carry the whole subtree.
func PresentSummary(sum *Summary, d auth.Decision) interface{} {
	if d.View != auth.ViewPublic {
		if d.View == auth.ViewCollaborator {
			return &struct {
				*CollaboratorEvent
				Locations        []*LocationSummary `json:"eventlocations"`
				EventDiagnoses   []*EventDiagnosis  `json:"eventdiagnoses"`
				PermissionSource string             `json:"permission_source"`
			}{Present(sum.Event, d).(*CollaboratorEvent), sum.Locations, sum.EventDiagnoses, sum.PermissionSource}
		}
		return sum
	}
	if !d.Allowed {
		pe := publicEvent(sum.Event)
		return &pe
	}
	ps := &PublicSummary{PublicEvent: publicEvent(sum.Event)}
	for _, ed := range sum.EventDiagnoses {
		ps.EventDiagnoses = append(ps.EventDiagnoses, PublicDiagnosis{DiagnosisID: ed.DiagnosisID, DiagnosisString: ed.DiagnosisString})
	}
	for _, loc := range sum.Locations {
		pl := PublicLocation{
			CountryID:                loc.CountryID,
			AdministrativeLevelOneID: loc.AdministrativeLevelOneID,
			AdministrativeLevelTwoID: loc.AdministrativeLevelTwoID,
		}
		for _, sp := range loc.Species {
			pl.Species = append(pl.Species, sp.SpeciesID)
		}
		ps.Locations = append(ps.Locations, pl)
	}
	return ps
}
