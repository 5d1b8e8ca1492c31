package event

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/whispers/whispers/internal/platform/apperr"
)

// NewEvent is the create payload: the event plus its nested first locations.
type NewEvent struct {
	EventType          int              `json:"event_type"`
	EventReference     string           `json:"event_reference"`
	Complete           bool             `json:"complete"`
	Public             *bool            `json:"public"`
	LegalStatusID      *int             `json:"legal_status"`
	ReadCollaborators  []uuid.UUID      `json:"new_read_collaborators"`
	WriteCollaborators []uuid.UUID      `json:"new_write_collaborators"`
	ReadCircles        []uuid.UUID      `json:"new_read_circles"`
	WriteCircles       []uuid.UUID      `json:"new_write_circles"`
	Locations          []NewLocation    `json:"new_event_locations"`
	EventDiagnoses     []EventDiagnosis `json:"new_event_diagnoses"`
}

type NewLocation struct {
	EventLocation
	Species  []NewSpecies           `json:"new_location_species"`
	Contacts []EventLocationContact `json:"new_location_contacts"`
}

type NewSpecies struct {
	LocationSpecies
	Diagnoses []SpeciesDiagnosis `json:"new_species_diagnoses"`
}

func (in *NewEvent) subtree() Subtree {
	var t Subtree
	for i := range in.Locations {
		loc := &in.Locations[i]
		t.Locations = append(t.Locations, &loc.EventLocation)
		for j := range loc.Species {
			sp := &loc.Species[j]
			t.Species = append(t.Species, &sp.LocationSpecies)
			for k := range sp.Diagnoses {
				t.Diagnoses = append(t.Diagnoses, &sp.Diagnoses[k])
			}
		}
	}
	return t
}

// EventPatch holds the caller-settable event fields. Nil means unchanged.
// Derived fields are not part of the patch.
type EventPatch struct {
	EventType          *int         `json:"event_type"`
	EventReference     *string      `json:"event_reference"`
	Complete           *bool        `json:"complete"`
	Public             *bool        `json:"public"`
	LegalStatusID      *int         `json:"legal_status"`
	QualityCheck       *Date        `json:"quality_check"`
	ReadCollaborators  *[]uuid.UUID `json:"read_collaborators"`
	WriteCollaborators *[]uuid.UUID `json:"write_collaborators"`
	Version            *int         `json:"version"`
}

// reopens reports whether the patch sets complete=false.
func (p *EventPatch) reopens() bool {
	return p.Complete != nil && !*p.Complete
}

// onlyQualityCheck reports whether the patch sets quality_check and nothing else.
func (p *EventPatch) onlyQualityCheck() bool {
	return p.QualityCheck != nil && p.EventType == nil && p.EventReference == nil &&
		p.Complete == nil && p.Public == nil && p.LegalStatusID == nil &&
		p.ReadCollaborators == nil && p.WriteCollaborators == nil
}

// mergeJSON overlays the JSON object raw onto dst, then lets keep restore
// the fields callers may not change.
func mergeJSON(dst interface{}, raw []byte, keep func()) error {
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, dst); err != nil {
			return apperr.Validation(fmt.Sprintf("invalid request body: %v", err))
		}
	}
	if keep != nil {
		keep()
	}
	return nil
}

// prune drops fields equal to e's current values, so a full-body PUT of an
// unchanged record carries no changes.
func (p *EventPatch) prune(e *Event) {
	if p.EventType != nil && *p.EventType == e.EventType {
		p.EventType = nil
	}
	if p.EventReference != nil && *p.EventReference == e.EventReference {
		p.EventReference = nil
	}
	if p.Complete != nil && *p.Complete == e.Complete {
		p.Complete = nil
	}
	if p.Public != nil && *p.Public == e.Public {
		p.Public = nil
	}
	if p.LegalStatusID != nil && intEq(p.LegalStatusID, e.LegalStatusID) {
		p.LegalStatusID = nil
	}
	if p.QualityCheck != nil && dateEq(p.QualityCheck, e.QualityCheck) {
		p.QualityCheck = nil
	}
	if p.ReadCollaborators != nil && sameIDs(*p.ReadCollaborators, e.ReadCollaborators) {
		p.ReadCollaborators = nil
	}
	if p.WriteCollaborators != nil && sameIDs(*p.WriteCollaborators, e.WriteCollaborators) {
		p.WriteCollaborators = nil
	}
}

func sameIDs(a, b []uuid.UUID) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[uuid.UUID]int, len(a))
	for _, id := range a {
		seen[id]++
	}
	for _, id := range b {
		if seen[id] == 0 {
			return false
		}
		seen[id]--
	}
	return true
}

// dedupe returns ids without repeats, keeping first occurrences.
func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if id == uuid.Nil || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
