package event

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/whispers/whispers/internal/platform/apperr"
)

// speciesEvent resolves the event id above a location species.
func (s *Service) speciesEvent(ctx context.Context, speciesID uuid.UUID) (uuid.UUID, error) {
	ls, err := s.repo.GetSpecies(ctx, speciesID)
	if err != nil {
		return uuid.Nil, err
	}
	loc, err := s.repo.GetLocation(ctx, ls.EventLocationID)
	if err != nil {
		return uuid.Nil, err
	}
	return loc.EventID, nil
}

// checkSpeciesDiagnosisUnique rejects a second use of a diagnosis on the
// same location species.
func (s *Service) checkSpeciesDiagnosisUnique(ctx context.Context, eventID uuid.UUID, sd *SpeciesDiagnosis) error {
	all, err := s.repo.ListSpeciesDiagnosesByEvent(ctx, eventID)
	if err != nil {
		return fmt.Errorf("list species diagnoses: %w", err)
	}
	for _, other := range all {
		if other.ID != sd.ID && other.LocationSpeciesID == sd.LocationSpeciesID && other.DiagnosisID == sd.DiagnosisID {
			return apperr.Validation(msgSpeciesDiagUnique)
		}
	}
	return nil
}

// CreateSpeciesDiagnosis adds a diagnosis to a location species and
// propagates its suspect status to the matching event diagnosis.
func (s *Service) CreateSpeciesDiagnosis(ctx context.Context, sd *SpeciesDiagnosis, version *int) (*SpeciesDiagnosis, error) {
	eventID, err := s.speciesEvent(ctx, sd.LocationSpeciesID)
	if err != nil {
		if apperr.IsNotFound(err) {
			return nil, observe(RecordSpeciesDiagnosis, apperr.Validation(fmt.Sprintf("location_species %s does not exist.", sd.LocationSpeciesID)))
		}
		return nil, err
	}
	c, err := s.newChecker(ctx)
	if err != nil {
		return nil, err
	}
	c.speciesDiagnosis(sd)
	if err := c.err(ctx); err != nil {
		return nil, observe(RecordSpeciesDiagnosis, err)
	}

	err = s.mutate(ctx, mutation{
		eventID: eventID,
		version: version,
		lockMsg: msgLockedSpeciesDiagnosis,
		record:  RecordSpeciesDiagnosis,
		action:  ActionCreated,
		apply: func(ctx context.Context, e *Event, actor uuid.UUID) (uuid.UUID, error) {
			sd.ID = uuid.Nil
			if err := s.checkSpeciesDiagnosisUnique(ctx, e.ID, sd); err != nil {
				return uuid.Nil, err
			}
			sd.CreatedBy, sd.ModifiedBy = actor, actor
			if err := s.repo.CreateSpeciesDiagnosis(ctx, sd); err != nil {
				return uuid.Nil, fmt.Errorf("create species diagnosis: %w", err)
			}
			return sd.ID, s.propagate(ctx, e, sd, actor)
		},
	})
	if err != nil {
		return nil, err
	}
	return sd, nil
}

// UpdateSpeciesDiagnosis overlays the JSON object raw onto a species
// diagnosis. Changing the diagnosis drops the old event diagnosis when no
// other species diagnosis carries it.
func (s *Service) UpdateSpeciesDiagnosis(ctx context.Context, id uuid.UUID, raw []byte, version *int) (*SpeciesDiagnosis, error) {
	sd, err := s.repo.GetSpeciesDiagnosis(ctx, id)
	if err != nil {
		return nil, err
	}
	orig := *sd
	if err := mergeJSON(sd, raw, func() {
		sd.ID, sd.LocationSpeciesID = orig.ID, orig.LocationSpeciesID
		sd.CreatedBy, sd.CreatedAt = orig.CreatedBy, orig.CreatedAt
	}); err != nil {
		return nil, observe(RecordSpeciesDiagnosis, err)
	}
	eventID, err := s.speciesEvent(ctx, sd.LocationSpeciesID)
	if err != nil {
		return nil, err
	}
	c, err := s.newChecker(ctx)
	if err != nil {
		return nil, err
	}
	c.speciesDiagnosis(sd)
	if err := c.err(ctx); err != nil {
		return nil, observe(RecordSpeciesDiagnosis, err)
	}

	err = s.mutate(ctx, mutation{
		eventID: eventID,
		version: version,
		lockMsg: msgLockedSpeciesDiagnosis,
		record:  RecordSpeciesDiagnosis,
		action:  ActionUpdated,
		apply: func(ctx context.Context, e *Event, actor uuid.UUID) (uuid.UUID, error) {
			if err := s.checkSpeciesDiagnosisUnique(ctx, e.ID, sd); err != nil {
				return uuid.Nil, err
			}
			sd.ModifiedBy = actor
			if err := s.repo.UpdateSpeciesDiagnosis(ctx, sd); err != nil {
				return uuid.Nil, fmt.Errorf("update species diagnosis: %w", err)
			}
			if sd.DiagnosisID != orig.DiagnosisID {
				if err := s.dropOrphans(ctx, e, map[int]bool{orig.DiagnosisID: true}, actor); err != nil {
					return uuid.Nil, err
				}
			}
			return sd.ID, s.propagate(ctx, e, sd, actor)
		},
	})
	if err != nil {
		return nil, err
	}
	return sd, nil
}

// DeleteSpeciesDiagnosis removes a species diagnosis and, when it was the
// last one with its diagnosis, the matching event diagnosis.
func (s *Service) DeleteSpeciesDiagnosis(ctx context.Context, id uuid.UUID, version *int) error {
	sd, err := s.repo.GetSpeciesDiagnosis(ctx, id)
	if err != nil {
		return err
	}
	eventID, err := s.speciesEvent(ctx, sd.LocationSpeciesID)
	if err != nil {
		return err
	}
	return s.mutate(ctx, mutation{
		eventID: eventID,
		version: version,
		lockMsg: msgLockedSpeciesDiagnosis,
		record:  RecordSpeciesDiagnosis,
		action:  ActionDeleted,
		apply: func(ctx context.Context, e *Event, actor uuid.UUID) (uuid.UUID, error) {
			if err := s.repo.DeleteSpeciesDiagnosis(ctx, sd.ID); err != nil {
				return uuid.Nil, fmt.Errorf("delete species diagnosis: %w", err)
			}
			return sd.ID, s.dropOrphans(ctx, e, map[int]bool{sd.DiagnosisID: true}, actor)
		},
	})
}

// checkEventDiagnosis applies the match, uniqueness and placeholder rules.
// It returns the ids of other event diagnoses to delete, which is every
// other one when the diagnosis is "Undetermined".
func (s *Service) checkEventDiagnosis(ctx context.Context, e *Event, d *EventDiagnosis) ([]uuid.UUID, error) {
	c, err := s.newChecker(ctx)
	if err != nil {
		return nil, err
	}
	c.diagnosis(d.DiagnosisID)
	if err := c.err(ctx); err != nil {
		return nil, err
	}
	var m apperr.Messages
	if c.ph.Is(d.DiagnosisID) {
		d.Suspect = false
	} else {
		t, err := s.subtree(ctx, e.ID)
		if err != nil {
			return nil, err
		}
		m.AddIf(!t.diagnosisIDs(uuid.Nil)[d.DiagnosisID], msgEventDiagMatch)
	}
	eds, err := s.repo.ListEventDiagnoses(ctx, e.ID)
	if err != nil {
		return nil, fmt.Errorf("list event diagnoses: %w", err)
	}
	var others []uuid.UUID
	for _, other := range eds {
		if other.ID == d.ID {
			continue
		}
		m.AddIf(other.DiagnosisID == d.DiagnosisID, msgEventDiagUnique)
		others = append(others, other.ID)
	}
	if err := m.Err(); err != nil {
		return nil, err
	}
	d.DiagnosisString = DisplayName(c.diags[d.DiagnosisID].Name, d.Suspect)
	if d.DiagnosisID == c.ph.Undetermined {
		return others, nil
	}
	return nil, nil
}

// CreateEventDiagnosis adds an event-level diagnosis.
func (s *Service) CreateEventDiagnosis(ctx context.Context, d *EventDiagnosis, version *int) (*EventDiagnosis, error) {
	err := s.mutate(ctx, mutation{
		eventID: d.EventID,
		version: version,
		lockMsg: msgLockedEventDiagnosis,
		record:  RecordEventDiagnosis,
		action:  ActionCreated,
		apply: func(ctx context.Context, e *Event, actor uuid.UUID) (uuid.UUID, error) {
			d.ID = uuid.Nil
			remove, err := s.checkEventDiagnosis(ctx, e, d)
			if err != nil {
				return uuid.Nil, err
			}
			for _, id := range remove {
				if err := s.repo.DeleteEventDiagnosis(ctx, id); err != nil {
					return uuid.Nil, fmt.Errorf("delete event diagnosis: %w", err)
				}
			}
			d.CreatedBy, d.ModifiedBy = actor, actor
			if err := s.repo.CreateEventDiagnosis(ctx, d); err != nil {
				return uuid.Nil, fmt.Errorf("create event diagnosis: %w", err)
			}
			return d.ID, nil
		},
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// UpdateEventDiagnosis overlays the JSON object raw onto an event diagnosis.
func (s *Service) UpdateEventDiagnosis(ctx context.Context, id uuid.UUID, raw []byte, version *int) (*EventDiagnosis, error) {
	d, err := s.repo.GetEventDiagnosis(ctx, id)
	if err != nil {
		return nil, err
	}
	orig := *d
	if err := mergeJSON(d, raw, func() {
		d.ID, d.EventID = orig.ID, orig.EventID
		d.CreatedBy, d.CreatedAt = orig.CreatedBy, orig.CreatedAt
	}); err != nil {
		return nil, observe(RecordEventDiagnosis, err)
	}
	err = s.mutate(ctx, mutation{
		eventID: d.EventID,
		version: version,
		lockMsg: msgLockedEventDiagnosis,
		record:  RecordEventDiagnosis,
		action:  ActionUpdated,
		apply: func(ctx context.Context, e *Event, actor uuid.UUID) (uuid.UUID, error) {
			remove, err := s.checkEventDiagnosis(ctx, e, d)
			if err != nil {
				return uuid.Nil, err
			}
			for _, id := range remove {
				if err := s.repo.DeleteEventDiagnosis(ctx, id); err != nil {
					return uuid.Nil, fmt.Errorf("delete event diagnosis: %w", err)
				}
			}
			d.ModifiedBy = actor
			if err := s.repo.UpdateEventDiagnosis(ctx, d); err != nil {
				return uuid.Nil, fmt.Errorf("update event diagnosis: %w", err)
			}
			return d.ID, nil
		},
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// DeleteEventDiagnosis removes an event diagnosis and restores the
// placeholder when none remain.
func (s *Service) DeleteEventDiagnosis(ctx context.Context, id uuid.UUID, version *int) error {
	d, err := s.repo.GetEventDiagnosis(ctx, id)
	if err != nil {
		return err
	}
	return s.mutate(ctx, mutation{
		eventID: d.EventID,
		version: version,
		lockMsg: msgLockedEventDiagnosis,
		record:  RecordEventDiagnosis,
		action:  ActionDeleted,
		apply: func(ctx context.Context, e *Event, actor uuid.UUID) (uuid.UUID, error) {
			if err := s.repo.DeleteEventDiagnosis(ctx, d.ID); err != nil {
				return uuid.Nil, fmt.Errorf("delete event diagnosis: %w", err)
			}
			return d.ID, s.maintainPlaceholders(ctx, e, actor)
		},
	})
}
