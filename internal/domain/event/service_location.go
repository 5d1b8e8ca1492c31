package event

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/whispers/whispers/internal/platform/apperr"
)

// insertLocation writes a location with its nested species, species
// diagnoses and contacts. The payload must already be checked.
func (s *Service) insertLocation(ctx context.Context, eventID uuid.UUID, in *NewLocation, actor uuid.UUID) (*EventLocation, error) {
	loc := in.EventLocation
	loc.ID = uuid.Nil
	loc.EventID = eventID
	loc.CreatedBy, loc.ModifiedBy = actor, actor
	if loc.Name == "" && loc.GNISName != "" {
		loc.Name = loc.GNISName
	}
	if err := s.repo.CreateLocation(ctx, &loc); err != nil {
		return nil, fmt.Errorf("create location: %w", err)
	}
	for i := range in.Species {
		if _, err := s.insertSpecies(ctx, loc.ID, &in.Species[i], actor); err != nil {
			return nil, err
		}
	}
	for i := range in.Contacts {
		ct := in.Contacts[i]
		ct.ID = uuid.Nil
		ct.EventLocationID = loc.ID
		ct.CreatedBy, ct.ModifiedBy = actor, actor
		if err := s.repo.CreateLocationContact(ctx, &ct); err != nil {
			return nil, fmt.Errorf("create location contact: %w", err)
		}
	}
	return &loc, nil
}

func (s *Service) insertSpecies(ctx context.Context, locationID uuid.UUID, in *NewSpecies, actor uuid.UUID) (*LocationSpecies, error) {
	ls := in.LocationSpecies
	ls.ID = uuid.Nil
	ls.EventLocationID = locationID
	ls.CreatedBy, ls.ModifiedBy = actor, actor
	if err := s.repo.CreateSpecies(ctx, &ls); err != nil {
		return nil, fmt.Errorf("create location species: %w", err)
	}
	for i := range in.Diagnoses {
		sd := in.Diagnoses[i]
		sd.ID = uuid.Nil
		sd.LocationSpeciesID = ls.ID
		sd.CreatedBy, sd.ModifiedBy = actor, actor
		if err := s.repo.CreateSpeciesDiagnosis(ctx, &sd); err != nil {
			return nil, fmt.Errorf("create species diagnosis: %w", err)
		}
	}
	return &ls, nil
}

// LocationEventID returns the event a location belongs to.
func (s *Service) LocationEventID(ctx context.Context, locationID uuid.UUID) (uuid.UUID, error) {
	loc, err := s.repo.GetLocation(ctx, locationID)
	if err != nil {
		return uuid.Nil, err
	}
	return loc.EventID, nil
}

// CreateLocation adds a location, with optional nested species, to an open
// event.
func (s *Service) CreateLocation(ctx context.Context, in *NewLocation, version *int) (*EventLocation, error) {
	c, err := s.newChecker(ctx)
	if err != nil {
		return nil, err
	}
	c.m.AddIf(in.EventID == uuid.Nil, "event is required.")
	c.newLocation(in)
	if err := c.err(ctx); err != nil {
		return nil, observe(RecordLocation, err)
	}

	var out *EventLocation
	err = s.mutate(ctx, mutation{
		eventID: in.EventID,
		version: version,
		lockMsg: msgLockedLocation,
		record:  RecordLocation,
		action:  ActionCreated,
		apply: func(ctx context.Context, e *Event, actor uuid.UUID) (uuid.UUID, error) {
			loc, err := s.insertLocation(ctx, e.ID, in, actor)
			if err != nil {
				return uuid.Nil, err
			}
			for i := range in.Species {
				if err := s.propagateAll(ctx, e, in.Species[i].Diagnoses, actor); err != nil {
					return uuid.Nil, err
				}
			}
			out = loc
			return loc.ID, nil
		},
	})
	return out, err
}

// UpdateLocation overlays the JSON object raw onto a location.
func (s *Service) UpdateLocation(ctx context.Context, id uuid.UUID, raw []byte, version *int) (*EventLocation, error) {
	loc, err := s.repo.GetLocation(ctx, id)
	if err != nil {
		return nil, err
	}
	orig := *loc
	if err := mergeJSON(loc, raw, func() {
		loc.ID, loc.EventID = orig.ID, orig.EventID
		loc.CreatedBy, loc.CreatedAt = orig.CreatedBy, orig.CreatedAt
	}); err != nil {
		return nil, observe(RecordLocation, err)
	}
	c, err := s.newChecker(ctx)
	if err != nil {
		return nil, err
	}
	c.location(loc)
	if err := c.err(ctx); err != nil {
		return nil, observe(RecordLocation, err)
	}

	err = s.mutate(ctx, mutation{
		eventID: loc.EventID,
		version: version,
		lockMsg: msgLockedLocation,
		record:  RecordLocation,
		action:  ActionUpdated,
		apply: func(ctx context.Context, e *Event, actor uuid.UUID) (uuid.UUID, error) {
			loc.ModifiedBy = actor
			if err := s.repo.UpdateLocation(ctx, loc); err != nil {
				return uuid.Nil, fmt.Errorf("update location: %w", err)
			}
			return loc.ID, nil
		},
	})
	if err != nil {
		return nil, err
	}
	return loc, nil
}

// DeleteLocation removes a location with its species and diagnoses, then
// drops event diagnoses left without a matching species diagnosis.
func (s *Service) DeleteLocation(ctx context.Context, id uuid.UUID, version *int) error {
	loc, err := s.repo.GetLocation(ctx, id)
	if err != nil {
		return err
	}
	return s.mutate(ctx, mutation{
		eventID: loc.EventID,
		version: version,
		lockMsg: msgLockedLocation,
		record:  RecordLocation,
		action:  ActionDeleted,
		apply: func(ctx context.Context, e *Event, actor uuid.UUID) (uuid.UUID, error) {
			t, err := s.subtree(ctx, e.ID)
			if err != nil {
				return uuid.Nil, err
			}
			removed := diagnosesUnder(t, func(ls *LocationSpecies) bool { return ls.EventLocationID == loc.ID })
			if err := s.repo.DeleteLocation(ctx, loc.ID); err != nil {
				return uuid.Nil, fmt.Errorf("delete location: %w", err)
			}
			return loc.ID, s.dropOrphans(ctx, e, removed, actor)
		},
	})
}

// diagnosesUnder returns the diagnosis ids of species diagnoses whose
// location species satisfies keep.
func diagnosesUnder(t Subtree, keep func(*LocationSpecies) bool) map[int]bool {
	species := map[uuid.UUID]bool{}
	for _, ls := range t.Species {
		if keep(ls) {
			species[ls.ID] = true
		}
	}
	ids := map[int]bool{}
	for _, sd := range t.Diagnoses {
		if species[sd.LocationSpeciesID] {
			ids[sd.DiagnosisID] = true
		}
	}
	return ids
}

// CreateSpecies adds a species, with optional nested diagnoses, to a
// location of an open event.
func (s *Service) CreateSpecies(ctx context.Context, in *NewSpecies, version *int) (*LocationSpecies, error) {
	loc, err := s.repo.GetLocation(ctx, in.EventLocationID)
	if err != nil {
		if apperr.IsNotFound(err) {
			return nil, observe(RecordSpecies, apperr.Validation(fmt.Sprintf("event_location %s does not exist.", in.EventLocationID)))
		}
		return nil, err
	}
	c, err := s.newChecker(ctx)
	if err != nil {
		return nil, err
	}
	c.newSpecies(in)
	if err := c.err(ctx); err != nil {
		return nil, observe(RecordSpecies, err)
	}

	var out *LocationSpecies
	err = s.mutate(ctx, mutation{
		eventID: loc.EventID,
		version: version,
		lockMsg: msgLockedSpecies,
		record:  RecordSpecies,
		action:  ActionCreated,
		apply: func(ctx context.Context, e *Event, actor uuid.UUID) (uuid.UUID, error) {
			ls, err := s.insertSpecies(ctx, loc.ID, in, actor)
			if err != nil {
				return uuid.Nil, err
			}
			if err := s.propagateAll(ctx, e, in.Diagnoses, actor); err != nil {
				return uuid.Nil, err
			}
			out = ls
			return ls.ID, nil
		},
	})
	return out, err
}

// UpdateSpecies overlays the JSON object raw onto a location species.
func (s *Service) UpdateSpecies(ctx context.Context, id uuid.UUID, raw []byte, version *int) (*LocationSpecies, error) {
	ls, err := s.repo.GetSpecies(ctx, id)
	if err != nil {
		return nil, err
	}
	orig := *ls
	if err := mergeJSON(ls, raw, func() {
		ls.ID, ls.EventLocationID = orig.ID, orig.EventLocationID
		ls.CreatedBy, ls.CreatedAt = orig.CreatedBy, orig.CreatedAt
	}); err != nil {
		return nil, observe(RecordSpecies, err)
	}
	loc, err := s.repo.GetLocation(ctx, ls.EventLocationID)
	if err != nil {
		return nil, err
	}
	c, err := s.newChecker(ctx)
	if err != nil {
		return nil, err
	}
	c.species(ls)
	if err := c.err(ctx); err != nil {
		return nil, observe(RecordSpecies, err)
	}

	err = s.mutate(ctx, mutation{
		eventID: loc.EventID,
		version: version,
		lockMsg: msgLockedSpecies,
		record:  RecordSpecies,
		action:  ActionUpdated,
		apply: func(ctx context.Context, e *Event, actor uuid.UUID) (uuid.UUID, error) {
			ls.ModifiedBy = actor
			if err := s.repo.UpdateSpecies(ctx, ls); err != nil {
				return uuid.Nil, fmt.Errorf("update location species: %w", err)
			}
			return ls.ID, nil
		},
	})
	if err != nil {
		return nil, err
	}
	return ls, nil
}

// DeleteSpecies removes a location species and its diagnoses.
func (s *Service) DeleteSpecies(ctx context.Context, id uuid.UUID, version *int) error {
	ls, err := s.repo.GetSpecies(ctx, id)
	if err != nil {
		return err
	}
	loc, err := s.repo.GetLocation(ctx, ls.EventLocationID)
	if err != nil {
		return err
	}
	return s.mutate(ctx, mutation{
		eventID: loc.EventID,
		version: version,
		lockMsg: msgLockedSpecies,
		record:  RecordSpecies,
		action:  ActionDeleted,
		apply: func(ctx context.Context, e *Event, actor uuid.UUID) (uuid.UUID, error) {
			t, err := s.subtree(ctx, e.ID)
			if err != nil {
				return uuid.Nil, err
			}
			removed := diagnosesUnder(t, func(x *LocationSpecies) bool { return x.ID == ls.ID })
			if err := s.repo.DeleteSpecies(ctx, ls.ID); err != nil {
				return uuid.Nil, fmt.Errorf("delete location species: %w", err)
			}
			return ls.ID, s.dropOrphans(ctx, e, removed, actor)
		},
	})
}

// CreateLocationContact links a contact to a location of an open event.
func (s *Service) CreateLocationContact(ctx context.Context, ct *EventLocationContact, version *int) (*EventLocationContact, error) {
	loc, err := s.repo.GetLocation(ctx, ct.EventLocationID)
	if err != nil {
		if apperr.IsNotFound(err) {
			return nil, observe(RecordLocationContact, apperr.Validation(fmt.Sprintf("event_location %s does not exist.", ct.EventLocationID)))
		}
		return nil, err
	}
	c, err := s.newChecker(ctx)
	if err != nil {
		return nil, err
	}
	c.contact(ct)
	if err := c.err(ctx); err != nil {
		return nil, observe(RecordLocationContact, err)
	}
	err = s.mutate(ctx, mutation{
		eventID: loc.EventID,
		version: version,
		lockMsg: msgLockedContact,
		record:  RecordLocationContact,
		action:  ActionCreated,
		apply: func(ctx context.Context, e *Event, actor uuid.UUID) (uuid.UUID, error) {
			ct.ID = uuid.Nil
			ct.CreatedBy, ct.ModifiedBy = actor, actor
			if err := s.repo.CreateLocationContact(ctx, ct); err != nil {
				return uuid.Nil, fmt.Errorf("create location contact: %w", err)
			}
			return ct.ID, nil
		},
	})
	if err != nil {
		return nil, err
	}
	return ct, nil
}

func (s *Service) DeleteLocationContact(ctx context.Context, id uuid.UUID, version *int) error {
	ct, err := s.repo.GetLocationContact(ctx, id)
	if err != nil {
		return err
	}
	loc, err := s.repo.GetLocation(ctx, ct.EventLocationID)
	if err != nil {
		return err
	}
	return s.mutate(ctx, mutation{
		eventID: loc.EventID,
		version: version,
		lockMsg: msgLockedContact,
		record:  RecordLocationContact,
		action:  ActionDeleted,
		apply: func(ctx context.Context, e *Event, actor uuid.UUID) (uuid.UUID, error) {
			if err := s.repo.DeleteLocationContact(ctx, ct.ID); err != nil {
				return uuid.Nil, fmt.Errorf("delete location contact: %w", err)
			}
			return ct.ID, nil
		},
	})
}
