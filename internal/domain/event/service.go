package event

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/whispers/whispers/internal/platform/apperr"
	"github.com/whispers/whispers/internal/platform/auth"
	"github.com/whispers/whispers/internal/platform/telemetry"
)

// Change actions.
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
)

// Record kinds carried on changes and validation metrics.
const (
	RecordEvent            = "event"
	RecordLocation         = "eventlocation"
	RecordSpecies          = "locationspecies"
	RecordSpeciesDiagnosis = "speciesdiagnosis"
	RecordEventDiagnosis   = "eventdiagnosis"
	RecordLocationContact  = "eventlocationcontact"
)

type Service struct {
	repo    Repository
	lookups LookupRepository
	dir     Directory
	tx      Transactor
	emitter ChangeEmitter
	logger  zerolog.Logger
	now     func() time.Time
}

func NewService(repo Repository, lookups LookupRepository, dir Directory, tx Transactor) *Service {
	return &Service{
		repo:    repo,
		lookups: lookups,
		dir:     dir,
		tx:      tx,
		logger:  zerolog.Nop(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// SetEmitter attaches the change emitter written to inside each mutation.
func (s *Service) SetEmitter(e ChangeEmitter) { s.emitter = e }

func (s *Service) SetLogger(l zerolog.Logger) { s.logger = l }

// AccessRecord is the authorization shape of an event.
func AccessRecord(e *Event) auth.Record {
	r := auth.Record{
		OwnerID:     e.CreatedBy,
		ReadCircle:  e.ReadCollaborators,
		WriteCircle: e.WriteCollaborators,
		Public:      e.Public,
	}
	if e.OrganizationID != nil {
		r.OrganizationID = *e.OrganizationID
	}
	return r
}

// Access loads an event and resolves the caller's decision for action.
// Read never fails on permission: denied callers get the public view.
func (s *Service) Access(ctx context.Context, eventID uuid.UUID, action auth.Action) (*Event, auth.Decision, error) {
	e, err := s.repo.GetEvent(ctx, eventID)
	if err != nil {
		return nil, auth.Decision{}, err
	}
	if action == auth.ActionRead {
		return e, ReadDecision(ctx, e), nil
	}
	d := auth.Resolve(auth.PrincipalFromContext(ctx), AccessRecord(e), action)
	if (action == auth.ActionUpdate || action == auth.ActionDelete) && !d.Allowed {
		return e, d, apperr.Permission("you do not have permission to %s event %s", action, e.ID)
	}
	return e, d, nil
}

// ReadDecision is the view the caller gets of e; anyone may see the public
// fields.
func ReadDecision(ctx context.Context, e *Event) auth.Decision {
	d := auth.Resolve(auth.PrincipalFromContext(ctx), AccessRecord(e), auth.ActionRead)
	if !d.Allowed {
		return auth.Decision{View: auth.ViewPublic}
	}
	return d
}

func checkVersion(e *Event, expected *int) error {
	if expected != nil && *expected != e.Version {
		return apperr.Conflict(*expected, e.Version)
	}
	return nil
}

// observe counts rejected mutations by record kind and reason.
func observe(record string, err error) error {
	if err == nil {
		return nil
	}
	var (
		ve *apperr.ValidationError
		le *apperr.LockedRecordError
		ce *apperr.ConflictError
		pe *apperr.PermissionError
	)
	switch {
	case errors.As(err, &ve):
		telemetry.IncValidationFailure(record, "validation")
	case errors.As(err, &le):
		telemetry.IncValidationFailure(record, "locked")
	case errors.As(err, &ce):
		telemetry.IncValidationFailure(record, "conflict")
	case errors.As(err, &pe):
		telemetry.IncValidationFailure(record, "permission")
	}
	return err
}

// mutation is one write below an event.
type mutation struct {
	eventID uuid.UUID
	version *int
	// lockMsg, when set, rejects the mutation while the event is complete.
	lockMsg string
	record  string
	action  string
	apply   func(ctx context.Context, e *Event, actor uuid.UUID) (uuid.UUID, error)
}

// mutate runs mu inside one transaction on the locked parent event:
// authorize, check version and lock, apply, recompute, bump the version
// and record the change.
func (s *Service) mutate(ctx context.Context, mu mutation) error {
	p := auth.PrincipalFromContext(ctx)
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		e, err := s.repo.GetEventForUpdate(ctx, mu.eventID)
		if err != nil {
			return err
		}
		if !auth.Resolve(p, AccessRecord(e), auth.ActionUpdate).Allowed {
			return apperr.Permission("you do not have permission to change event %s", e.ID)
		}
		if err := checkVersion(e, mu.version); err != nil {
			return err
		}
		if mu.lockMsg != "" && e.Complete {
			return apperr.Locked(mu.lockMsg)
		}
		recordID, err := mu.apply(ctx, e, p.UserID)
		if err != nil {
			return err
		}
		return s.finish(ctx, e, p.UserID, mu.record, mu.action, recordID)
	})
	return observe(mu.record, err)
}

// finish recomputes, bumps the version and records the change.
func (s *Service) finish(ctx context.Context, e *Event, actor uuid.UUID, record, action string, recordID uuid.UUID) error {
	if _, err := s.Recompute(ctx, e); err != nil {
		return err
	}
	v, err := s.repo.BumpVersion(ctx, e.ID, actor)
	if err != nil {
		return fmt.Errorf("bump version: %w", err)
	}
	e.Version = v
	e.ModifiedBy = actor
	return s.emit(ctx, Change{
		EventID:  e.ID,
		Action:   action,
		Record:   record,
		RecordID: recordID,
		Version:  e.Version,
		Complete: e.Complete,
		ActorID:  actor,
	})
}

func (s *Service) emit(ctx context.Context, c Change) error {
	if s.emitter == nil {
		return nil
	}
	c.OccurredAt = s.now()
	if err := s.emitter.Emit(ctx, c); err != nil {
		return fmt.Errorf("record change: %w", err)
	}
	return nil
}

// CreateEvent creates an event with its nested locations, species, species
// diagnoses, contacts and event diagnoses in one transaction.
func (s *Service) CreateEvent(ctx context.Context, in *NewEvent) (*Event, error) {
	p := auth.PrincipalFromContext(ctx)
	if !auth.Resolve(p, auth.Record{}, auth.ActionCreate).Allowed {
		return nil, observe(RecordEvent, apperr.Permission("your role may not create events"))
	}

	c, err := s.newChecker(ctx)
	if err != nil {
		return nil, err
	}
	c.event(in.EventType, in.LegalStatusID)
	for i := range in.Locations {
		c.newLocation(&in.Locations[i])
	}
	checkNewEvent(in, &c.m)
	nested := in.subtree().diagnosisIDs(uuid.Nil)
	for i := range in.EventDiagnoses {
		d := &in.EventDiagnoses[i]
		c.diagnosis(d.DiagnosisID)
		c.m.AddIf(!c.ph.Is(d.DiagnosisID) && !nested[d.DiagnosisID], msgEventDiagMatch)
	}
	if err := c.err(ctx); err != nil {
		return nil, observe(RecordEvent, err)
	}

	e := &Event{
		ID:             uuid.New(),
		EventType:      in.EventType,
		EventReference: in.EventReference,
		Complete:       in.Complete,
		Public:         in.Public == nil || *in.Public,
		LegalStatusID:  in.LegalStatusID,
		Version:        1,
		CreatedBy:      p.UserID,
		ModifiedBy:     p.UserID,
	}
	if p.OrganizationID != uuid.Nil {
		org := p.OrganizationID
		e.OrganizationID = &org
	}

	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		read, write, err := s.expandCollaborators(ctx, in)
		if err != nil {
			return err
		}
		e.ReadCollaborators, e.WriteCollaborators = read, write
		if err := s.repo.CreateEvent(ctx, e); err != nil {
			return fmt.Errorf("create event: %w", err)
		}
		if len(read)+len(write) > 0 {
			if err := s.repo.SetCollaborators(ctx, e.ID, read, write); err != nil {
				return fmt.Errorf("set collaborators: %w", err)
			}
		}
		for i := range in.Locations {
			if _, err := s.insertLocation(ctx, e.ID, &in.Locations[i], p.UserID); err != nil {
				return err
			}
		}
		if err := s.insertEventDiagnoses(ctx, e, in.EventDiagnoses, c.ph, c.diags, p.UserID); err != nil {
			return err
		}
		for _, loc := range in.Locations {
			for _, sp := range loc.Species {
				if err := s.propagateAll(ctx, e, sp.Diagnoses, p.UserID); err != nil {
					return err
				}
			}
		}
		if err := s.maintainPlaceholders(ctx, e, p.UserID); err != nil {
			return err
		}
		if _, err := s.Recompute(ctx, e); err != nil {
			return err
		}
		return s.emit(ctx, Change{EventID: e.ID, Action: ActionCreated, Record: RecordEvent, RecordID: e.ID,
			Version: e.Version, Complete: e.Complete, ActorID: p.UserID})
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("event_id", e.ID.String()).Int("event_type", e.EventType).
		Bool("complete", e.Complete).Msg("event created")
	return e, nil
}

func (s *Service) expandCollaborators(ctx context.Context, in *NewEvent) (read, write []uuid.UUID, err error) {
	read = append(read, in.ReadCollaborators...)
	write = append(write, in.WriteCollaborators...)
	if len(in.ReadCircles) > 0 {
		members, err := s.dir.CircleMembers(ctx, in.ReadCircles)
		if err != nil {
			return nil, nil, fmt.Errorf("expand read circles: %w", err)
		}
		read = append(read, members...)
	}
	if len(in.WriteCircles) > 0 {
		members, err := s.dir.CircleMembers(ctx, in.WriteCircles)
		if err != nil {
			return nil, nil, fmt.Errorf("expand write circles: %w", err)
		}
		write = append(write, members...)
	}
	return dedupe(read), dedupe(write), nil
}

func (s *Service) insertEventDiagnoses(ctx context.Context, e *Event, in []EventDiagnosis, ph Placeholders, diags map[int]Diagnosis, actor uuid.UUID) error {
	for i := range in {
		if in[i].DiagnosisID == ph.Undetermined {
			in = in[i : i+1]
			break
		}
	}
	seen := map[int]bool{}
	for i := range in {
		d := in[i]
		if seen[d.DiagnosisID] {
			continue
		}
		seen[d.DiagnosisID] = true
		d.ID = uuid.Nil
		d.EventID = e.ID
		d.CreatedBy, d.ModifiedBy = actor, actor
		if ph.Is(d.DiagnosisID) {
			d.Suspect = false
		}
		d.DiagnosisString = DisplayName(diags[d.DiagnosisID].Name, d.Suspect)
		if err := s.repo.CreateEventDiagnosis(ctx, &d); err != nil {
			return fmt.Errorf("create event diagnosis: %w", err)
		}
	}
	return nil
}

// GetEvent returns the event with the caller's read decision.
func (s *Service) GetEvent(ctx context.Context, id uuid.UUID) (*Event, auth.Decision, error) {
	return s.Access(ctx, id, auth.ActionRead)
}

// UpdateEvent applies patch under the completion state machine.
func (s *Service) UpdateEvent(ctx context.Context, id uuid.UUID, patch *EventPatch) (*Event, error) {
	p := auth.PrincipalFromContext(ctx)
	var out *Event
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		e, err := s.repo.GetEventForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !auth.Resolve(p, AccessRecord(e), auth.ActionUpdate).Allowed {
			return apperr.Permission("you do not have permission to change event %s", e.ID)
		}
		if err := checkVersion(e, patch.Version); err != nil {
			return err
		}
		patch.prune(e)

		var t Subtree
		if patch.Complete != nil && *patch.Complete {
			if t, err = s.subtree(ctx, e.ID); err != nil {
				return err
			}
		}
		if err := checkTransition(p, e, patch, t); err != nil {
			return err
		}
		if patch.EventType != nil || patch.LegalStatusID != nil {
			c, err := s.newChecker(ctx)
			if err != nil {
				return err
			}
			if patch.EventType != nil {
				c.ref(TableEventTypes, "event_type", patch.EventType)
			}
			c.ref(TableLegalStatuses, "legal_status", patch.LegalStatusID)
			if err := c.err(ctx); err != nil {
				return err
			}
		}

		from := stateOf(e.Complete)
		collaborators := patch.ReadCollaborators != nil || patch.WriteCollaborators != nil
		applyPatch(e, patch)
		e.ReadCollaborators, e.WriteCollaborators = dedupe(e.ReadCollaborators), dedupe(e.WriteCollaborators)
		e.ModifiedBy = p.UserID
		if err := s.repo.UpdateEvent(ctx, e); err != nil {
			return fmt.Errorf("update event: %w", err)
		}
		if collaborators {
			if err := s.repo.SetCollaborators(ctx, e.ID, e.ReadCollaborators, e.WriteCollaborators); err != nil {
				return fmt.Errorf("set collaborators: %w", err)
			}
		}
		if to := stateOf(e.Complete); to != from {
			if err := s.maintainPlaceholders(ctx, e, p.UserID); err != nil {
				return err
			}
			s.logger.Info().Str("event_id", e.ID.String()).Stringer("from", from).Stringer("to", to).
				Msg("event state changed")
		}
		if err := s.finish(ctx, e, p.UserID, RecordEvent, ActionUpdated, e.ID); err != nil {
			return err
		}
		out = e
		return nil
	})
	return out, observe(RecordEvent, err)
}

// QualityCheck stamps a complete event's quality check date.
func (s *Service) QualityCheck(ctx context.Context, id uuid.UUID, day *Date, version *int) (*Event, error) {
	if day == nil {
		today := s.now()
		day = DatePtr(today.Year(), today.Month(), today.Day())
	}
	var out *Event
	err := s.mutate(ctx, mutation{
		eventID: id,
		version: version,
		record:  RecordEvent,
		action:  ActionUpdated,
		apply: func(ctx context.Context, e *Event, actor uuid.UUID) (uuid.UUID, error) {
			if !e.Complete {
				return uuid.Nil, apperr.Validation(msgQualityCheck)
			}
			e.QualityCheck = day
			e.ModifiedBy = actor
			if err := s.repo.UpdateEvent(ctx, e); err != nil {
				return uuid.Nil, fmt.Errorf("update event: %w", err)
			}
			out = e
			return e.ID, nil
		},
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteEvent removes an open event and its subtree.
func (s *Service) DeleteEvent(ctx context.Context, id uuid.UUID, version *int) error {
	p := auth.PrincipalFromContext(ctx)
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		e, err := s.repo.GetEventForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !auth.Resolve(p, AccessRecord(e), auth.ActionDelete).Allowed {
			return apperr.Permission("you do not have permission to delete event %s", e.ID)
		}
		if err := checkVersion(e, version); err != nil {
			return err
		}
		if e.Complete {
			return apperr.Locked(msgLockedEventDelete)
		}
		if err := s.repo.DeleteEvent(ctx, e.ID); err != nil {
			return fmt.Errorf("delete event: %w", err)
		}
		return s.emit(ctx, Change{EventID: e.ID, Action: ActionDeleted, Record: RecordEvent, RecordID: e.ID,
			Version: e.Version, ActorID: p.UserID})
	})
	return observe(RecordEvent, err)
}

// Summary returns the event with its full subtree and the caller's decision.
func (s *Service) Summary(ctx context.Context, id uuid.UUID) (*Summary, auth.Decision, error) {
	e, d, err := s.Access(ctx, id, auth.ActionRead)
	if err != nil {
		return nil, d, err
	}
	t, err := s.subtree(ctx, id)
	if err != nil {
		return nil, d, err
	}
	eds, err := s.repo.ListEventDiagnoses(ctx, id)
	if err != nil {
		return nil, d, fmt.Errorf("list event diagnoses: %w", err)
	}
	contacts, err := s.repo.ListLocationContacts(ctx, id)
	if err != nil {
		return nil, d, fmt.Errorf("list location contacts: %w", err)
	}
	sum := assemble(e, t, eds, contacts)
	sum.PermissionSource = string(auth.Source(auth.PrincipalFromContext(ctx), AccessRecord(e)))
	return sum, d, nil
}

func assemble(e *Event, t Subtree, eds []*EventDiagnosis, contacts []*EventLocationContact) *Summary {
	sum := &Summary{Event: e, EventDiagnoses: eds}
	diagsBySpecies := map[uuid.UUID][]*SpeciesDiagnosis{}
	for _, sd := range t.Diagnoses {
		diagsBySpecies[sd.LocationSpeciesID] = append(diagsBySpecies[sd.LocationSpeciesID], sd)
	}
	speciesByLocation := map[uuid.UUID][]*SpeciesSummary{}
	for _, ls := range t.Species {
		speciesByLocation[ls.EventLocationID] = append(speciesByLocation[ls.EventLocationID],
			&SpeciesSummary{LocationSpecies: ls, Diagnoses: diagsBySpecies[ls.ID]})
	}
	contactsByLocation := map[uuid.UUID][]*EventLocationContact{}
	for _, c := range contacts {
		contactsByLocation[c.EventLocationID] = append(contactsByLocation[c.EventLocationID], c)
	}
	for _, loc := range t.Locations {
		sum.Locations = append(sum.Locations, &LocationSummary{
			EventLocation: loc,
			Species:       speciesByLocation[loc.ID],
			Contacts:      contactsByLocation[loc.ID],
		})
	}
	return sum
}

// Search lists events matching f within the caller's scope. mine selects
// the caller's own, organization and collaborator events.
func (s *Service) Search(ctx context.Context, f *Filter, mine bool, limit, offset int) ([]*Event, int, auth.Decision, error) {
	p := auth.PrincipalFromContext(ctx)
	scope := Scope{Kind: auth.ListScope(p, mine)}
	if p != nil {
		scope.UserID, scope.OrganizationID = p.UserID, p.OrganizationID
	}
	d := auth.Resolve(p, auth.Record{}, auth.ActionList)
	if mine && p == nil {
		return nil, 0, d, nil
	}
	events, total, err := s.repo.Search(ctx, f, scope, limit, offset)
	if err != nil {
		return nil, 0, d, fmt.Errorf("search events: %w", err)
	}
	return events, total, d, nil
}

// Facts loads the filter facts of one event.
func (s *Service) Facts(ctx context.Context, e *Event) (Facts, error) {
	t, err := s.subtree(ctx, e.ID)
	if err != nil {
		return Facts{}, err
	}
	eds, err := s.repo.ListEventDiagnoses(ctx, e.ID)
	if err != nil {
		return Facts{}, fmt.Errorf("list event diagnoses: %w", err)
	}
	diags, err := s.lookups.Diagnoses(ctx)
	if err != nil {
		return Facts{}, fmt.Errorf("load diagnoses: %w", err)
	}
	return FactsOf(t, eds, diags), nil
}

// ChangedOn returns events created on day, or modified but not created on
// day when created is false.
func (s *Service) ChangedOn(ctx context.Context, day time.Time, created bool) ([]*Event, error) {
	return s.repo.ChangedOn(ctx, day, created)
}

// OpenCreatedOn returns open events created on day.
func (s *Service) OpenCreatedOn(ctx context.Context, day time.Time) ([]*Event, error) {
	return s.repo.OpenCreatedOn(ctx, day)
}
