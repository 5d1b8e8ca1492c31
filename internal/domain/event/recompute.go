package event

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/whispers/whispers/internal/platform/telemetry"
)

// subtree loads every location, species and species diagnosis of an event.
func (s *Service) subtree(ctx context.Context, eventID uuid.UUID) (Subtree, error) {
	var t Subtree
	var err error
	if t.Locations, err = s.repo.ListLocations(ctx, eventID); err != nil {
		return t, fmt.Errorf("list locations: %w", err)
	}
	if t.Species, err = s.repo.ListSpeciesByEvent(ctx, eventID); err != nil {
		return t, fmt.Errorf("list location species: %w", err)
	}
	if t.Diagnoses, err = s.repo.ListSpeciesDiagnosesByEvent(ctx, eventID); err != nil {
		return t, fmt.Errorf("list species diagnoses: %w", err)
	}
	return t, nil
}

// Recompute derives start_date, end_date and affected_count from the
// event's subtree and writes them when they changed. It writes only the
// derived columns and never triggers another recompute.
func (s *Service) Recompute(ctx context.Context, e *Event) (Aggregates, error) {
	ctx, span := telemetry.Tracer("event").Start(ctx, "event.recompute",
		trace.WithAttributes(attribute.String("event.id", e.ID.String()), attribute.Int("event.type", e.EventType)))
	defer span.End()
	start := time.Now()
	defer func() { telemetry.ObserveRecompute(time.Since(start)) }()

	t, err := s.subtree(ctx, e.ID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Aggregates{}, err
	}
	a := ComputeAggregates(e.EventType, t)
	current := Aggregates{StartDate: e.StartDate, EndDate: e.EndDate, AffectedCount: e.AffectedCount}
	if a.Equal(current) {
		return a, nil
	}
	if err := s.repo.UpdateAggregates(ctx, e.ID, a); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Aggregates{}, fmt.Errorf("update aggregates: %w", err)
	}
	e.StartDate, e.EndDate, e.AffectedCount = a.StartDate, a.EndDate, a.AffectedCount
	return a, nil
}

// placeholders resolves the placeholder diagnosis ids by name.
func (s *Service) placeholders(ctx context.Context) (Placeholders, error) {
	diags, err := s.lookups.Diagnoses(ctx)
	if err != nil {
		return Placeholders{}, fmt.Errorf("load diagnoses: %w", err)
	}
	var ph Placeholders
	for id, d := range diags {
		switch d.Name {
		case PendingDiagnosis:
			ph.Pending = id
		case UndeterminedDiagnosis:
			ph.Undetermined = id
		}
	}
	if ph.Pending == 0 || ph.Undetermined == 0 {
		return ph, fmt.Errorf("placeholder diagnoses %q and %q must exist", PendingDiagnosis, UndeterminedDiagnosis)
	}
	return ph, nil
}

// maintainPlaceholders restores the one-diagnosis-at-least invariant for
// the event's completion state.
func (s *Service) maintainPlaceholders(ctx context.Context, e *Event, actor uuid.UUID) error {
	ph, err := s.placeholders(ctx)
	if err != nil {
		return err
	}
	diags, err := s.repo.ListEventDiagnoses(ctx, e.ID)
	if err != nil {
		return fmt.Errorf("list event diagnoses: %w", err)
	}
	plan := planPlaceholders(e.Complete, diags, ph)
	for _, id := range plan.Delete {
		if err := s.repo.DeleteEventDiagnosis(ctx, id); err != nil {
			return fmt.Errorf("delete placeholder diagnosis: %w", err)
		}
	}
	if plan.Create != 0 {
		d := &EventDiagnosis{EventID: e.ID, DiagnosisID: plan.Create, CreatedBy: actor, ModifiedBy: actor}
		if err := s.repo.CreateEventDiagnosis(ctx, d); err != nil {
			return fmt.Errorf("create placeholder diagnosis: %w", err)
		}
	}
	return nil
}

// propagate applies a saved species diagnosis to the event diagnosis that
// shares its diagnosis. Event diagnoses are never created here.
func (s *Service) propagate(ctx context.Context, e *Event, saved *SpeciesDiagnosis, actor uuid.UUID) error {
	ph, err := s.placeholders(ctx)
	if err != nil {
		return err
	}
	eds, err := s.repo.ListEventDiagnoses(ctx, e.ID)
	if err != nil {
		return fmt.Errorf("list event diagnoses: %w", err)
	}
	var ed *EventDiagnosis
	for _, d := range eds {
		if d.DiagnosisID == saved.DiagnosisID {
			ed = d
			break
		}
	}
	if ed == nil {
		return nil
	}
	all, err := s.repo.ListSpeciesDiagnosesByEvent(ctx, e.ID)
	if err != nil {
		return fmt.Errorf("list species diagnoses: %w", err)
	}
	suspect := propagatedSuspect(saved, all, ed, ph)
	if suspect == ed.Suspect {
		return nil
	}
	ed.Suspect = suspect
	ed.ModifiedBy = actor
	if err := s.repo.UpdateEventDiagnosis(ctx, ed); err != nil {
		return fmt.Errorf("update event diagnosis: %w", err)
	}
	return nil
}

func (s *Service) propagateAll(ctx context.Context, e *Event, sds []SpeciesDiagnosis, actor uuid.UUID) error {
	for i := range sds {
		if err := s.propagate(ctx, e, &sds[i], actor); err != nil {
			return err
		}
	}
	return nil
}

// dropOrphans deletes event diagnoses whose diagnosis no longer appears on
// any species diagnosis under the event, then restores the placeholder.
func (s *Service) dropOrphans(ctx context.Context, e *Event, diagnosisIDs map[int]bool, actor uuid.UUID) error {
	if len(diagnosisIDs) == 0 {
		return nil
	}
	t, err := s.subtree(ctx, e.ID)
	if err != nil {
		return err
	}
	remaining := t.diagnosisIDs(uuid.Nil)
	eds, err := s.repo.ListEventDiagnoses(ctx, e.ID)
	if err != nil {
		return fmt.Errorf("list event diagnoses: %w", err)
	}
	for _, ed := range eds {
		if diagnosisIDs[ed.DiagnosisID] && !remaining[ed.DiagnosisID] {
			if err := s.repo.DeleteEventDiagnosis(ctx, ed.ID); err != nil {
				return fmt.Errorf("delete orphaned event diagnosis: %w", err)
			}
		}
	}
	return s.maintainPlaceholders(ctx, e, actor)
}
