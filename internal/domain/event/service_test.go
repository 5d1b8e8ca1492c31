package event

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/whispers/whispers/internal/platform/apperr"
	"github.com/whispers/whispers/internal/platform/auth"
)

func mustCreate(t *testing.T, f *fixture, ctx context.Context, in *NewEvent) *Event {
	t.Helper()
	e, err := f.svc.CreateEvent(ctx, in)
	if err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}
	return e
}

func expectValidation(t *testing.T, err error, want string) {
	t.Helper()
	var ve *apperr.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if want != "" && !hasMessage(ve.Messages, want) {
		t.Errorf("expected message %q, got %v", want, ve.Messages)
	}
}

func expectLocked(t *testing.T, err error, want string) {
	t.Helper()
	var le *apperr.LockedRecordError
	if !errors.As(err, &le) {
		t.Fatalf("expected LockedRecordError, got %v", err)
	}
	if le.Msg != want {
		t.Errorf("expected lock message %q, got %q", want, le.Msg)
	}
}

func expectPermission(t *testing.T, err error) {
	t.Helper()
	var pe *apperr.PermissionError
	if !errors.As(err, &pe) {
		t.Fatalf("expected PermissionError, got %v", err)
	}
}

func diagnosisIDsOf(eds []*EventDiagnosis) []int {
	out := make([]int, len(eds))
	for i, d := range eds {
		out[i] = d.DiagnosisID
	}
	return out
}

// completeEvent creates an event whose only location has ended and marks it
// complete as the owner.
func completeEvent(t *testing.T, f *fixture, ctx context.Context) *Event {
	t.Helper()
	in := morbidityEvent()
	in.Locations[0].EndDate = DatePtr(2024, 1, 10)
	e := mustCreate(t, f, ctx, in)
	done := true
	e, err := f.svc.UpdateEvent(ctx, e.ID, &EventPatch{Complete: &done})
	if err != nil {
		t.Fatalf("complete event: %v", err)
	}
	return e
}

func TestCreateEvent_ScenarioA(t *testing.T) {
	f := newFixture()
	e := mustCreate(t, f, as(principal(auth.RolePartner)), morbidityEvent())

	got := f.stored(e.ID)
	if got.EndDate != nil {
		t.Errorf("expected nil end date, got %v", got.EndDate)
	}
	if got.StartDate == nil || got.StartDate.String() != "2024-01-01" {
		t.Errorf("expected start 2024-01-01, got %v", got.StartDate)
	}
	if got.AffectedCount == nil || *got.AffectedCount != 5 {
		t.Errorf("expected affected 5, got %v", got.AffectedCount)
	}
	eds := f.eventDiagnoses(e.ID)
	if len(eds) != 1 || eds[0].DiagnosisID != diagPending || eds[0].Suspect {
		t.Errorf("expected a single non-suspect Pending diagnosis, got %+v", eds)
	}
	if !got.Public {
		t.Error("expected events to default to public")
	}
	if len(f.emitter.changes) != 1 || f.emitter.changes[0].Action != ActionCreated {
		t.Errorf("expected one created change, got %+v", f.emitter.changes)
	}
}

func TestCreateEvent_AnonymousAndAffiliateDenied(t *testing.T) {
	f := newFixture()
	_, err := f.svc.CreateEvent(context.Background(), morbidityEvent())
	expectPermission(t, err)
	_, err = f.svc.CreateEvent(as(principal(auth.RoleAffiliate)), morbidityEvent())
	expectPermission(t, err)
	if len(f.repo.events) != 0 {
		t.Error("expected nothing persisted")
	}
}

func TestCreateEvent_ReportsEveryViolation(t *testing.T) {
	f := newFixture()
	in := morbidityEvent()
	in.Locations[0].StartDate = nil
	in.Locations[0].CountryID = intPtr(404)
	in.Locations[0].Species[0].SpeciesID = 999
	in.Locations[0].Species[0].DeadCount = nil
	in.EventDiagnoses = []EventDiagnosis{{DiagnosisID: diagBotulism}}

	_, err := f.svc.CreateEvent(as(principal(auth.RolePartner)), in)
	var ve *apperr.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	for _, want := range []string{
		msgNestedStartDate,
		msgNestedMinCount,
		msgEventDiagMatch,
		"country 404 does not exist.",
		"species 999 does not exist.",
	} {
		if !hasMessage(ve.Messages, want) {
			t.Errorf("missing %q in %v", want, ve.Messages)
		}
	}
	if len(f.repo.events) != 0 {
		t.Error("expected no partial writes")
	}
}

func TestCreateEvent_LaboratoryOrganizations(t *testing.T) {
	f := newFixture()
	in := morbidityEvent()
	in.Locations[0].Species[0].Diagnoses = []SpeciesDiagnosis{{DiagnosisID: diagRabies, Suspect: true, OrganizationIDs: []uuid.UUID{f.nonLab}}}
	_, err := f.svc.CreateEvent(as(principal(auth.RolePartner)), in)
	expectValidation(t, err, msgLaboratoryOnly)

	in.Locations[0].Species[0].Diagnoses[0].OrganizationIDs = []uuid.UUID{f.lab}
	mustCreate(t, f, as(principal(auth.RolePartner)), in)
}

func TestCreateEvent_DuplicateNestedSpeciesDiagnosis(t *testing.T) {
	f := newFixture()
	in := morbidityEvent()
	in.Locations[0].Species[0].Diagnoses = []SpeciesDiagnosis{
		{DiagnosisID: diagRabies, Suspect: true},
		{DiagnosisID: diagRabies, Suspect: true},
	}
	_, err := f.svc.CreateEvent(as(principal(auth.RolePartner)), in)
	expectValidation(t, err, msgSpeciesDiagUnique)
}

func TestCreateEvent_CirclesExpandToCollaborators(t *testing.T) {
	f := newFixture()
	circle, member, direct := uuid.New(), uuid.New(), uuid.New()
	f.dir.circles[circle] = []uuid.UUID{member, direct}
	in := morbidityEvent()
	in.ReadCollaborators = []uuid.UUID{direct}
	in.ReadCircles = []uuid.UUID{circle}

	e := mustCreate(t, f, as(principal(auth.RolePartner)), in)
	got := f.stored(e.ID).ReadCollaborators
	if len(got) != 2 || got[0] != direct || got[1] != member {
		t.Errorf("expected deduplicated [direct member], got %v", got)
	}
}

func TestCreateEvent_SurveillanceAffectedCount(t *testing.T) {
	f := newFixture()
	in := morbidityEvent()
	in.EventType = TypeSurveillance
	in.Locations[0].Species[0].Diagnoses = []SpeciesDiagnosis{
		{DiagnosisID: diagAvianFlu, Suspect: true, TestedCount: intPtr(10), PositiveCount: intPtr(3)},
		{DiagnosisID: diagBotulism, Suspect: true, TestedCount: intPtr(10), PositiveCount: intPtr(4)},
	}
	e := mustCreate(t, f, as(principal(auth.RolePartner)), in)
	if got := f.stored(e.ID).AffectedCount; got == nil || *got != 7 {
		t.Errorf("expected affected 7, got %v", got)
	}
}

func TestCreateEvent_UndeterminedIsExclusive(t *testing.T) {
	f := newFixture()
	in := withRabies(morbidityEvent())
	in.EventDiagnoses = append(in.EventDiagnoses, EventDiagnosis{DiagnosisID: diagUndetermined})
	in.Locations[0].EndDate = DatePtr(2024, 1, 3)
	in.Locations[0].Species[0].Diagnoses[0].BasisID = intPtr(1)
	in.Locations[0].Species[0].Diagnoses[0].CauseID = intPtr(1)
	in.Complete = true

	e := mustCreate(t, f, as(principal(auth.RolePartner)), in)
	got := diagnosisIDsOf(f.eventDiagnoses(e.ID))
	if len(got) != 1 || got[0] != diagUndetermined {
		t.Errorf("expected only Undetermined, got %v", got)
	}
}

func TestUpdateEvent_ScenarioB(t *testing.T) {
	f := newFixture()
	ctx := as(principal(auth.RolePartner))
	in := morbidityEvent()
	in.Locations[0].EndDate = DatePtr(2024, 1, 10)
	second := in.Locations[0]
	second.EndDate = nil
	in.Locations = append(in.Locations, second)
	e := mustCreate(t, f, ctx, in)

	done := true
	_, err := f.svc.UpdateEvent(ctx, e.ID, &EventPatch{Complete: &done})
	expectValidation(t, err, msgCompleteLocations)
	if f.stored(e.ID).Complete {
		t.Fatal("event must stay open")
	}

	locs, _ := f.repo.ListLocations(context.Background(), e.ID)
	if _, err := f.svc.UpdateLocation(ctx, locs[1].ID, []byte(`{"end_date":"2024-01-15"}`), nil); err != nil {
		t.Fatalf("UpdateLocation: %v", err)
	}
	if got := f.stored(e.ID).EndDate; got == nil || got.String() != "2024-01-15" {
		t.Errorf("expected end date recomputed to 2024-01-15, got %v", got)
	}

	done = true
	out, err := f.svc.UpdateEvent(ctx, e.ID, &EventPatch{Complete: &done})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if !out.Complete {
		t.Error("expected complete event")
	}
	got := diagnosisIDsOf(f.eventDiagnoses(e.ID))
	if len(got) != 1 || got[0] != diagUndetermined {
		t.Errorf("expected Pending replaced by Undetermined, got %v", got)
	}
}

func TestUpdateEvent_CompleteNeedsOwnerOrOverride(t *testing.T) {
	f := newFixture()
	owner := principal(auth.RolePartner)
	in := morbidityEvent()
	in.Locations[0].EndDate = DatePtr(2024, 1, 10)
	in.WriteCollaborators = []uuid.UUID{uuid.New()}
	e := mustCreate(t, f, as(owner), in)

	writer := principal(auth.RolePartner)
	writer.UserID = in.WriteCollaborators[0]
	done := true
	_, err := f.svc.UpdateEvent(as(writer), e.ID, &EventPatch{Complete: &done})
	expectPermission(t, err)

	ref := "field note"
	if _, err := f.svc.UpdateEvent(as(writer), e.ID, &EventPatch{EventReference: &ref}); err != nil {
		t.Fatalf("write collaborator edit: %v", err)
	}
}

func TestUpdateEvent_LockedAndReopen(t *testing.T) {
	f := newFixture()
	owner := principal(auth.RolePartner)
	ctx := as(owner)
	e := completeEvent(t, f, ctx)

	ref := "late edit"
	_, err := f.svc.UpdateEvent(ctx, e.ID, &EventPatch{EventReference: &ref})
	expectLocked(t, err, msgLockedEventOwner)

	stranger := principal(auth.RolePartner)
	_, err = f.svc.UpdateEvent(as(stranger), e.ID, &EventPatch{EventReference: &ref})
	expectPermission(t, err)

	_, err = f.svc.CreateLocation(ctx, &NewLocation{EventLocation: EventLocation{EventID: e.ID, StartDate: DatePtr(2024, 1, 1)}}, nil)
	expectLocked(t, err, msgLockedLocation)

	qc := DatePtr(2024, 2, 1)
	if _, err := f.svc.UpdateEvent(ctx, e.ID, &EventPatch{QualityCheck: qc}); err != nil {
		t.Fatalf("quality check by owner: %v", err)
	}

	open := false
	out, err := f.svc.UpdateEvent(ctx, e.ID, &EventPatch{Complete: &open, EventReference: &ref})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if out.Complete || out.QualityCheck != nil || out.EventReference != ref {
		t.Errorf("expected open event with cleared quality check and new reference, got %+v", out)
	}
	got := diagnosisIDsOf(f.eventDiagnoses(e.ID))
	if len(got) != 1 || got[0] != diagPending {
		t.Errorf("expected Undetermined replaced by Pending, got %v", got)
	}
}

func TestUpdateEvent_VersionConflict(t *testing.T) {
	f := newFixture()
	ctx := as(principal(auth.RolePartner))
	e := mustCreate(t, f, ctx, morbidityEvent())

	stale := 99
	ref := "x"
	_, err := f.svc.UpdateEvent(ctx, e.ID, &EventPatch{EventReference: &ref, Version: &stale})
	var ce *apperr.ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConflictError, got %v", err)
	}

	current := 1
	out, err := f.svc.UpdateEvent(ctx, e.ID, &EventPatch{EventReference: &ref, Version: &current})
	if err != nil {
		t.Fatalf("UpdateEvent: %v", err)
	}
	if out.Version != 2 {
		t.Errorf("expected version 2, got %d", out.Version)
	}
}

func TestQualityCheck(t *testing.T) {
	f := newFixture()
	ctx := as(principal(auth.RolePartner))
	open := mustCreate(t, f, ctx, morbidityEvent())
	admin := as(principal(auth.RoleAdmin))

	_, err := f.svc.QualityCheck(admin, open.ID, nil, nil)
	expectValidation(t, err, msgQualityCheck)

	e := completeEvent(t, f, ctx)
	out, err := f.svc.QualityCheck(admin, e.ID, nil, nil)
	if err != nil {
		t.Fatalf("QualityCheck: %v", err)
	}
	if out.QualityCheck == nil || out.QualityCheck.String() != "2024-03-02" {
		t.Errorf("expected today's date, got %v", out.QualityCheck)
	}
}

func TestDeleteEvent(t *testing.T) {
	f := newFixture()
	owner := as(principal(auth.RolePartner))
	e := mustCreate(t, f, owner, withRabies(morbidityEvent()))

	err := f.svc.DeleteEvent(as(principal(auth.RolePartner)), e.ID, nil)
	expectPermission(t, err)

	if err := f.svc.DeleteEvent(owner, e.ID, nil); err != nil {
		t.Fatalf("DeleteEvent: %v", err)
	}
	if len(f.repo.events)+len(f.repo.locations)+len(f.repo.species)+len(f.repo.sdiags)+len(f.repo.ediags) != 0 {
		t.Error("expected the whole subtree removed")
	}

	done := completeEvent(t, f, owner)
	expectLocked(t, f.svc.DeleteEvent(owner, done.ID, nil), msgLockedEventDelete)
}

func TestDeleteSpeciesDiagnosis_ScenarioC(t *testing.T) {
	f := newFixture()
	ctx := as(principal(auth.RolePartner))
	e := mustCreate(t, f, ctx, withRabies(morbidityEvent()))
	if got := diagnosisIDsOf(f.eventDiagnoses(e.ID)); len(got) != 1 || got[0] != diagRabies {
		t.Fatalf("expected only Rabies, got %v", got)
	}

	var sdID uuid.UUID
	for id := range f.repo.sdiags {
		sdID = id
	}
	if err := f.svc.DeleteSpeciesDiagnosis(ctx, sdID, nil); err != nil {
		t.Fatalf("DeleteSpeciesDiagnosis: %v", err)
	}
	eds := f.eventDiagnoses(e.ID)
	if len(eds) != 1 || eds[0].DiagnosisID != diagPending || eds[0].Suspect {
		t.Errorf("expected one non-suspect Pending, got %+v", eds)
	}
	if v := f.stored(e.ID).Version; v != 2 {
		t.Errorf("expected version bumped to 2, got %d", v)
	}
}

func TestSpeciesDiagnosis_ConfirmationPropagates(t *testing.T) {
	f := newFixture()
	ctx := as(principal(auth.RolePartner))
	e := mustCreate(t, f, ctx, withRabies(morbidityEvent()))
	if eds := f.eventDiagnoses(e.ID); !eds[0].Suspect || eds[0].DiagnosisString != "Rabies suspect" {
		t.Fatalf("expected suspect Rabies, got %+v", eds[0])
	}

	var sdID uuid.UUID
	for id := range f.repo.sdiags {
		sdID = id
	}
	if _, err := f.svc.UpdateSpeciesDiagnosis(ctx, sdID, []byte(`{"suspect":false}`), nil); err == nil {
		t.Fatal("expected confirmation without lab basis to fail")
	}
	if !f.repo.sdiags[sdID].Suspect {
		t.Fatal("failed update must not change the stored record")
	}

	raw := []byte(`{"suspect":false,"basis":3,"positive_count":1}`)
	if _, err := f.svc.UpdateSpeciesDiagnosis(ctx, sdID, raw, nil); err != nil {
		t.Fatalf("UpdateSpeciesDiagnosis: %v", err)
	}
	eds := f.eventDiagnoses(e.ID)
	if eds[0].Suspect || eds[0].DiagnosisString != "Rabies" {
		t.Errorf("expected confirmed Rabies, got %+v", eds[0])
	}
}

func TestUpdateSpeciesDiagnosis_ChangedDiagnosisDropsOrphan(t *testing.T) {
	f := newFixture()
	ctx := as(principal(auth.RolePartner))
	e := mustCreate(t, f, ctx, withRabies(morbidityEvent()))
	var sdID uuid.UUID
	for id := range f.repo.sdiags {
		sdID = id
	}
	if _, err := f.svc.UpdateSpeciesDiagnosis(ctx, sdID, []byte(`{"diagnosis":12}`), nil); err != nil {
		t.Fatalf("UpdateSpeciesDiagnosis: %v", err)
	}
	got := diagnosisIDsOf(f.eventDiagnoses(e.ID))
	if len(got) != 1 || got[0] != diagPending {
		t.Errorf("expected orphaned Rabies replaced by Pending, got %v", got)
	}
}

func TestCreateSpeciesDiagnosis_Unique(t *testing.T) {
	f := newFixture()
	ctx := as(principal(auth.RolePartner))
	mustCreate(t, f, ctx, withRabies(morbidityEvent()))
	var speciesID uuid.UUID
	for id := range f.repo.species {
		speciesID = id
	}
	_, err := f.svc.CreateSpeciesDiagnosis(ctx, &SpeciesDiagnosis{LocationSpeciesID: speciesID, DiagnosisID: diagRabies, Suspect: true}, nil)
	expectValidation(t, err, msgSpeciesDiagUnique)

	_, err = f.svc.CreateSpeciesDiagnosis(ctx, &SpeciesDiagnosis{LocationSpeciesID: uuid.New(), DiagnosisID: diagRabies, Suspect: true}, nil)
	expectValidation(t, err, "")
}

func TestEventDiagnosis_MatchAndUnique(t *testing.T) {
	f := newFixture()
	ctx := as(principal(auth.RolePartner))
	e := mustCreate(t, f, ctx, withRabies(morbidityEvent()))

	_, err := f.svc.CreateEventDiagnosis(ctx, &EventDiagnosis{EventID: e.ID, DiagnosisID: diagBotulism}, nil)
	expectValidation(t, err, msgEventDiagMatch)

	_, err = f.svc.CreateEventDiagnosis(ctx, &EventDiagnosis{EventID: e.ID, DiagnosisID: diagRabies}, nil)
	expectValidation(t, err, msgEventDiagUnique)

	eds := f.eventDiagnoses(e.ID)
	if err := f.svc.DeleteEventDiagnosis(ctx, eds[0].ID, nil); err != nil {
		t.Fatalf("DeleteEventDiagnosis: %v", err)
	}
	got := diagnosisIDsOf(f.eventDiagnoses(e.ID))
	if len(got) != 1 || got[0] != diagPending {
		t.Errorf("expected Pending after deleting the last diagnosis, got %v", got)
	}
}

func TestLocationMutations_KeepAggregatesConsistent(t *testing.T) {
	f := newFixture()
	ctx := as(principal(auth.RolePartner))
	e := mustCreate(t, f, ctx, morbidityEvent())

	early := &NewLocation{
		EventLocation: EventLocation{EventID: e.ID, StartDate: DatePtr(2023, 12, 20), EndDate: DatePtr(2023, 12, 24)},
		Species: []NewSpecies{{
			LocationSpecies: LocationSpecies{SpeciesID: speciesFox, SickCount: intPtr(2), SickCountEstimated: intPtr(6)},
		}},
	}
	loc, err := f.svc.CreateLocation(ctx, early, nil)
	if err != nil {
		t.Fatalf("CreateLocation: %v", err)
	}
	got := f.stored(e.ID)
	if got.StartDate.String() != "2023-12-20" || *got.AffectedCount != 11 || got.EndDate != nil {
		t.Errorf("unexpected aggregates after add: start=%v end=%v affected=%v", got.StartDate, got.EndDate, *got.AffectedCount)
	}

	var speciesID uuid.UUID
	for id, ls := range f.repo.species {
		if ls.EventLocationID == loc.ID {
			speciesID = id
		}
	}
	if _, err := f.svc.UpdateSpecies(ctx, speciesID, []byte(`{"sick_count_estimated":10}`), nil); err != nil {
		t.Fatalf("UpdateSpecies: %v", err)
	}
	if got := f.stored(e.ID).AffectedCount; *got != 15 {
		t.Errorf("expected affected 15, got %d", *got)
	}

	if err := f.svc.DeleteLocation(ctx, loc.ID, nil); err != nil {
		t.Fatalf("DeleteLocation: %v", err)
	}
	got = f.stored(e.ID)
	if got.StartDate.String() != "2024-01-01" || *got.AffectedCount != 5 {
		t.Errorf("expected aggregates restored, got start=%v affected=%d", got.StartDate, *got.AffectedCount)
	}
}

func TestUpdateSpecies_RejectsInvalidCounts(t *testing.T) {
	f := newFixture()
	ctx := as(principal(auth.RolePartner))
	mustCreate(t, f, ctx, morbidityEvent())
	var speciesID uuid.UUID
	for id := range f.repo.species {
		speciesID = id
	}
	_, err := f.svc.UpdateSpecies(ctx, speciesID, []byte(`{"population_count":2}`), nil)
	expectValidation(t, err, msgPopulation)
}

func TestLocationContacts(t *testing.T) {
	f := newFixture()
	ctx := as(principal(auth.RolePartner))
	mustCreate(t, f, ctx, morbidityEvent())
	var locID uuid.UUID
	for id := range f.repo.locations {
		locID = id
	}

	_, err := f.svc.CreateLocationContact(ctx, &EventLocationContact{EventLocationID: locID}, nil)
	expectValidation(t, err, "contact is required.")

	ct, err := f.svc.CreateLocationContact(ctx, &EventLocationContact{EventLocationID: locID, ContactID: uuid.New(), ContactTypeID: intPtr(1)}, nil)
	if err != nil {
		t.Fatalf("CreateLocationContact: %v", err)
	}
	if err := f.svc.DeleteLocationContact(ctx, ct.ID, nil); err != nil {
		t.Fatalf("DeleteLocationContact: %v", err)
	}
	if len(f.repo.contacts) != 0 {
		t.Error("expected contact removed")
	}
}

func TestRecompute_Idempotent(t *testing.T) {
	f := newFixture()
	ctx := as(principal(auth.RolePartner))
	e := mustCreate(t, f, ctx, morbidityEvent())
	stored := f.stored(e.ID)

	writes := f.repo.aggWrites
	a1, err := f.svc.Recompute(ctx, stored)
	if err != nil {
		t.Fatalf("Recompute: %v", err)
	}
	a2, err := f.svc.Recompute(ctx, stored)
	if err != nil {
		t.Fatalf("Recompute: %v", err)
	}
	if !a1.Equal(a2) {
		t.Errorf("expected identical aggregates, got %+v and %+v", a1, a2)
	}
	if f.repo.aggWrites != writes {
		t.Errorf("expected no writes for unchanged aggregates, got %d", f.repo.aggWrites-writes)
	}
}

func TestSearch_Scopes(t *testing.T) {
	f := newFixture()
	owner := principal(auth.RolePartner)
	hidden := morbidityEvent()
	hidden.Public = boolPtr(false)
	private := mustCreate(t, f, as(owner), hidden)
	mustCreate(t, f, as(principal(auth.RolePartner)), morbidityEvent())

	events, total, d, err := f.svc.Search(context.Background(), nil, false, 0, 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if total != 1 || len(events) != 1 || d.View != auth.ViewPublic {
		t.Errorf("anonymous: expected 1 public event with public view, got %d (%v)", total, d.View)
	}

	_, total, d, _ = f.svc.Search(as(principal(auth.RoleAdmin)), nil, false, 0, 0)
	if total != 2 || d.View != auth.ViewAdmin {
		t.Errorf("admin: expected 2 events with admin view, got %d (%v)", total, d.View)
	}

	events, total, _, _ = f.svc.Search(as(owner), nil, true, 0, 0)
	if total != 1 || events[0].ID != private.ID {
		t.Errorf("mine: expected only the owner's event, got %d", total)
	}

	_, total, _, _ = f.svc.Search(context.Background(), nil, true, 0, 0)
	if total != 0 {
		t.Errorf("anonymous mine: expected nothing, got %d", total)
	}
}

func TestSearch_FiltersOnEventDiagnoses(t *testing.T) {
	f := newFixture()
	ctx := as(principal(auth.RolePartner))
	rabies := mustCreate(t, f, ctx, withRabies(morbidityEvent()))
	mustCreate(t, f, ctx, morbidityEvent())

	filter := mustFilter(t, "diagnosis=10")
	events, total, _, err := f.svc.Search(ctx, filter, false, 20, 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if total != 1 || events[0].ID != rabies.ID {
		t.Errorf("expected only the Rabies event, got %d", total)
	}
}

func TestCreateSpeciesDiagnosis_PooledPositiveCount(t *testing.T) {
	f := newFixture()
	ctx := as(principal(auth.RolePartner))
	mustCreate(t, f, ctx, morbidityEvent())
	var speciesID uuid.UUID
	for id := range f.repo.species {
		speciesID = id
	}
	lab := LabBasisID

	_, err := f.svc.CreateSpeciesDiagnosis(ctx, &SpeciesDiagnosis{
		LocationSpeciesID: speciesID, DiagnosisID: diagBotulism, BasisID: &lab,
		Pooled: true, TestedCount: intPtr(4), PositiveCount: intPtr(0),
	}, nil)
	expectValidation(t, err, msgNonSuspectPositive)
	if len(f.repo.sdiags) != 0 {
		t.Fatalf("expected nothing stored, got %d", len(f.repo.sdiags))
	}

	sd, err := f.svc.CreateSpeciesDiagnosis(ctx, &SpeciesDiagnosis{
		LocationSpeciesID: speciesID, DiagnosisID: diagBotulism, BasisID: &lab,
		Pooled: true, TestedCount: intPtr(4),
	}, nil)
	if err != nil {
		t.Fatalf("CreateSpeciesDiagnosis: %v", err)
	}
	stored := f.repo.sdiags[sd.ID]
	if stored == nil || val(stored.PositiveCount) != 1 || val(stored.SuspectCount) != 1 {
		t.Errorf("expected positive and suspect counts defaulted to 1, got %+v", stored)
	}
}

func TestChecker_PlaceholderSpeciesDiagnosisCounts(t *testing.T) {
	f := newFixture()
	c, err := f.svc.newChecker(context.Background())
	if err != nil {
		t.Fatalf("newChecker: %v", err)
	}
	sd := &SpeciesDiagnosis{
		DiagnosisID: diagPending, Suspect: true, Pooled: true,
		TestedCount: intPtr(1), DiagnosisCount: intPtr(9), PositiveCount: intPtr(5), SuspectCount: intPtr(5),
	}
	c.speciesDiagnosis(sd)
	for _, want := range []string{msgDiagnosedCount, msgPositiveSuspect, msgPooled} {
		if !hasMessage(c.m, want) {
			t.Errorf("missing %q in %v", want, c.m)
		}
	}
	if sd.Suspect {
		t.Error("expected placeholder diagnosis forced to non-suspect")
	}
	if err := c.err(context.Background()); err == nil {
		t.Error("expected placeholder with invalid counts to be rejected")
	}
}
