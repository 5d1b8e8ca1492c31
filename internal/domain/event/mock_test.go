package event

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/whispers/whispers/internal/platform/apperr"
	"github.com/whispers/whispers/internal/platform/auth"
)

// -- Mock Repository --

type mockRepo struct {
	events     map[uuid.UUID]*Event
	locations  map[uuid.UUID]*EventLocation
	species    map[uuid.UUID]*LocationSpecies
	sdiags     map[uuid.UUID]*SpeciesDiagnosis
	ediags     map[uuid.UUID]*EventDiagnosis
	contacts   map[uuid.UUID]*EventLocationContact
	lookups    *mockLookups
	aggWrites  int
	seq        int
	lastScope  Scope
	now        time.Time
	searchHits int
}

func newMockRepo(l *mockLookups) *mockRepo {
	return &mockRepo{
		events:    make(map[uuid.UUID]*Event),
		locations: make(map[uuid.UUID]*EventLocation),
		species:   make(map[uuid.UUID]*LocationSpecies),
		sdiags:    make(map[uuid.UUID]*SpeciesDiagnosis),
		ediags:    make(map[uuid.UUID]*EventDiagnosis),
		contacts:  make(map[uuid.UUID]*EventLocationContact),
		lookups:   l,
		now:       time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

// stamp orders records by insertion.
func (m *mockRepo) stamp() time.Time {
	m.seq++
	return m.now.Add(time.Duration(m.seq) * time.Second)
}

func copyEvent(e *Event) *Event {
	c := *e
	c.ReadCollaborators = append([]uuid.UUID(nil), e.ReadCollaborators...)
	c.WriteCollaborators = append([]uuid.UUID(nil), e.WriteCollaborators...)
	return &c
}

func (m *mockRepo) CreateEvent(_ context.Context, e *Event) error {
	e.ID = uuid.New()
	e.Version = 1
	e.CreatedAt = m.stamp()
	e.UpdatedAt = e.CreatedAt
	m.events[e.ID] = copyEvent(e)
	return nil
}

func (m *mockRepo) GetEvent(_ context.Context, id uuid.UUID) (*Event, error) {
	e, ok := m.events[id]
	if !ok {
		return nil, apperr.NotFound("event", id)
	}
	return copyEvent(e), nil
}

func (m *mockRepo) GetEventForUpdate(ctx context.Context, id uuid.UUID) (*Event, error) {
	return m.GetEvent(ctx, id)
}

func (m *mockRepo) UpdateEvent(_ context.Context, e *Event) error {
	cur, ok := m.events[e.ID]
	if !ok {
		return apperr.NotFound("event", e.ID)
	}
	c := copyEvent(e)
	c.StartDate, c.EndDate, c.AffectedCount = cur.StartDate, cur.EndDate, cur.AffectedCount
	c.Version = cur.Version
	c.ReadCollaborators, c.WriteCollaborators = cur.ReadCollaborators, cur.WriteCollaborators
	c.UpdatedAt = m.stamp()
	m.events[e.ID] = c
	return nil
}

func (m *mockRepo) UpdateAggregates(_ context.Context, id uuid.UUID, a Aggregates) error {
	e := m.events[id]
	e.StartDate, e.EndDate, e.AffectedCount = a.StartDate, a.EndDate, a.AffectedCount
	m.aggWrites++
	return nil
}

func (m *mockRepo) BumpVersion(_ context.Context, id, modifiedBy uuid.UUID) (int, error) {
	e, ok := m.events[id]
	if !ok {
		return 0, apperr.NotFound("event", id)
	}
	e.Version++
	e.ModifiedBy = modifiedBy
	return e.Version, nil
}

func (m *mockRepo) DeleteEvent(_ context.Context, id uuid.UUID) error {
	delete(m.events, id)
	for lid, l := range m.locations {
		if l.EventID == id {
			m.deleteLocation(lid)
		}
	}
	for did, d := range m.ediags {
		if d.EventID == id {
			delete(m.ediags, did)
		}
	}
	return nil
}

func (m *mockRepo) SetCollaborators(_ context.Context, eventID uuid.UUID, read, write []uuid.UUID) error {
	e := m.events[eventID]
	e.ReadCollaborators = append([]uuid.UUID(nil), read...)
	e.WriteCollaborators = append([]uuid.UUID(nil), write...)
	return nil
}

func (m *mockRepo) Search(ctx context.Context, f *Filter, scope Scope, limit, offset int) ([]*Event, int, error) {
	m.lastScope = scope
	diags, _ := m.lookups.Diagnoses(ctx)
	var out []*Event
	for _, e := range m.events {
		if !inScope(e, scope) {
			continue
		}
		t := m.subtreeOf(e.ID)
		eds, _ := m.ListEventDiagnoses(ctx, e.ID)
		if f.Match(e, FactsOf(t, eds, diags)) {
			out = append(out, copyEvent(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	total := len(out)
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	m.searchHits++
	return out, total, nil
}

func inScope(e *Event, s Scope) bool {
	switch s.Kind {
	case auth.ScopeAll:
		return true
	case auth.ScopeMine:
		if e.CreatedBy == s.UserID || (e.OrganizationID != nil && *e.OrganizationID == s.OrganizationID) {
			return true
		}
		for _, id := range append(append([]uuid.UUID{}, e.ReadCollaborators...), e.WriteCollaborators...) {
			if id == s.UserID {
				return true
			}
		}
		return false
	}
	return e.Public
}

func (m *mockRepo) ChangedOn(_ context.Context, day time.Time, created bool) ([]*Event, error) {
	var out []*Event
	for _, e := range m.events {
		c, u := sameDay(e.CreatedAt, day), sameDay(e.UpdatedAt, day)
		if (created && c) || (!created && u && !c) {
			out = append(out, copyEvent(e))
		}
	}
	return out, nil
}

func (m *mockRepo) OpenCreatedOn(_ context.Context, day time.Time) ([]*Event, error) {
	var out []*Event
	for _, e := range m.events {
		if !e.Complete && sameDay(e.CreatedAt, day) {
			out = append(out, copyEvent(e))
		}
	}
	return out, nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func (m *mockRepo) subtreeOf(eventID uuid.UUID) Subtree {
	var t Subtree
	for _, l := range m.sortedLocations(eventID) {
		t.Locations = append(t.Locations, l)
		for _, ls := range m.speciesOf(l.ID) {
			t.Species = append(t.Species, ls)
			for _, sd := range m.sdiagsOf(ls.ID) {
				t.Diagnoses = append(t.Diagnoses, sd)
			}
		}
	}
	return t
}

func (m *mockRepo) sortedLocations(eventID uuid.UUID) []*EventLocation {
	var out []*EventLocation
	for _, l := range m.locations {
		if l.EventID == eventID {
			c := *l
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (m *mockRepo) speciesOf(locationID uuid.UUID) []*LocationSpecies {
	var out []*LocationSpecies
	for _, ls := range m.species {
		if ls.EventLocationID == locationID {
			c := *ls
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (m *mockRepo) sdiagsOf(speciesID uuid.UUID) []*SpeciesDiagnosis {
	var out []*SpeciesDiagnosis
	for _, sd := range m.sdiags {
		if sd.LocationSpeciesID == speciesID {
			c := *sd
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (m *mockRepo) CreateLocation(_ context.Context, l *EventLocation) error {
	l.ID = uuid.New()
	l.CreatedAt = m.stamp()
	c := *l
	m.locations[l.ID] = &c
	return nil
}

func (m *mockRepo) GetLocation(_ context.Context, id uuid.UUID) (*EventLocation, error) {
	l, ok := m.locations[id]
	if !ok {
		return nil, apperr.NotFound("event_location", id)
	}
	c := *l
	return &c, nil
}

func (m *mockRepo) UpdateLocation(_ context.Context, l *EventLocation) error {
	c := *l
	m.locations[l.ID] = &c
	return nil
}

func (m *mockRepo) DeleteLocation(_ context.Context, id uuid.UUID) error {
	m.deleteLocation(id)
	return nil
}

func (m *mockRepo) deleteLocation(id uuid.UUID) {
	delete(m.locations, id)
	for sid, ls := range m.species {
		if ls.EventLocationID == id {
			m.deleteSpecies(sid)
		}
	}
	for cid, c := range m.contacts {
		if c.EventLocationID == id {
			delete(m.contacts, cid)
		}
	}
}

func (m *mockRepo) ListLocations(_ context.Context, eventID uuid.UUID) ([]*EventLocation, error) {
	return m.sortedLocations(eventID), nil
}

func (m *mockRepo) CreateSpecies(_ context.Context, ls *LocationSpecies) error {
	ls.ID = uuid.New()
	ls.CreatedAt = m.stamp()
	c := *ls
	m.species[ls.ID] = &c
	return nil
}

func (m *mockRepo) GetSpecies(_ context.Context, id uuid.UUID) (*LocationSpecies, error) {
	ls, ok := m.species[id]
	if !ok {
		return nil, apperr.NotFound("location_species", id)
	}
	c := *ls
	return &c, nil
}

func (m *mockRepo) UpdateSpecies(_ context.Context, ls *LocationSpecies) error {
	c := *ls
	m.species[ls.ID] = &c
	return nil
}

func (m *mockRepo) DeleteSpecies(_ context.Context, id uuid.UUID) error {
	m.deleteSpecies(id)
	return nil
}

func (m *mockRepo) deleteSpecies(id uuid.UUID) {
	delete(m.species, id)
	for did, sd := range m.sdiags {
		if sd.LocationSpeciesID == id {
			delete(m.sdiags, did)
		}
	}
}

func (m *mockRepo) ListSpeciesByEvent(_ context.Context, eventID uuid.UUID) ([]*LocationSpecies, error) {
	return m.subtreeOf(eventID).Species, nil
}

func (m *mockRepo) CreateSpeciesDiagnosis(_ context.Context, sd *SpeciesDiagnosis) error {
	sd.ID = uuid.New()
	sd.CreatedAt = m.stamp()
	c := *sd
	m.sdiags[sd.ID] = &c
	return nil
}

func (m *mockRepo) GetSpeciesDiagnosis(_ context.Context, id uuid.UUID) (*SpeciesDiagnosis, error) {
	sd, ok := m.sdiags[id]
	if !ok {
		return nil, apperr.NotFound("species_diagnosis", id)
	}
	c := *sd
	return &c, nil
}

func (m *mockRepo) UpdateSpeciesDiagnosis(_ context.Context, sd *SpeciesDiagnosis) error {
	c := *sd
	m.sdiags[sd.ID] = &c
	return nil
}

func (m *mockRepo) DeleteSpeciesDiagnosis(_ context.Context, id uuid.UUID) error {
	delete(m.sdiags, id)
	return nil
}

func (m *mockRepo) ListSpeciesDiagnosesByEvent(_ context.Context, eventID uuid.UUID) ([]*SpeciesDiagnosis, error) {
	return m.subtreeOf(eventID).Diagnoses, nil
}

func (m *mockRepo) CreateEventDiagnosis(_ context.Context, d *EventDiagnosis) error {
	d.ID = uuid.New()
	d.CreatedAt = m.stamp()
	c := *d
	m.ediags[d.ID] = &c
	return nil
}

func (m *mockRepo) GetEventDiagnosis(_ context.Context, id uuid.UUID) (*EventDiagnosis, error) {
	d, ok := m.ediags[id]
	if !ok {
		return nil, apperr.NotFound("event_diagnosis", id)
	}
	c := *d
	m.fillDiagnosisString(&c)
	return &c, nil
}

func (m *mockRepo) UpdateEventDiagnosis(_ context.Context, d *EventDiagnosis) error {
	c := *d
	m.ediags[d.ID] = &c
	return nil
}

func (m *mockRepo) DeleteEventDiagnosis(_ context.Context, id uuid.UUID) error {
	delete(m.ediags, id)
	return nil
}

func (m *mockRepo) ListEventDiagnoses(_ context.Context, eventID uuid.UUID) ([]*EventDiagnosis, error) {
	var out []*EventDiagnosis
	for _, d := range m.ediags {
		if d.EventID == eventID {
			c := *d
			m.fillDiagnosisString(&c)
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// fillDiagnosisString mirrors the join the Postgres repository performs.
func (m *mockRepo) fillDiagnosisString(d *EventDiagnosis) {
	d.DiagnosisString = DisplayName(m.lookups.diagnoses[d.DiagnosisID].Name, d.Suspect)
}

func (m *mockRepo) CreateLocationContact(_ context.Context, c *EventLocationContact) error {
	c.ID = uuid.New()
	c.CreatedAt = m.stamp()
	cp := *c
	m.contacts[c.ID] = &cp
	return nil
}

func (m *mockRepo) GetLocationContact(_ context.Context, id uuid.UUID) (*EventLocationContact, error) {
	c, ok := m.contacts[id]
	if !ok {
		return nil, apperr.NotFound("event_location_contact", id)
	}
	cp := *c
	return &cp, nil
}

func (m *mockRepo) DeleteLocationContact(_ context.Context, id uuid.UUID) error {
	delete(m.contacts, id)
	return nil
}

func (m *mockRepo) ListLocationContacts(_ context.Context, eventID uuid.UUID) ([]*EventLocationContact, error) {
	var out []*EventLocationContact
	for _, c := range m.contacts {
		if l, ok := m.locations[c.EventLocationID]; ok && l.EventID == eventID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

// -- Mock lookups, directory, transactions --

const (
	diagPending      = 1
	diagUndetermined = 2
	diagRabies       = 10
	diagAvianFlu     = 11
	diagBotulism     = 12

	typeViral     = 100
	typeBacterial = 101

	speciesMallard = 7
	speciesFox     = 8
)

type mockLookups struct {
	diagnoses map[int]Diagnosis
	names     map[string]map[int]string
	calls     int
}

func newMockLookups() *mockLookups {
	viral, bacterial := typeViral, typeBacterial
	return &mockLookups{
		diagnoses: map[int]Diagnosis{
			diagPending:      {ID: diagPending, Name: PendingDiagnosis},
			diagUndetermined: {ID: diagUndetermined, Name: UndeterminedDiagnosis},
			diagRabies:       {ID: diagRabies, Name: "Rabies", DiagnosisTypeID: &viral},
			diagAvianFlu:     {ID: diagAvianFlu, Name: "Avian Influenza", DiagnosisTypeID: &viral, HighImpact: true},
			diagBotulism:     {ID: diagBotulism, Name: "Botulism", DiagnosisTypeID: &bacterial},
		},
		names: map[string]map[int]string{
			TableEventTypes:      {TypeMorbidityMortality: "Morbidity/Mortality", TypeSurveillance: "Surveillance"},
			TableSpecies:         {speciesMallard: "Mallard", speciesFox: "Red Fox"},
			TableDiagnosisCauses: {1: "Natural"},
			TableDiagnosisBases:  {1: "Field signs", LabBasisID: "Laboratory"},
			TableCountries:       {1: "United States"},
			TableAdminLevelOnes:  {5: "Wisconsin", 6: "Minnesota"},
			TableAdminLevelTwos:  {50: "Dane"},
			TableLandOwnerships:  {3: "Federal"},
			TableFlyways:         {2: "Mississippi"},
			TableLegalStatuses:   {1: "In progress"},
			TableContactTypes:    {1: "Field"},
			TableDiagnosisTypes:  {typeViral: "Viral", typeBacterial: "Bacterial"},
		},
	}
}

func (l *mockLookups) Diagnoses(context.Context) (map[int]Diagnosis, error) {
	l.calls++
	return l.diagnoses, nil
}

func (l *mockLookups) Names(_ context.Context, table string) (map[int]string, error) {
	l.calls++
	return l.names[table], nil
}

type mockDirectory struct {
	orgs    map[uuid.UUID]bool
	circles map[uuid.UUID][]uuid.UUID
}

func (d *mockDirectory) Laboratories(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]bool, error) {
	out := map[uuid.UUID]bool{}
	for _, id := range ids {
		if lab, ok := d.orgs[id]; ok {
			out[id] = lab
		}
	}
	return out, nil
}

func (d *mockDirectory) CircleMembers(_ context.Context, ids []uuid.UUID) ([]uuid.UUID, error) {
	var out []uuid.UUID
	for _, id := range ids {
		out = append(out, d.circles[id]...)
	}
	return out, nil
}

// mockTx snapshots the repository and restores it when fn fails.
type mockTx struct {
	repo  *mockRepo
	depth int
}

func (t *mockTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if t.depth > 0 {
		return fn(ctx)
	}
	snap := t.repo.snapshot()
	t.depth++
	err := fn(ctx)
	t.depth--
	if err != nil {
		t.repo.restore(snap)
	}
	return err
}

type repoSnapshot struct {
	events    map[uuid.UUID]Event
	locations map[uuid.UUID]EventLocation
	species   map[uuid.UUID]LocationSpecies
	sdiags    map[uuid.UUID]SpeciesDiagnosis
	ediags    map[uuid.UUID]EventDiagnosis
	contacts  map[uuid.UUID]EventLocationContact
}

func (m *mockRepo) snapshot() repoSnapshot {
	s := repoSnapshot{
		events:    map[uuid.UUID]Event{},
		locations: map[uuid.UUID]EventLocation{},
		species:   map[uuid.UUID]LocationSpecies{},
		sdiags:    map[uuid.UUID]SpeciesDiagnosis{},
		ediags:    map[uuid.UUID]EventDiagnosis{},
		contacts:  map[uuid.UUID]EventLocationContact{},
	}
	for k, v := range m.events {
		s.events[k] = *copyEvent(v)
	}
	for k, v := range m.locations {
		s.locations[k] = *v
	}
	for k, v := range m.species {
		s.species[k] = *v
	}
	for k, v := range m.sdiags {
		s.sdiags[k] = *v
	}
	for k, v := range m.ediags {
		s.ediags[k] = *v
	}
	for k, v := range m.contacts {
		s.contacts[k] = *v
	}
	return s
}

func (m *mockRepo) restore(s repoSnapshot) {
	m.events = map[uuid.UUID]*Event{}
	for k, v := range s.events {
		v := v
		m.events[k] = &v
	}
	m.locations = map[uuid.UUID]*EventLocation{}
	for k, v := range s.locations {
		v := v
		m.locations[k] = &v
	}
	m.species = map[uuid.UUID]*LocationSpecies{}
	for k, v := range s.species {
		v := v
		m.species[k] = &v
	}
	m.sdiags = map[uuid.UUID]*SpeciesDiagnosis{}
	for k, v := range s.sdiags {
		v := v
		m.sdiags[k] = &v
	}
	m.ediags = map[uuid.UUID]*EventDiagnosis{}
	for k, v := range s.ediags {
		v := v
		m.ediags[k] = &v
	}
	m.contacts = map[uuid.UUID]*EventLocationContact{}
	for k, v := range s.contacts {
		v := v
		m.contacts[k] = &v
	}
}

type mockEmitter struct {
	changes []Change
}

func (e *mockEmitter) Emit(_ context.Context, c Change) error {
	e.changes = append(e.changes, c)
	return nil
}

// -- Fixtures --

type fixture struct {
	svc     *Service
	repo    *mockRepo
	lookups *mockLookups
	dir     *mockDirectory
	emitter *mockEmitter
	lab     uuid.UUID
	nonLab  uuid.UUID
}

func newFixture() *fixture {
	l := newMockLookups()
	repo := newMockRepo(l)
	f := &fixture{
		repo:    repo,
		lookups: l,
		lab:     uuid.New(),
		nonLab:  uuid.New(),
		emitter: &mockEmitter{},
	}
	f.dir = &mockDirectory{
		orgs:    map[uuid.UUID]bool{f.lab: true, f.nonLab: false},
		circles: map[uuid.UUID][]uuid.UUID{},
	}
	f.svc = NewService(repo, l, f.dir, &mockTx{repo: repo})
	f.svc.SetEmitter(f.emitter)
	f.svc.now = func() time.Time { return time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC) }
	return f
}

// principal returns a caller in an organization of its own.
func principal(role auth.Role) *auth.Principal {
	return &auth.Principal{UserID: uuid.New(), Username: role.String(), Role: role, OrganizationID: uuid.New()}
}

func as(p *auth.Principal) context.Context {
	return auth.WithPrincipal(context.Background(), p)
}

// morbidityEvent is a create payload with one location (start 2024-01-01,
// open end) and one species with five dead.
func morbidityEvent() *NewEvent {
	return &NewEvent{
		EventType: TypeMorbidityMortality,
		Locations: []NewLocation{{
			EventLocation: EventLocation{
				StartDate:                DatePtr(2024, 1, 1),
				CountryID:                intPtr(1),
				AdministrativeLevelOneID: intPtr(5),
			},
			Species: []NewSpecies{{
				LocationSpecies: LocationSpecies{SpeciesID: speciesMallard, DeadCount: intPtr(5), SickCount: intPtr(0)},
			}},
		}},
	}
}

// withRabies adds a suspect Rabies species diagnosis and the matching event
// diagnosis to a payload.
func withRabies(in *NewEvent) *NewEvent {
	sp := &in.Locations[0].Species[0]
	sp.Diagnoses = append(sp.Diagnoses, SpeciesDiagnosis{DiagnosisID: diagRabies, Suspect: true})
	in.EventDiagnoses = append(in.EventDiagnoses, EventDiagnosis{DiagnosisID: diagRabies, Suspect: true})
	return in
}

func (f *fixture) eventDiagnoses(eventID uuid.UUID) []*EventDiagnosis {
	eds, _ := f.repo.ListEventDiagnoses(context.Background(), eventID)
	return eds
}

func (f *fixture) stored(eventID uuid.UUID) *Event {
	return copyEvent(f.repo.events[eventID])
}
