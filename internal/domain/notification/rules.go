package notification

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/whispers/whispers/internal/domain/event"
	"github.com/whispers/whispers/internal/domain/identity"
)

// EventSource is the slice of the event service the daily rules read.
type EventSource interface {
	ChangedOn(ctx context.Context, day time.Time, created bool) ([]*event.Event, error)
	OpenCreatedOn(ctx context.Context, day time.Time) ([]*event.Event, error)
	Facts(ctx context.Context, e *event.Event) (event.Facts, error)
}

type Directory interface {
	Users(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*identity.User, error)
	UsersByEmails(ctx context.Context, emails []string) ([]*identity.User, error)
	OrganizationLineage(ctx context.Context, orgID uuid.UUID) ([]uuid.UUID, error)
}

type Lookups interface {
	Names(ctx context.Context, table string) (map[int]string, error)
	Diagnoses(ctx context.Context) (map[int]event.Diagnosis, error)
}

type Generator interface {
	Generate(ctx context.Context, d Draft) error
}

const (
	RuleStandard = "standard"
	RuleCustom   = "custom"
	RuleStale    = "stale"

	clientPageEvent = "event"
	sourceSystem    = "system"
)

var standardTitles = map[StandardType]string{
	StandardOwn:          "Your Events",
	StandardOrganization: "Organization Events",
	StandardCollaborator: "Collaborator Events",
	StandardAll:          "ALL Events",
}

type RulesConfig struct {
	// StalePeriods are ages in days at which open events are reported.
	StalePeriods  []int
	EpiUserEmails []string
}

// Rules evaluates the daily notification cues and hands the results to a
// Generator.
type Rules struct {
	events  EventSource
	users   Directory
	cues    CueRepository
	lookups Lookups
	sink    Generator
	cfg     RulesConfig
	logger  zerolog.Logger
}

func NewRules(events EventSource, users Directory, cues CueRepository, lookups Lookups, sink Generator, cfg RulesConfig, logger zerolog.Logger) *Rules {
	return &Rules{events: events, users: users, cues: cues, lookups: lookups, sink: sink, cfg: cfg, logger: logger}
}

// Yesterday returns the UTC calendar day before now.
func Yesterday(now time.Time) time.Time {
	return Day(now).AddDate(0, 0, -1)
}

// Day truncates t to its UTC calendar day.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

type changeSet struct {
	created bool
	events  []*event.Event
}

func (r *Rules) changes(ctx context.Context, day time.Time) ([]changeSet, error) {
	created, err := r.events.ChangedOn(ctx, day, true)
	if err != nil {
		return nil, fmt.Errorf("events created %s: %w", day.Format("2006-01-02"), err)
	}
	updated, err := r.events.ChangedOn(ctx, day, false)
	if err != nil {
		return nil, fmt.Errorf("events updated %s: %w", day.Format("2006-01-02"), err)
	}
	return []changeSet{{created: true, events: created}, {created: false, events: updated}}, nil
}

// actor is the user credited with the change: the creator for new events,
// the last modifier otherwise.
func actor(e *event.Event, created bool) uuid.UUID {
	if created {
		return e.CreatedBy
	}
	return e.ModifiedBy
}

func (r *Rules) usersFor(ctx context.Context, sets []changeSet, cueUsers []uuid.UUID) (map[uuid.UUID]*identity.User, error) {
	seen := map[uuid.UUID]bool{}
	var ids []uuid.UUID
	add := func(id uuid.UUID) {
		if id != uuid.Nil && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for _, id := range cueUsers {
		add(id)
	}
	for _, set := range sets {
		for _, e := range set.events {
			add(e.CreatedBy)
			add(e.ModifiedBy)
		}
	}
	users, err := r.users.Users(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	return users, nil
}

func username(users map[uuid.UUID]*identity.User, id uuid.UUID) string {
	if u, ok := users[id]; ok && u.Username != "" {
		return u.Username
	}
	return id.String()
}

func emailOf(users map[uuid.UUID]*identity.User, id uuid.UUID) string {
	if u, ok := users[id]; ok {
		return u.Email
	}
	return ""
}

func changeWords(created bool) (newUpdated, createdUpdated string) {
	if created {
		return "New", "created"
	}
	return "Updated", "updated"
}

func changedAt(e *event.Event, created bool) time.Time {
	if created {
		return e.CreatedAt
	}
	return e.UpdatedAt
}

// cueDraft builds the draft sent to the owner of a cue.
func cueDraft(rule, title string, users map[uuid.UUID]*identity.User, owner uuid.UUID, pref Preference, e *event.Event, created bool, extra string) Draft {
	newUpdated, createdUpdated := changeWords(created)
	by := actor(e, created)
	body := fmt.Sprintf("%s: %s event %s was %s by %s on %s.",
		title, newUpdated, e.ID, createdUpdated, username(users, by), changedAt(e, created).UTC().Format("2006-01-02"))
	if extra != "" {
		body += " " + extra
	}
	d := Draft{
		Recipients: []uuid.UUID{owner},
		Source:     username(users, by),
		EventID:    e.ID,
		ClientPage: clientPageEvent,
		Subject:    fmt.Sprintf("WHISPers %s: Event %s", title, e.ID),
		Body:       body,
		SendEmail:  pref.SendEmail,
		Rule:       rule,
	}
	if pref.SendEmail {
		d.EmailTo = []string{emailOf(users, owner)}
	}
	return d
}

// Standard evaluates every standard cue against events created or updated
// on day. Each (recipient, event) pair is notified at most once, by the
// first cue type in StandardTypes order that matches.
func (r *Rules) Standard(ctx context.Context, day time.Time) (int, error) {
	sets, err := r.changes(ctx, day)
	if err != nil {
		return 0, err
	}
	cues, err := r.cues.StandardCues(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("load standard cues: %w", err)
	}
	owners := make([]uuid.UUID, 0, len(cues))
	for _, c := range cues {
		owners = append(owners, c.UserID)
	}
	users, err := r.usersFor(ctx, sets, owners)
	if err != nil {
		return 0, err
	}

	m := &standardMatcher{rules: r, users: users, lineages: map[uuid.UUID][]uuid.UUID{}}
	type key struct{ recipient, event uuid.UUID }
	sent := map[key]bool{}
	n := 0
	for _, typ := range StandardTypes {
		for _, set := range sets {
			for _, e := range set.events {
				for _, c := range cues {
					if c.StandardType != typ || !c.Preference.Fires(set.created) {
						continue
					}
					k := key{c.UserID, e.ID}
					if sent[k] {
						continue
					}
					ok, err := m.matches(ctx, c, e)
					if err != nil {
						return n, err
					}
					if !ok {
						continue
					}
					sent[k] = true
					if r.generate(ctx, cueDraft(RuleStandard, standardTitles[typ], users, c.UserID, c.Preference, e, set.created, "")) {
						n++
					}
				}
			}
		}
	}
	return n, nil
}

type standardMatcher struct {
	rules    *Rules
	users    map[uuid.UUID]*identity.User
	lineages map[uuid.UUID][]uuid.UUID
}

func (m *standardMatcher) matches(ctx context.Context, c *StandardCue, e *event.Event) (bool, error) {
	switch c.StandardType {
	case StandardOwn:
		return c.UserID == e.CreatedBy, nil
	case StandardOrganization:
		return m.sameOrganization(ctx, c.UserID, e.CreatedBy)
	case StandardCollaborator:
		for _, id := range e.ReadCollaborators {
			if id == c.UserID {
				return true, nil
			}
		}
		for _, id := range e.WriteCollaborators {
			if id == c.UserID {
				return true, nil
			}
		}
		return false, nil
	case StandardAll:
		return true, nil
	}
	return false, nil
}

// sameOrganization is true when the cue owner's organization is the
// creator's organization or one of its parents.
func (m *standardMatcher) sameOrganization(ctx context.Context, owner, creator uuid.UUID) (bool, error) {
	o, c := m.users[owner], m.users[creator]
	if o == nil || c == nil || o.OrganizationID == nil || c.OrganizationID == nil {
		return false, nil
	}
	lineage, ok := m.lineages[*c.OrganizationID]
	if !ok {
		var err error
		lineage, err = m.rules.users.OrganizationLineage(ctx, *c.OrganizationID)
		if err != nil {
			return false, err
		}
		m.lineages[*c.OrganizationID] = lineage
	}
	for _, id := range lineage {
		if id == *o.OrganizationID {
			return true, nil
		}
	}
	return false, nil
}

// Custom evaluates every custom cue against events created or updated on day.
func (r *Rules) Custom(ctx context.Context, day time.Time) (int, error) {
	sets, err := r.changes(ctx, day)
	if err != nil {
		return 0, err
	}
	cues, err := r.cues.CustomCues(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("load custom cues: %w", err)
	}
	owners := make([]uuid.UUID, 0, len(cues))
	for _, c := range cues {
		owners = append(owners, c.UserID)
	}
	users, err := r.usersFor(ctx, sets, owners)
	if err != nil {
		return 0, err
	}

	facts := map[uuid.UUID]event.Facts{}
	factsOf := func(e *event.Event) (event.Facts, error) {
		if f, ok := facts[e.ID]; ok {
			return f, nil
		}
		f, err := r.events.Facts(ctx, e)
		if err != nil {
			return event.Facts{}, fmt.Errorf("facts for event %s: %w", e.ID, err)
		}
		facts[e.ID] = f
		return f, nil
	}

	n := 0
	for _, c := range cues {
		if !c.HasCriteria() {
			continue
		}
		var criteria string
		for _, set := range sets {
			if !c.Preference.Fires(set.created) {
				continue
			}
			for _, e := range set.events {
				f, err := factsOf(e)
				if err != nil {
					return n, err
				}
				if !MatchCustom(c, e, f) {
					continue
				}
				if criteria == "" {
					if criteria, err = r.describe(ctx, c); err != nil {
						return n, err
					}
				}
				d := cueDraft(RuleCustom, "Custom Notification", users, c.UserID, c.Preference, e, set.created, "Criteria: "+criteria+".")
				if r.generate(ctx, d) {
					n++
				}
			}
		}
	}
	return n, nil
}

// MatchCustom reports whether e satisfies every criterion set on c.
func MatchCustom(c *CustomCue, e *event.Event, f event.Facts) bool {
	if !c.HasCriteria() {
		return false
	}
	if c.EventID != nil && *c.EventID != e.ID {
		return false
	}
	if c.AffectedCount != nil {
		if e.AffectedCount == nil {
			return false
		}
		if c.lte() && *e.AffectedCount > *c.AffectedCount {
			return false
		}
		if !c.lte() && *e.AffectedCount < *c.AffectedCount {
			return false
		}
	}
	checks := []struct {
		set  ValueSet
		have []int
	}{
		{c.LandOwnership, f.LandOwnerships},
		{c.AdminLevelOne, f.AdminLevelOnes},
		{c.Species, f.Species},
		{c.Diagnosis, f.SpeciesDiagnoses},
	}
	for _, chk := range checks {
		if !chk.set.Empty() && !chk.set.Matches(chk.have) {
			return false
		}
	}
	return true
}

// describe renders the cue's criteria with lookup names.
func (r *Rules) describe(ctx context.Context, c *CustomCue) (string, error) {
	var parts []string
	if c.EventID != nil {
		parts = append(parts, "Event: "+c.EventID.String())
	}
	if c.AffectedCount != nil {
		op := ">="
		if c.lte() {
			op = "<="
		}
		parts = append(parts, "Affected Count: "+op+" "+strconv.Itoa(*c.AffectedCount))
	}
	named := []struct {
		label string
		table string
		set   ValueSet
	}{
		{"Land Ownership", event.TableLandOwnerships, c.LandOwnership},
		{"Administrative Level One", event.TableAdminLevelOnes, c.AdminLevelOne},
		{"Species", event.TableSpecies, c.Species},
	}
	for _, n := range named {
		if n.set.Empty() {
			continue
		}
		names, err := r.lookups.Names(ctx, n.table)
		if err != nil {
			return "", fmt.Errorf("load %s: %w", n.table, err)
		}
		parts = append(parts, n.label+": "+joinNames(n.set, func(id int) string { return names[id] }))
	}
	if !c.Diagnosis.Empty() {
		diags, err := r.lookups.Diagnoses(ctx)
		if err != nil {
			return "", fmt.Errorf("load diagnoses: %w", err)
		}
		parts = append(parts, "Diagnosis: "+joinNames(c.Diagnosis, func(id int) string { return diags[id].Name }))
	}
	return strings.Join(parts, "; "), nil
}

func joinNames(set ValueSet, name func(int) string) string {
	out := make([]string, 0, len(set.Values))
	for _, id := range set.Values {
		n := name(id)
		if n == "" {
			n = strconv.Itoa(id)
		}
		out = append(out, n)
	}
	return strings.Join(out, " "+set.op()+" ")
}

// Stale reminds epi staff and the creator about open events created
// exactly one of the configured periods before today.
func (r *Rules) Stale(ctx context.Context, today time.Time) (int, error) {
	if len(r.cfg.StalePeriods) == 0 {
		return 0, nil
	}
	epi, err := r.users.UsersByEmails(ctx, r.cfg.EpiUserEmails)
	if err != nil {
		return 0, fmt.Errorf("load epi users: %w", err)
	}
	today = Day(today)
	n := 0
	for _, period := range r.cfg.StalePeriods {
		events, err := r.events.OpenCreatedOn(ctx, today.AddDate(0, 0, -period))
		if err != nil {
			return n, fmt.Errorf("open events %d days old: %w", period, err)
		}
		if len(events) == 0 {
			continue
		}
		creators := make([]uuid.UUID, 0, len(events))
		for _, e := range events {
			creators = append(creators, e.CreatedBy)
		}
		users, err := r.users.Users(ctx, creators)
		if err != nil {
			return n, fmt.Errorf("load creators: %w", err)
		}
		for _, e := range events {
			d := staleDraft(e, period, epi, users)
			if r.generate(ctx, d) {
				n++
			}
		}
	}
	return n, nil
}

func staleDraft(e *event.Event, period int, epi []*identity.User, users map[uuid.UUID]*identity.User) Draft {
	seen := map[uuid.UUID]bool{}
	d := Draft{
		Source:     sourceSystem,
		EventID:    e.ID,
		ClientPage: clientPageEvent,
		Subject:    fmt.Sprintf("WHISPers Stale Event: Event %s", e.ID),
		Body: fmt.Sprintf("Event %s was created on %s and has been open for %d days. Please review it and mark it complete when appropriate.",
			e.ID, e.CreatedAt.UTC().Format("2006-01-02"), period),
		SendEmail: true,
		Rule:      RuleStale,
	}
	add := func(id uuid.UUID, email string) {
		if seen[id] {
			return
		}
		seen[id] = true
		d.Recipients = append(d.Recipients, id)
		if email != "" {
			d.EmailTo = append(d.EmailTo, email)
		}
	}
	for _, u := range epi {
		add(u.ID, u.Email)
	}
	add(e.CreatedBy, emailOf(users, e.CreatedBy))
	return d
}

// generate hands d to the sink. Failures are logged so one bad draft does
// not stop the run.
func (r *Rules) generate(ctx context.Context, d Draft) bool {
	if err := r.sink.Generate(ctx, d); err != nil {
		r.logger.Error().Err(err).Str("rule", d.Rule).Str("event_id", d.EventID.String()).Msg("generate notification")
		return false
	}
	return true
}
