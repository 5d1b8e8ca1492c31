package event

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/whispers/whispers/internal/platform/apperr"
)

// Filter fields that accept the AND operator through and_params.
const (
	FieldDiagnosis     = "diagnosis"
	FieldDiagnosisType = "diagnosis_type"
	FieldSpecies       = "species"
	FieldAdminLevelOne = "administrative_level_one"
	FieldAdminLevelTwo = "administrative_level_two"
	FieldLandOwnership = "land_ownership"
)

const listDelimiter = ","

// nonSearchParams never take part in a saved search.
var nonSearchParams = map[string]bool{"no_page": true, "page": true, "page_size": true, "limit": true, "offset": true, "format": true, "mine": true}

// Filter is a parsed event search. A comma-separated list matches any of
// its values unless the field is named in And.
type Filter struct {
	Complete         *bool
	EventTypes       []int
	Diagnoses        []int
	DiagnosisTypes   []int
	Species          []int
	AdminLevelOnes   []int
	AdminLevelTwos   []int
	Flyways          []int
	Countries        []int
	LandOwnerships   []int
	GNISIDs          []string
	AffectedCountGTE *int
	AffectedCountLTE *int
	// StartDateAfter matches events with start_date strictly after it.
	StartDateAfter *Date
	// EndDateBefore matches events with end_date strictly before it.
	EndDateBefore *Date
	And           map[string]bool
	// Params holds the search parameters in key order, for saved searches.
	Params map[string]string
}

// ParseFilter reads the search parameters from q. Unparseable values are
// reported together as a validation error.
func ParseFilter(q url.Values) (*Filter, error) {
	f := &Filter{And: map[string]bool{}, Params: map[string]string{}}
	var m apperr.Messages

	for key, vals := range q {
		if len(vals) == 0 || nonSearchParams[key] {
			continue
		}
		f.Params[key] = vals[0]
	}

	if v := q.Get("complete"); v != "" {
		switch strings.ToLower(v) {
		case "true":
			f.Complete = boolPtr(true)
		case "false":
			f.Complete = boolPtr(false)
		}
	}
	ints := []struct {
		key string
		dst *[]int
	}{
		{"event_type", &f.EventTypes},
		{FieldDiagnosis, &f.Diagnoses},
		{FieldDiagnosisType, &f.DiagnosisTypes},
		{FieldSpecies, &f.Species},
		{FieldAdminLevelOne, &f.AdminLevelOnes},
		{FieldAdminLevelTwo, &f.AdminLevelTwos},
		{"flyway", &f.Flyways},
		{"country", &f.Countries},
		{FieldLandOwnership, &f.LandOwnerships},
	}
	for _, p := range ints {
		v := q.Get(p.key)
		if v == "" {
			continue
		}
		ids, err := splitInts(v)
		if err != nil {
			m.Add(p.key + ": " + err.Error())
			continue
		}
		*p.dst = ids
	}
	if v := q.Get("gnis_id"); v != "" {
		f.GNISIDs = splitStrings(v)
	}
	for key, dst := range map[string]**int{"affected_count__gte": &f.AffectedCountGTE, "affected_count__lte": &f.AffectedCountLTE} {
		v := q.Get(key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			m.Add(key + ": must be an integer")
			continue
		}
		*dst = &n
	}
	for key, dst := range map[string]**Date{"start_date": &f.StartDateAfter, "end_date": &f.EndDateBefore} {
		v := q.Get(key)
		if v == "" {
			continue
		}
		d, err := ParseDate(v)
		if err != nil {
			m.Add(key + ": " + err.Error())
			continue
		}
		*dst = &d
	}
	for _, field := range splitStrings(q.Get("and_params")) {
		f.And[field] = true
	}
	if err := m.Err(); err != nil {
		return nil, err
	}
	return f, nil
}

// Empty reports whether the filter carries no search parameters.
func (f *Filter) Empty() bool { return f == nil || len(f.Params) == 0 }

// Fingerprint identifies the parameter set independent of order.
func (f *Filter) Fingerprint() string {
	keys := make([]string, 0, len(f.Params))
	for k := range f.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	h := sha256.New()
	for _, k := range keys {
		h.Write([]byte(k + "=" + f.Params[k] + "\n"))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// all reports whether field uses the AND operator.
func (f *Filter) all(field string) bool { return f.And[field] }

// Facts is what an event's subtree contributes to filtering.
type Facts struct {
	Diagnoses        []int
	SpeciesDiagnoses []int
	DiagnosisTypes   []int
	Species          []int
	AdminLevelOnes   []int
	AdminLevelTwos   []int
	Flyways          []int
	Countries        []int
	LandOwnerships   []int
	GNISIDs          []string
}

// FactsOf collects filter facts from a subtree. Diagnosis filters match
// event diagnoses, not species diagnoses.
func FactsOf(t Subtree, eds []*EventDiagnosis, lookup map[int]Diagnosis) Facts {
	var f Facts
	for _, ed := range eds {
		f.Diagnoses = append(f.Diagnoses, ed.DiagnosisID)
		if d, ok := lookup[ed.DiagnosisID]; ok && d.DiagnosisTypeID != nil {
			f.DiagnosisTypes = append(f.DiagnosisTypes, *d.DiagnosisTypeID)
		}
	}
	for _, loc := range t.Locations {
		f.AdminLevelOnes = appendSet(f.AdminLevelOnes, loc.AdministrativeLevelOneID)
		f.AdminLevelTwos = appendSet(f.AdminLevelTwos, loc.AdministrativeLevelTwoID)
		f.Flyways = appendSet(f.Flyways, loc.FlywayID)
		f.Countries = appendSet(f.Countries, loc.CountryID)
		f.LandOwnerships = appendSet(f.LandOwnerships, loc.LandOwnershipID)
		if loc.GNISID != "" {
			f.GNISIDs = append(f.GNISIDs, loc.GNISID)
		}
	}
	for _, ls := range t.Species {
		f.Species = append(f.Species, ls.SpeciesID)
	}
	for _, sd := range t.Diagnoses {
		f.SpeciesDiagnoses = append(f.SpeciesDiagnoses, sd.DiagnosisID)
	}
	return f
}

func appendSet(s []int, v *int) []int {
	if v == nil {
		return s
	}
	return append(s, *v)
}

// Match evaluates the filter against one event in memory.
func (f *Filter) Match(e *Event, facts Facts) bool {
	if f == nil {
		return true
	}
	if f.Complete != nil && e.Complete != *f.Complete {
		return false
	}
	if len(f.EventTypes) > 0 && !anyInt(f.EventTypes, []int{e.EventType}) {
		return false
	}
	multi := []struct {
		field string
		want  []int
		have  []int
	}{
		{FieldDiagnosis, f.Diagnoses, facts.Diagnoses},
		{FieldDiagnosisType, f.DiagnosisTypes, facts.DiagnosisTypes},
		{FieldSpecies, f.Species, facts.Species},
		{FieldAdminLevelOne, f.AdminLevelOnes, facts.AdminLevelOnes},
		{FieldAdminLevelTwo, f.AdminLevelTwos, facts.AdminLevelTwos},
		{"flyway", f.Flyways, facts.Flyways},
		{"country", f.Countries, facts.Countries},
		{FieldLandOwnership, f.LandOwnerships, facts.LandOwnerships},
	}
	for _, c := range multi {
		if len(c.want) == 0 {
			continue
		}
		if f.all(c.field) {
			if !allInt(c.want, c.have) {
				return false
			}
		} else if !anyInt(c.want, c.have) {
			return false
		}
	}
	if len(f.GNISIDs) > 0 {
		found := false
		for _, g := range facts.GNISIDs {
			for _, w := range f.GNISIDs {
				if g == w {
					found = true
				}
			}
		}
		if !found {
			return false
		}
	}
	if f.AffectedCountGTE != nil && (e.AffectedCount == nil || *e.AffectedCount < *f.AffectedCountGTE) {
		return false
	}
	if f.AffectedCountLTE != nil && (e.AffectedCount == nil || *e.AffectedCount > *f.AffectedCountLTE) {
		return false
	}
	if f.StartDateAfter != nil && (e.StartDate == nil || !e.StartDate.After(f.StartDateAfter.Time)) {
		return false
	}
	if f.EndDateBefore != nil && (e.EndDate == nil || !e.EndDate.Before(f.EndDateBefore.Time)) {
		return false
	}
	return true
}

func anyInt(want, have []int) bool {
	for _, w := range want {
		for _, h := range have {
			if w == h {
				return true
			}
		}
	}
	return false
}

func allInt(want, have []int) bool {
	set := make(map[int]bool, len(have))
	for _, h := range have {
		set[h] = true
	}
	for _, w := range want {
		if !set[w] {
			return false
		}
	}
	return true
}

func splitStrings(s string) []string {
	var out []string
	for _, part := range strings.Split(s, listDelimiter) {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func splitInts(s string) ([]int, error) {
	parts := splitStrings(s)
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, errInvalidID(p)
		}
		out = append(out, n)
	}
	return out, nil
}

type errInvalidID string

func (e errInvalidID) Error() string { return "invalid id " + strconv.Quote(string(e)) }

func boolPtr(b bool) *bool { return &b }
