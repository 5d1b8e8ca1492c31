package event

import (
	"github.com/whispers/whispers/internal/platform/apperr"
)

const (
	msgNestedStartDate = "start_date is required for at least one new event_location."
	msgNestedSpecies   = "Each new event_location requires at least one new location_species."
	msgNestedMinCount  = "At least one new location_species requires at least one species count in any of the" +
		" following fields: dead_count_estimated, dead_count, sick_count_estimated, sick_count."
	msgPopulation = "location_species population_count cannot be less than the sum of dead_count" +
		" and sick_count (where those counts are the maximum of the estimated or known count)."
	msgEstimatedSick = "Estimated sick count must always be more than known sick count."
	msgEstimatedDead = "Estimated dead count must always be more than known dead count."

	msgCompleteLocations = "The event may not be marked complete until all of its locations have an end date" +
		" and each location's end date is after that location's start date."
	msgCompleteSpeciesCount = "Each location_species requires at least one species count in any of the following" +
		" fields: dead_count_estimated, dead_count, sick_count_estimated, sick_count."
	msgCompleteEstimated = "Estimated sick or dead counts must always be more than known sick or dead counts."
	msgCompleteBasis     = "The event may not be marked complete until all of its location species diagnoses" +
		" have a basis of diagnosis."
	msgCompleteCause = "The event may not be marked complete until all of its location species diagnoses" +
		" have a cause."

	msgNonSuspectBasis = "The basis of diagnosis can only be 'Necropsy and/or ancillary tests performed" +
		" at a diagnostic laboratory' when the diagnosis is non-suspect."
	msgDiagnosedCount     = "The diagnosed count cannot be more than the tested count."
	msgPositiveSuspect    = "The positive count and suspect count together cannot be more than the tested count."
	msgNonSuspectPositive = "The positive count cannot be zero when the diagnosis is non-suspect."
	msgPooled             = "A diagnosis can only be pooled if the tested count is greater than one."
	msgSpeciesDiagUnique  = "A diagnosis can only be used once for a location-species combination."
	msgLaboratoryOnly     = "SpeciesDiagnosis Organization can only be a laboratory."
	msgEventDiagMatch     = "A diagnosis for Event Diagnosis must match a diagnosis of a Species Diagnosis of this event."
	msgEventDiagUnique    = "A diagnosis can only be used once per event."
	msgQualityCheck       = "The quality check date can only be set on a complete event."
)

const lockSuffix = " unless the event is first re-opened by the event owner or an administrator."

// Lock messages per record kind.
const (
	msgLockedEvent = "Complete events may not be changed" +
		" unless first re-opened by the event owner or an administrator."
	msgLockedEventOwner = "Complete events may only be changed by the event owner or an administrator" +
		" if the 'complete' field is set to False."
	msgLockedEventDelete      = "A complete event may not be changed" + lockSuffix
	msgLockedLocation         = "Locations from a complete event may not be changed" + lockSuffix
	msgLockedSpecies          = "Species from a location from a complete event may not be changed" + lockSuffix
	msgLockedEventDiagnosis   = "Diagnosis from a complete event may not be changed" + lockSuffix
	msgLockedSpeciesDiagnosis = "Diagnosis from a species from a location from a complete event may not be changed" + lockSuffix
	msgLockedContact          = "Contacts from a location from a complete event may not be changed" + lockSuffix
)

// Subtree is every record below one event.
type Subtree struct {
	Locations []*EventLocation
	Species   []*LocationSpecies
	Diagnoses []*SpeciesDiagnosis
}

// checkSpeciesCounts adds population and estimated-versus-known violations.
func checkSpeciesCounts(ls *LocationSpecies, m *apperr.Messages) {
	if ls.PopulationCount != nil {
		m.AddIf(*ls.PopulationCount < ls.Affected(), msgPopulation)
	}
	if ls.SickCountEstimated != nil && ls.SickCount != nil {
		m.AddIf(*ls.SickCountEstimated <= *ls.SickCount, msgEstimatedSick)
	}
	if ls.DeadCountEstimated != nil && ls.DeadCount != nil {
		m.AddIf(*ls.DeadCountEstimated <= *ls.DeadCount, msgEstimatedDead)
	}
}

// normalizeSpeciesDiagnosis applies save-time defaults: a confirmed pooled
// diagnosis has at least one positive and one suspect sample.
func normalizeSpeciesDiagnosis(sd *SpeciesDiagnosis) {
	if !sd.Suspect && sd.Pooled {
		if val(sd.PositiveCount) == 0 {
			sd.PositiveCount = intPtr(1)
		}
		if val(sd.SuspectCount) == 0 {
			sd.SuspectCount = intPtr(1)
		}
	}
}

func checkSpeciesDiagnosis(sd *SpeciesDiagnosis, m *apperr.Messages) {
	if !sd.Suspect {
		m.AddIf(sd.BasisID == nil || *sd.BasisID != LabBasisID, msgNonSuspectBasis)
		// A missing positive count is filled in on save; an explicit zero is not.
		m.AddIf(sd.PositiveCount != nil && *sd.PositiveCount <= 0, msgNonSuspectPositive)
	}
	// Count bounds apply once a tested count is recorded.
	if sd.TestedCount != nil {
		tested := *sd.TestedCount
		m.AddIf(val(sd.DiagnosisCount) > tested, msgDiagnosedCount)
		m.AddIf(val(sd.PositiveCount)+val(sd.SuspectCount) > tested, msgPositiveSuspect)
	}
	m.AddIf(sd.Pooled && val(sd.TestedCount) < 2, msgPooled)
}

// CompletionViolations returns every rule that blocks marking an event
// of eventType complete.
func CompletionViolations(eventType int, t Subtree) []string {
	var m apperr.Messages
	for _, loc := range t.Locations {
		if loc.StartDate == nil || loc.EndDate == nil || !loc.EndDate.After(loc.StartDate.Time) {
			m.Add(msgCompleteLocations)
		}
	}
	if eventType == TypeMorbidityMortality {
		for _, ls := range t.Species {
			m.AddIf(!ls.HasCount(), msgCompleteSpeciesCount)
			if ls.SickCountEstimated != nil && ls.SickCount != nil && *ls.SickCountEstimated <= *ls.SickCount {
				m.Add(msgCompleteEstimated)
			}
			if ls.DeadCountEstimated != nil && ls.DeadCount != nil && *ls.DeadCountEstimated <= *ls.DeadCount {
				m.Add(msgCompleteEstimated)
			}
		}
	}
	for _, sd := range t.Diagnoses {
		m.AddIf(sd.BasisID == nil, msgCompleteBasis)
		m.AddIf(sd.CauseID == nil, msgCompleteCause)
	}
	return m
}

// checkNewEvent runs the nested creation rules over a create payload.
// Per-record species diagnosis rules are checked separately.
func checkNewEvent(in *NewEvent, m *apperr.Messages) {
	hasStart, hasSpecies, hasCount := false, false, false
	for i := range in.Locations {
		loc := &in.Locations[i]
		if loc.StartDate != nil {
			hasStart = true
		}
		if len(loc.Species) > 0 {
			hasSpecies = true
		}
		for j := range loc.Species {
			sp := &loc.Species[j]
			checkSpeciesCounts(&sp.LocationSpecies, m)
			if sp.HasCount() {
				hasCount = true
			}
		}
	}
	m.AddIf(!hasStart, msgNestedStartDate)
	m.AddIf(!hasSpecies, msgNestedSpecies)
	m.AddIf(in.EventType == TypeMorbidityMortality && !hasCount, msgNestedMinCount)

	if in.Complete {
		for _, msg := range CompletionViolations(in.EventType, in.subtree()) {
			m.Add(msg)
		}
	}
}
