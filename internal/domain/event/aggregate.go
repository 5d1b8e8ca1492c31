package event

import "github.com/google/uuid"

// Aggregates are the event fields derived from its subtree.
type Aggregates struct {
	StartDate     *Date
	EndDate       *Date
	AffectedCount *int
}

func (a Aggregates) Equal(b Aggregates) bool {
	return dateEq(a.StartDate, b.StartDate) && dateEq(a.EndDate, b.EndDate) && intEq(a.AffectedCount, b.AffectedCount)
}

// ComputeAggregates derives start, end and affected count. Missing counts
// are zero and the result depends only on its inputs.
//
// Surveillance events sum positive_count over every species diagnosis,
// including pooled samples reported more than once.
func ComputeAggregates(eventType int, t Subtree) Aggregates {
	var a Aggregates

	allEnded := len(t.Locations) > 0
	for _, loc := range t.Locations {
		if loc.StartDate != nil && (a.StartDate == nil || loc.StartDate.Before(a.StartDate.Time)) {
			d := *loc.StartDate
			a.StartDate = &d
		}
		if loc.EndDate == nil {
			allEnded = false
		} else if a.EndDate == nil || loc.EndDate.After(a.EndDate.Time) {
			d := *loc.EndDate
			a.EndDate = &d
		}
	}
	if !allEnded {
		a.EndDate = nil
	}

	switch eventType {
	case TypeMorbidityMortality:
		sum := 0
		for _, ls := range t.Species {
			sum += ls.Affected()
		}
		a.AffectedCount = &sum
	case TypeSurveillance:
		sum := 0
		for _, sd := range t.Diagnoses {
			sum += val(sd.PositiveCount)
		}
		a.AffectedCount = &sum
	}
	return a
}

// diagnosisIDs returns the distinct diagnosis ids present in the subtree,
// optionally skipping one species diagnosis.
func (t Subtree) diagnosisIDs(skip uuid.UUID) map[int]bool {
	ids := make(map[int]bool, len(t.Diagnoses))
	for _, sd := range t.Diagnoses {
		if sd.ID != skip {
			ids[sd.DiagnosisID] = true
		}
	}
	return ids
}

func dateEq(a, b *Date) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(b.Time)
}

func intEq(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
