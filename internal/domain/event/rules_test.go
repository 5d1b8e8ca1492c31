package event

import (
	"testing"

	"github.com/whispers/whispers/internal/platform/apperr"
)

func hasMessage(msgs []string, want string) bool {
	for _, m := range msgs {
		if m == want {
			return true
		}
	}
	return false
}

func TestCheckSpeciesCounts(t *testing.T) {
	tests := []struct {
		name string
		ls   LocationSpecies
		want []string
	}{
		{"valid", LocationSpecies{PopulationCount: intPtr(10), DeadCount: intPtr(2), SickCount: intPtr(3)}, nil},
		{"population too small", LocationSpecies{PopulationCount: intPtr(4), DeadCount: intPtr(2), SickCount: intPtr(3)}, []string{msgPopulation}},
		{"estimated sick equal", LocationSpecies{SickCount: intPtr(3), SickCountEstimated: intPtr(3)}, []string{msgEstimatedSick}},
		{"estimated dead lower", LocationSpecies{DeadCount: intPtr(3), DeadCountEstimated: intPtr(1)}, []string{msgEstimatedDead}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var m apperr.Messages
			checkSpeciesCounts(&tt.ls, &m)
			if len(m) != len(tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, m)
			}
			for _, w := range tt.want {
				if !hasMessage(m, w) {
					t.Errorf("missing %q in %v", w, m)
				}
			}
		})
	}
}

func TestCheckSpeciesDiagnosis(t *testing.T) {
	lab := LabBasisID
	field := 1
	tests := []struct {
		name string
		sd   SpeciesDiagnosis
		want []string
	}{
		{"suspect without counts", SpeciesDiagnosis{Suspect: true}, nil},
		{"confirmed needs lab basis", SpeciesDiagnosis{BasisID: &field, PositiveCount: intPtr(1)}, []string{msgNonSuspectBasis}},
		{"confirmed zero positives", SpeciesDiagnosis{BasisID: &lab, PositiveCount: intPtr(0)}, []string{msgNonSuspectPositive}},
		{"confirmed positives left to default", SpeciesDiagnosis{BasisID: &lab}, nil},
		{"diagnosed over tested", SpeciesDiagnosis{Suspect: true, TestedCount: intPtr(2), DiagnosisCount: intPtr(3)}, []string{msgDiagnosedCount}},
		{"positive plus suspect over tested", SpeciesDiagnosis{Suspect: true, TestedCount: intPtr(3), PositiveCount: intPtr(2), SuspectCount: intPtr(2)}, []string{msgPositiveSuspect}},
		{"pooled single sample", SpeciesDiagnosis{Suspect: true, Pooled: true, TestedCount: intPtr(1)}, []string{msgPooled}},
		{"pooled without tested", SpeciesDiagnosis{Suspect: true, Pooled: true}, []string{msgPooled}},
		{"confirmed valid", SpeciesDiagnosis{BasisID: &lab, PositiveCount: intPtr(2), TestedCount: intPtr(4)}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var m apperr.Messages
			checkSpeciesDiagnosis(&tt.sd, &m)
			if len(m) != len(tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, m)
			}
			for _, w := range tt.want {
				if !hasMessage(m, w) {
					t.Errorf("missing %q in %v", w, m)
				}
			}
		})
	}
}

func TestNormalizeSpeciesDiagnosis_PooledConfirmed(t *testing.T) {
	sd := SpeciesDiagnosis{Pooled: true, TestedCount: intPtr(5)}
	normalizeSpeciesDiagnosis(&sd)
	if val(sd.PositiveCount) != 1 || val(sd.SuspectCount) != 1 {
		t.Errorf("expected positive and suspect defaults of 1, got %v %v", sd.PositiveCount, sd.SuspectCount)
	}

	suspect := SpeciesDiagnosis{Pooled: true, Suspect: true, TestedCount: intPtr(5)}
	normalizeSpeciesDiagnosis(&suspect)
	if suspect.PositiveCount != nil || suspect.SuspectCount != nil {
		t.Error("expected suspect pooled diagnosis to be left alone")
	}

	counted := SpeciesDiagnosis{Pooled: true, TestedCount: intPtr(5), PositiveCount: intPtr(3)}
	normalizeSpeciesDiagnosis(&counted)
	if val(counted.PositiveCount) != 3 {
		t.Errorf("expected positive count kept at 3, got %d", val(counted.PositiveCount))
	}
}

func TestCompletionViolations(t *testing.T) {
	lab, cause := LabBasisID, 1
	complete := Subtree{
		Locations: []*EventLocation{{StartDate: DatePtr(2024, 1, 1), EndDate: DatePtr(2024, 1, 10)}},
		Species:   []*LocationSpecies{{DeadCount: intPtr(2)}},
		Diagnoses: []*SpeciesDiagnosis{{BasisID: &lab, CauseID: &cause}},
	}
	if v := CompletionViolations(TypeMorbidityMortality, complete); len(v) != 0 {
		t.Fatalf("expected no violations, got %v", v)
	}

	broken := Subtree{
		Locations: []*EventLocation{
			{StartDate: DatePtr(2024, 1, 1)},
			{StartDate: DatePtr(2024, 1, 5), EndDate: DatePtr(2024, 1, 5)},
		},
		Species: []*LocationSpecies{
			{},
			{SickCount: intPtr(4), SickCountEstimated: intPtr(2)},
		},
		Diagnoses: []*SpeciesDiagnosis{{}},
	}
	v := CompletionViolations(TypeMorbidityMortality, broken)
	for _, want := range []string{msgCompleteLocations, msgCompleteSpeciesCount, msgCompleteEstimated, msgCompleteBasis, msgCompleteCause} {
		if !hasMessage(v, want) {
			t.Errorf("missing %q in %v", want, v)
		}
	}
	if len(v) != 5 {
		t.Errorf("expected each violation once, got %d: %v", len(v), v)
	}

	// Species counts only bind morbidity/mortality events.
	v = CompletionViolations(TypeSurveillance, Subtree{
		Locations: complete.Locations,
		Species:   []*LocationSpecies{{}},
	})
	if len(v) != 0 {
		t.Errorf("expected surveillance without counts to pass, got %v", v)
	}
}

func TestCheckNewEvent(t *testing.T) {
	var m apperr.Messages
	checkNewEvent(morbidityEvent(), &m)
	if len(m) != 0 {
		t.Fatalf("expected valid payload, got %v", m)
	}

	noStart := morbidityEvent()
	noStart.Locations[0].StartDate = nil
	m = nil
	checkNewEvent(noStart, &m)
	if !hasMessage(m, msgNestedStartDate) {
		t.Errorf("expected start date message, got %v", m)
	}

	noSpecies := morbidityEvent()
	noSpecies.Locations[0].Species = nil
	m = nil
	checkNewEvent(noSpecies, &m)
	if !hasMessage(m, msgNestedSpecies) || !hasMessage(m, msgNestedMinCount) {
		t.Errorf("expected species and count messages, got %v", m)
	}

	surveillance := morbidityEvent()
	surveillance.EventType = TypeSurveillance
	surveillance.Locations[0].Species[0].DeadCount = nil
	m = nil
	checkNewEvent(surveillance, &m)
	if len(m) != 0 {
		t.Errorf("expected surveillance without counts to pass, got %v", m)
	}

	completeOpen := morbidityEvent()
	completeOpen.Complete = true
	m = nil
	checkNewEvent(completeOpen, &m)
	if !hasMessage(m, msgCompleteLocations) {
		t.Errorf("expected completion rules on a complete payload, got %v", m)
	}
}
