package event

import "github.com/google/uuid"

// Placeholders holds the lookup ids of the two placeholder diagnoses.
type Placeholders struct {
	Pending      int
	Undetermined int
}

func (p Placeholders) Is(diagnosisID int) bool {
	return diagnosisID == p.Pending || diagnosisID == p.Undetermined
}

// placeholderPlan is the change needed to restore the placeholder invariant.
type placeholderPlan struct {
	Delete []uuid.UUID
	// Create is the placeholder to add, or 0 when none is needed.
	Create int
}

// planPlaceholders: an open event drops "Undetermined", a complete event
// drops "Pending"; if nothing remains, the matching placeholder is added.
func planPlaceholders(complete bool, diags []*EventDiagnosis, ph Placeholders) placeholderPlan {
	drop, keep := ph.Undetermined, ph.Pending
	if complete {
		drop, keep = ph.Pending, ph.Undetermined
	}
	var plan placeholderPlan
	remaining := 0
	for _, d := range diags {
		if d.DiagnosisID == drop {
			plan.Delete = append(plan.Delete, d.ID)
			continue
		}
		remaining++
	}
	if remaining == 0 {
		plan.Create = keep
	}
	return plan
}
