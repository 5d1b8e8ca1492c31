package event

// propagatedSuspect decides the suspect flag of the event diagnosis that
// shares a diagnosis with a just-saved species diagnosis.
//
// A confirmed species diagnosis confirms the event diagnosis. A suspect one
// reverts it to suspect only when no species diagnosis under the event with
// the same diagnosis is confirmed. Placeholders are never suspect.
func propagatedSuspect(saved *SpeciesDiagnosis, all []*SpeciesDiagnosis, ed *EventDiagnosis, ph Placeholders) bool {
	if ph.Is(ed.DiagnosisID) {
		return false
	}
	if !saved.Suspect {
		return false
	}
	for _, sd := range all {
		if sd.DiagnosisID == saved.DiagnosisID && !sd.Suspect {
			return false
		}
	}
	return true
}
