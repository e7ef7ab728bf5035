package scheduling

// FindConflicts returns the appointments that collide with the candidate:
// same clinic, not cancelled, not excludeID, overlapping in time, and
// holding the candidate's clinician or (when requested) its room.
// The result keeps the order of appointments.
func FindConflicts(appointments []*Appointment, candidate Candidate, excludeID string) []*Appointment {
	var conflicts []*Appointment
	for _, a := range appointments {
		if a == nil || a.ClinicID != candidate.ClinicID {
			continue
		}
		if excludeID != "" && a.ID == excludeID {
			continue
		}
		if !a.Status.Blocks() {
			continue
		}
		if !Overlaps(a.Interval(), candidate.Interval) {
			continue
		}
		if candidate.Resources.ContendsWith(a) {
			conflicts = append(conflicts, a)
		}
	}
	return conflicts
}
