package timeline

import (
	"strings"

	"github.com/google/uuid"
)

// MilestoneCandidates derives the milestones a newly ingested event
// evidences. Pure: callers persist the results and update anchors.
func MilestoneCandidates(event *Event) []Milestone {
	var candidates []Milestone

	add := func(milestoneType string) {
		candidates = append(candidates, Milestone{
			ID:        uuid.New().String(),
			PatientID: event.PatientID,
			Type:      milestoneType,
			Date:      NormalizeDay(event.EventDate),
			EventID:   event.ID,
		})
	}

	switch event.EventType {
	case EventTypeDiagnosis:
		add(MilestoneInitialDiagnosis)
	case EventTypeProcedure:
		if isSurgical(event) {
			add(MilestoneSurgery)
		}
	case EventTypeMedication:
		add(MilestoneTreatmentStart)
	case EventTypeAssessment:
		if isProgression(event) {
			add(MilestoneProgression)
		}
	case EventTypeEncounter:
		if strings.EqualFold(event.Category, "death") {
			add(MilestoneDeath)
		}
	}

	return candidates
}

func isSurgical(event *Event) bool {
	category := strings.ToLower(event.Category)
	return category == "surgery" || category == "surgical" ||
		strings.Contains(strings.ToLower(event.Subtype), "resection") ||
		strings.Contains(strings.ToLower(event.Subtype), "craniotomy")
}

func isProgression(event *Event) bool {
	return strings.EqualFold(event.Category, "progression") ||
		strings.Contains(strings.ToLower(event.ClinicalStatus), "progress")
}

// ApplyAnchors folds a qualifying event into the patient's first-milestone
// anchors and last-follow-up date. Returns true when anything changed.
func ApplyAnchors(patient *Patient, event *Event, candidates []Milestone) bool {
	changed := false
	day := NormalizeDay(event.EventDate)

	for _, m := range candidates {
		switch m.Type {
		case MilestoneInitialDiagnosis:
			if patient.FirstDiagnosisDate == nil || day.Before(*patient.FirstDiagnosisDate) {
				patient.FirstDiagnosisDate = &day
				changed = true
			}
		case MilestoneSurgery:
			if patient.FirstSurgeryDate == nil || day.Before(*patient.FirstSurgeryDate) {
				patient.FirstSurgeryDate = &day
				changed = true
			}
		case MilestoneTreatmentStart:
			if patient.FirstTreatmentDate == nil || day.Before(*patient.FirstTreatmentDate) {
				patient.FirstTreatmentDate = &day
				changed = true
			}
		}
	}

	if patient.LastFollowUpDate == nil || day.After(*patient.LastFollowUpDate) {
		patient.LastFollowUpDate = &day
		changed = true
	}

	return changed
}
