package timeline

import (
	"sort"
	"strings"
	"time"

	"github.com/chronica-ai/platform/pkg/common/models"
)

const (
	PhasePreDiagnosis = "pre-diagnosis"
	PhasePostSurgical = "post-surgical"
	PhaseOnTreatment  = "on-treatment"
	PhaseSurveillance = "surveillance"
	PhaseProgression  = "progression"
)

const TreatmentNaive = "treatment-naive"

// ContextBuilder derives the clinical context of any anchor date purely from
// snapshot contents. It holds configuration only, never state.
type ContextBuilder struct {
	postSurgicalWindowDays int
}

func NewContextBuilder(postSurgicalWindowDays int) *ContextBuilder {
	if postSurgicalWindowDays <= 0 {
		postSurgicalWindowDays = 90
	}
	return &ContextBuilder{postSurgicalWindowDays: postSurgicalWindowDays}
}

// Build computes the temporal context at the anchor date.
func (b *ContextBuilder) Build(snap *Snapshot, anchor time.Time) models.TemporalContext {
	anchorDay := NormalizeDay(anchor)

	ctx := models.TemporalContext{
		PatientID:  snap.Patient.ID,
		AnchorDate: anchorDay,
	}

	if snap.Patient.BirthDate != nil {
		age := DaysBetween(*snap.Patient.BirthDate, anchorDay)
		ctx.AgeDays = &age
	}
	ctx.DaysSinceDiagnosis = daysSince(snap.Patient.FirstDiagnosisDate, anchorDay)
	ctx.DaysSinceSurgery = daysSince(snap.Patient.FirstSurgeryDate, anchorDay)
	ctx.DaysSinceTreatment = daysSince(snap.Patient.FirstTreatmentDate, anchorDay)

	intervals := medicationIntervals(snap)
	ctx.DiseasePhase = b.diseasePhase(snap, anchorDay, intervals)
	ctx.TreatmentStatus = treatmentStatus(snap, anchorDay, intervals)

	return ctx
}

// DaysSinceMilestone is the signed day distance from a milestone date to the
// anchor: negative when the anchor precedes the milestone. Swapping the two
// arguments negates the result.
func DaysSinceMilestone(anchor, milestone time.Time) int {
	return DaysBetween(milestone, anchor)
}

func daysSince(milestone *time.Time, anchor time.Time) *int {
	if milestone == nil {
		return nil
	}
	days := DaysSinceMilestone(anchor, *milestone)
	return &days
}

// diseasePhase applies the strict priority rule: pre-diagnosis, then
// post-surgical, then on-treatment, then surveillance, then progression.
func (b *ContextBuilder) diseasePhase(snap *Snapshot, anchor time.Time, intervals []medicationInterval) string {
	if snap.Patient.FirstDiagnosisDate == nil || anchor.Before(*snap.Patient.FirstDiagnosisDate) {
		return PhasePreDiagnosis
	}

	if surgery := latestMilestoneBefore(snap, MilestoneSurgery, anchor); surgery != nil {
		if DaysBetween(surgery.Date, anchor) <= b.postSurgicalWindowDays {
			return PhasePostSurgical
		}
	}

	for _, interval := range intervals {
		if interval.open(anchor) {
			return PhaseOnTreatment
		}
	}

	if surgery := latestMilestoneBefore(snap, MilestoneSurgery, anchor); surgery != nil {
		return PhaseSurveillance
	}

	for _, m := range snap.Milestones {
		if m.Type == MilestoneProgression && SameCalendarDay(m.Date, anchor) {
			return PhaseProgression
		}
	}

	return PhaseSurveillance
}

func treatmentStatus(snap *Snapshot, anchor time.Time, intervals []medicationInterval) string {
	var open []string
	seen := make(map[string]bool)
	for _, interval := range intervals {
		if interval.open(anchor) && interval.category != "" && !seen[interval.category] {
			open = append(open, interval.category)
			seen[interval.category] = true
		}
	}
	if len(open) > 0 {
		sort.Strings(open)
		return "on-" + strings.Join(open, "+")
	}

	for _, interval := range intervals {
		if !interval.start.After(anchor) {
			return "off-treatment"
		}
	}

	return TreatmentNaive
}

type medicationInterval struct {
	start    time.Time
	end      *time.Time
	category string
}

func (i medicationInterval) open(anchor time.Time) bool {
	if anchor.Before(i.start) {
		return false
	}
	if i.end != nil && anchor.After(*i.end) {
		return false
	}
	return true
}

func medicationIntervals(snap *Snapshot) []medicationInterval {
	var intervals []medicationInterval
	for _, event := range snap.ActiveEvents() {
		if event.EventType != EventTypeMedication {
			continue
		}
		payload, err := PayloadFromJSON(event.Details)
		if err != nil {
			continue
		}
		interval := medicationInterval{start: NormalizeDay(event.EventDate)}
		if payload.Medication != nil {
			interval.category = strings.ToLower(payload.Medication.Category)
			if payload.Medication.StartDate != nil {
				interval.start = NormalizeDay(*payload.Medication.StartDate)
			}
			if payload.Medication.EndDate != nil {
				end := NormalizeDay(*payload.Medication.EndDate)
				interval.end = &end
			}
		}
		if interval.category == "" {
			interval.category = strings.ToLower(event.Category)
		}
		intervals = append(intervals, interval)
	}
	return intervals
}

func latestMilestoneBefore(snap *Snapshot, milestoneType string, anchor time.Time) *Milestone {
	var latest *Milestone
	for i := range snap.Milestones {
		m := snap.Milestones[i]
		if m.Type != milestoneType || m.Date.After(anchor) {
			continue
		}
		if latest == nil || m.Date.After(latest.Date) {
			latest = &m
		}
	}
	return latest
}

// Neighbors assembles the windowed neighbor list: every active event within
// [anchor-daysBefore, anchor+daysAfter] excluding the anchor event itself,
// sorted by absolute temporal distance and annotated with signed day offsets.
func (b *ContextBuilder) Neighbors(snap *Snapshot, anchor time.Time, daysBefore, daysAfter int, excludeEventID string) []models.NeighborEvent {
	anchorDay := NormalizeDay(anchor)
	var neighbors []models.NeighborEvent

	for _, event := range snap.ActiveEvents() {
		if event.ID == excludeEventID {
			continue
		}
		offset := DaysBetween(anchorDay, event.EventDate)
		if offset < -daysBefore || offset > daysAfter {
			continue
		}
		neighbors = append(neighbors, models.NeighborEvent{
			EventID:     event.ID,
			EventType:   event.EventType,
			Category:    event.Category,
			Description: event.Description,
			EventDate:   NormalizeDay(event.EventDate),
			OffsetDays:  offset,
		})
	}

	sort.SliceStable(neighbors, func(i, j int) bool {
		di := abs(neighbors[i].OffsetDays)
		dj := abs(neighbors[j].OffsetDays)
		if di != dj {
			return di < dj
		}
		return neighbors[i].EventID < neighbors[j].EventID
	})

	return neighbors
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
