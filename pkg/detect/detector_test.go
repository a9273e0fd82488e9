package detect

import (
	"testing"
	"time"

	"github.com/chronica-ai/platform/pkg/timeline"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func imagingEvent(id string, date time.Time) timeline.Event {
	return timeline.Event{
		ID:        id,
		PatientID: "p1",
		EventDate: date,
		EventType: timeline.EventTypeImaging,
		Active:    true,
	}
}

func statusVariable(id, value string, date time.Time, confidence float64) timeline.ExtractedVariable {
	return timeline.ExtractedVariable{
		ID:            id,
		PatientID:     "p1",
		Variable:      "tumor_status",
		Value:         value,
		Confidence:    confidence,
		EventID:       "ev-" + id,
		EffectiveDate: date,
		ExtractedAt:   date,
	}
}

func TestDetectDuplicatesOneRecordPerGroup(t *testing.T) {
	snap := &timeline.Snapshot{
		Patient: timeline.Patient{ID: "p1"},
		Events: []timeline.Event{
			imagingEvent("e1", day(2018, 5, 27)),
			imagingEvent("e2", time.Date(2018, 5, 27, 14, 0, 0, 0, time.UTC)),
			imagingEvent("e3", day(2018, 5, 27)),
			imagingEvent("e4", day(2018, 6, 3)),
		},
	}

	records := New(DefaultRules(), "").Run(snap)
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	record := records[0]
	if record.Kind != KindDuplicate {
		t.Fatalf("kind = %s, want %s", record.Kind, KindDuplicate)
	}
	if ids := record.AffectedEventIDs(); len(ids) != 3 {
		t.Fatalf("group must reference all three same-day events, got %v", ids)
	}
}

func TestDetectDuplicatesIgnoresSupersededAndOtherTypes(t *testing.T) {
	superseded := imagingEvent("e2", day(2018, 5, 27))
	superseded.Active = false

	snap := &timeline.Snapshot{
		Patient: timeline.Patient{ID: "p1"},
		Events: []timeline.Event{
			imagingEvent("e1", day(2018, 5, 27)),
			superseded,
			{ID: "m1", PatientID: "p1", EventDate: day(2018, 5, 27), EventType: timeline.EventTypeMedication, Active: true},
			{ID: "m2", PatientID: "p1", EventDate: day(2018, 5, 27), EventType: timeline.EventTypeMedication, Active: true},
		},
	}

	for _, record := range New(DefaultRules(), "").Run(snap) {
		if record.Kind == KindDuplicate {
			t.Fatalf("unexpected duplicate record: %s", record.Description)
		}
	}
}

func TestTemporalImplausibilityFlagsFastReversal(t *testing.T) {
	snap := &timeline.Snapshot{
		Patient: timeline.Patient{ID: "p1"},
		Variables: []timeline.ExtractedVariable{
			statusVariable("v1", "Increased", day(2018, 5, 20), 0.9),
			statusVariable("v2", "Decreased", day(2018, 5, 22), 0.9),
		},
	}

	records := New(DefaultRules(), "").Run(snap)
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if records[0].Kind != KindTemporalImplausibility || records[0].Severity != SeverityHigh {
		t.Fatalf("unexpected record: %+v", records[0])
	}
	if ids := records[0].AffectedVariableIDs(); len(ids) != 2 {
		t.Fatalf("expected both variables referenced, got %v", ids)
	}
}

func TestTemporalImplausibilitySuppressedByIntervention(t *testing.T) {
	snap := &timeline.Snapshot{
		Patient: timeline.Patient{ID: "p1"},
		Events: []timeline.Event{
			{ID: "surg", PatientID: "p1", EventDate: day(2018, 5, 21), EventType: timeline.EventTypeProcedure, Active: true},
		},
		Variables: []timeline.ExtractedVariable{
			statusVariable("v1", "Increased", day(2018, 5, 20), 0.9),
			statusVariable("v2", "Decreased", day(2018, 5, 22), 0.9),
		},
	}

	for _, record := range New(DefaultRules(), "").Run(snap) {
		if record.Kind == KindTemporalImplausibility {
			t.Fatalf("intervention in window must suppress the flag: %s", record.Description)
		}
	}
}

func TestTemporalImplausibilityRespectsMinimumDays(t *testing.T) {
	snap := &timeline.Snapshot{
		Patient: timeline.Patient{ID: "p1"},
		Variables: []timeline.ExtractedVariable{
			statusVariable("v1", "Increased", day(2018, 5, 1), 0.9),
			statusVariable("v2", "Decreased", day(2018, 5, 10), 0.9),
		},
	}

	for _, record := range New(DefaultRules(), "").Run(snap) {
		if record.Kind == KindTemporalImplausibility {
			t.Fatalf("9-day reversal is at or above the 7-day floor: %s", record.Description)
		}
	}
}

func TestWrongVariableTypeDetection(t *testing.T) {
	snap := &timeline.Snapshot{
		Patient: timeline.Patient{ID: "p1"},
		Variables: []timeline.ExtractedVariable{
			statusVariable("v1", "Gross Total Resection", day(2018, 5, 20), 0.9),
			statusVariable("v2", "Stable", day(2018, 5, 25), 0.9),
		},
	}

	records := New(DefaultRules(), "").Run(snap)
	if len(records) != 1 || records[0].Kind != KindWrongVariableType {
		t.Fatalf("unexpected records: %+v", records)
	}
}

func TestLowConfidenceActionableOnlyWithCooccurrence(t *testing.T) {
	lone := &timeline.Snapshot{
		Patient: timeline.Patient{ID: "p1"},
		Variables: []timeline.ExtractedVariable{
			statusVariable("v1", "Stable", day(2018, 5, 20), 0.5),
		},
	}
	records := New(DefaultRules(), "").Run(lone)
	if len(records) != 1 || records[0].Kind != KindLowConfidence {
		t.Fatalf("unexpected records: %+v", records)
	}
	if actionable := Actionable(records); len(actionable) != 0 {
		t.Fatalf("lone low-confidence record must not be actionable: %+v", actionable)
	}

	cooccur := &timeline.Snapshot{
		Patient: timeline.Patient{ID: "p1"},
		Variables: []timeline.ExtractedVariable{
			statusVariable("v1", "Increased", day(2018, 5, 20), 0.9),
			statusVariable("v2", "Decreased", day(2018, 5, 22), 0.5),
		},
	}
	records = New(DefaultRules(), "").Run(cooccur)
	actionable := Actionable(records)
	if len(actionable) != 2 {
		t.Fatalf("low-confidence sharing a variable with a high flag must be actionable, got %+v", actionable)
	}
}

func TestDetectorIdempotentFingerprints(t *testing.T) {
	snap := &timeline.Snapshot{
		Patient: timeline.Patient{ID: "p1"},
		Events: []timeline.Event{
			imagingEvent("e1", day(2018, 5, 27)),
			imagingEvent("e2", day(2018, 5, 27)),
		},
		Variables: []timeline.ExtractedVariable{
			statusVariable("v1", "Increased", day(2018, 5, 20), 0.9),
			statusVariable("v2", "Decreased", day(2018, 5, 22), 0.9),
		},
	}

	detector := New(DefaultRules(), "")
	first := detector.Run(snap)
	second := detector.Run(snap)
	if len(first) != len(second) {
		t.Fatalf("run sizes differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Fingerprint != second[i].Fingerprint {
			t.Fatalf("fingerprint %d differs across runs", i)
		}
		if first[i].ID == second[i].ID {
			t.Fatal("row ids must be fresh per run; identity lives in the fingerprint")
		}
	}
}

func TestRunSubsetRestrictsDuplicateTypes(t *testing.T) {
	snap := &timeline.Snapshot{
		Patient: timeline.Patient{ID: "p1"},
		Events: []timeline.Event{
			imagingEvent("e1", day(2018, 5, 27)),
			imagingEvent("e2", day(2018, 5, 27)),
			{ID: "a1", PatientID: "p1", EventDate: day(2018, 5, 27), EventType: timeline.EventTypeAssessment, Active: true},
			{ID: "a2", PatientID: "p1", EventDate: day(2018, 5, 27), EventType: timeline.EventTypeAssessment, Active: true},
		},
	}

	records := New(DefaultRules(), "").RunSubset(snap, []string{timeline.EventTypeImaging})
	duplicates := 0
	for _, record := range records {
		if record.Kind == KindDuplicate {
			duplicates++
			if ids := record.AffectedEventIDs(); len(ids) != 2 || ids[0] != "e1" {
				t.Fatalf("expected only the imaging pair, got %v", ids)
			}
		}
	}
	if duplicates != 1 {
		t.Fatalf("got %d duplicate records, want 1", duplicates)
	}
}
