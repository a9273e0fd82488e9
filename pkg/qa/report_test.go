package qa

import (
	"testing"
	"time"

	"github.com/chronica-ai/platform/pkg/detect"
	"github.com/chronica-ai/platform/pkg/resolve"
	"github.com/chronica-ai/platform/pkg/timeline"
)

func record(id, kind, severity string) detect.InconsistencyRecord {
	return detect.InconsistencyRecord{
		ID:          id,
		PatientID:   "p1",
		Kind:        kind,
		Severity:    severity,
		Description: kind + " finding",
		DetectedAt:  time.Now().UTC(),
	}
}

func attempt(inconsistencyID, outcome string) resolve.ResolutionAttempt {
	return resolve.ResolutionAttempt{
		InconsistencyID: inconsistencyID,
		PatientID:       "p1",
		Outcome:         outcome,
	}
}

func testSnapshot() *timeline.Snapshot {
	return &timeline.Snapshot{
		Patient: timeline.Patient{ID: "p1"},
		Events: []timeline.Event{
			{ID: "e1", Active: true},
			{ID: "e2", Active: false},
		},
		Variables: []timeline.ExtractedVariable{{ID: "v1"}},
	}
}

func TestGenerateCounts(t *testing.T) {
	records := []detect.InconsistencyRecord{
		record("i1", detect.KindDuplicate, detect.SeverityMedium),
		record("i2", detect.KindTemporalImplausibility, detect.SeverityHigh),
		record("i3", detect.KindLowConfidence, detect.SeverityLow),
	}
	attempts := []resolve.ResolutionAttempt{
		attempt("i1", resolve.OutcomeFailed),
		attempt("i1", resolve.OutcomeResolved),
		attempt("i2", resolve.OutcomeEscalated),
	}

	report := Generate(testSnapshot(), records, attempts)

	if report.TotalEvents != 2 || report.ActiveEvents != 1 || report.TotalVariables != 1 {
		t.Fatalf("unexpected totals: %+v", report)
	}
	if report.TotalInconsistencies != 3 {
		t.Fatalf("total inconsistencies = %d, want 3", report.TotalInconsistencies)
	}
	if report.Resolved != 1 || report.Escalated != 1 || report.Open != 1 {
		t.Fatalf("status counts wrong: %+v", report)
	}
	if report.ByKind[detect.KindDuplicate] != 1 || report.BySeverity[detect.SeverityHigh] != 1 {
		t.Fatalf("breakdowns wrong: %+v", report)
	}
	if !report.RequiresHumanReview {
		t.Fatal("escalated and open findings must flag human review")
	}
	if len(report.UnresolvedHigh) != 1 || report.UnresolvedHigh[0].InconsistencyID != "i2" {
		t.Fatalf("unresolved high list wrong: %+v", report.UnresolvedHigh)
	}
}

func TestGenerateAllClosedClearsReviewFlag(t *testing.T) {
	records := []detect.InconsistencyRecord{
		record("i1", detect.KindDuplicate, detect.SeverityMedium),
		record("i2", detect.KindTemporalImplausibility, detect.SeverityHigh),
	}
	attempts := []resolve.ResolutionAttempt{
		attempt("i1", resolve.OutcomeResolved),
		attempt("i2", resolve.OutcomeOverridden),
	}

	report := Generate(testSnapshot(), records, attempts)
	if report.RequiresHumanReview {
		t.Fatal("fully closed findings must not flag human review")
	}
	if len(report.UnresolvedHigh) != 0 {
		t.Fatalf("unexpected unresolved high findings: %+v", report.UnresolvedHigh)
	}
	if report.Overridden != 1 || report.Resolved != 1 {
		t.Fatalf("status counts wrong: %+v", report)
	}
}

func TestGenerateOverrideSupersedesEarlierOutcome(t *testing.T) {
	records := []detect.InconsistencyRecord{
		record("i1", detect.KindTemporalImplausibility, detect.SeverityHigh),
	}
	attempts := []resolve.ResolutionAttempt{
		attempt("i1", resolve.OutcomeEscalated),
		attempt("i1", resolve.OutcomeOverridden),
	}

	report := Generate(testSnapshot(), records, attempts)
	if report.Escalated != 0 || report.Overridden != 1 {
		t.Fatalf("later override must win: %+v", report)
	}
	if report.RequiresHumanReview {
		t.Fatal("overridden finding is closed")
	}
}

func TestGenerateEmptyTimeline(t *testing.T) {
	report := Generate(&timeline.Snapshot{Patient: timeline.Patient{ID: "p1"}}, nil, nil)
	if report.RequiresHumanReview {
		t.Fatal("clean timeline must not flag review")
	}
	if report.TotalInconsistencies != 0 || report.Open != 0 {
		t.Fatalf("unexpected counts: %+v", report)
	}
}
