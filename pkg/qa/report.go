package qa

import (
	"sort"
	"time"

	"github.com/chronica-ai/platform/pkg/detect"
	"github.com/chronica-ai/platform/pkg/resolve"
	"github.com/chronica-ai/platform/pkg/timeline"
)

// Report is the per-patient quality summary consumed by downstream review
// queues. It is derived data: regenerating from the same timeline,
// inconsistency, and attempt rows yields the same report.
type Report struct {
	PatientID            string         `json:"patient_id"`
	TotalEvents          int            `json:"total_events"`
	ActiveEvents         int            `json:"active_events"`
	TotalVariables       int            `json:"total_variables"`
	TotalInconsistencies int            `json:"total_inconsistencies"`
	ByKind               map[string]int `json:"by_kind"`
	BySeverity           map[string]int `json:"by_severity"`
	Resolved             int            `json:"resolved"`
	Escalated            int            `json:"escalated"`
	Overridden           int            `json:"overridden"`
	Open                 int            `json:"open"`
	UnresolvedHigh       []HighFinding  `json:"unresolved_high,omitempty"`
	RequiresHumanReview  bool           `json:"requires_human_review"`
	GeneratedAt          time.Time      `json:"generated_at"`
}

// HighFinding is one high-severity inconsistency still awaiting a human.
type HighFinding struct {
	InconsistencyID string `json:"inconsistency_id"`
	Kind            string `json:"kind"`
	Description     string `json:"description"`
	Status          string `json:"status"`
}

// Generate builds the report. An inconsistency's status is the outcome of its
// latest terminal attempt; records with no terminal attempt are open.
// RequiresHumanReview is set whenever any inconsistency is not closed as
// resolved or overridden.
func Generate(snap *timeline.Snapshot, records []detect.InconsistencyRecord, attempts []resolve.ResolutionAttempt) *Report {
	report := &Report{
		PatientID:            snap.Patient.ID,
		TotalEvents:          len(snap.Events),
		ActiveEvents:         len(snap.ActiveEvents()),
		TotalVariables:       len(snap.Variables),
		TotalInconsistencies: len(records),
		ByKind:               make(map[string]int),
		BySeverity:           make(map[string]int),
		GeneratedAt:          time.Now().UTC(),
	}

	statuses := statusByInconsistency(attempts)

	for _, record := range records {
		report.ByKind[record.Kind]++
		report.BySeverity[record.Severity]++

		status, ok := statuses[record.ID]
		if !ok {
			status = "open"
		}
		switch status {
		case resolve.OutcomeResolved:
			report.Resolved++
		case resolve.OutcomeEscalated:
			report.Escalated++
			report.RequiresHumanReview = true
		case resolve.OutcomeOverridden:
			report.Overridden++
		default:
			report.Open++
			report.RequiresHumanReview = true
		}

		if record.Severity == detect.SeverityHigh && status != resolve.OutcomeResolved && status != resolve.OutcomeOverridden {
			report.UnresolvedHigh = append(report.UnresolvedHigh, HighFinding{
				InconsistencyID: record.ID,
				Kind:            record.Kind,
				Description:     record.Description,
				Status:          status,
			})
		}
	}

	sort.Slice(report.UnresolvedHigh, func(i, j int) bool {
		return report.UnresolvedHigh[i].InconsistencyID < report.UnresolvedHigh[j].InconsistencyID
	})
	return report
}

// statusByInconsistency reduces the append-only attempt log to one status per
// inconsistency. A later override supersedes an earlier terminal outcome.
func statusByInconsistency(attempts []resolve.ResolutionAttempt) map[string]string {
	statuses := make(map[string]string)
	for _, attempt := range attempts {
		if !attempt.TerminalOutcome() {
			continue
		}
		statuses[attempt.InconsistencyID] = attempt.Outcome
	}
	return statuses
}
