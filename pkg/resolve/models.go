package resolve

import (
	"time"

	"gorm.io/datatypes"
)

const (
	OutcomeResolved   = "resolved"
	OutcomeEscalated  = "escalated"
	OutcomeOverridden = "overridden"

	// OutcomeFailed records a timed-out or malformed oracle interaction for
	// the audit trail. It is internal detail, never surfaced as a pipeline
	// failure, and never terminal.
	OutcomeFailed = "failed"
)

// ResolutionAttempt is one cycle of evidence-gathering, oracle consultation,
// and adjudication against one inconsistency. The log is append-only: retries
// and manual overrides add rows, nothing is rewritten.
type ResolutionAttempt struct {
	ID              string         `json:"id" gorm:"primaryKey;column:id"`
	InconsistencyID string         `json:"inconsistency_id" gorm:"column:inconsistency_id;index"`
	PatientID       string         `json:"patient_id" gorm:"column:patient_id;index"`
	AttemptNumber   int            `json:"attempt_number" gorm:"column:attempt_number"`
	Method          string         `json:"method" gorm:"column:method"`
	WindowDays      int            `json:"window_days" gorm:"column:window_days"`
	EvidenceSources datatypes.JSON `json:"evidence_sources,omitempty" gorm:"column:evidence_sources"`
	RequestPayload  datatypes.JSON `json:"request_payload,omitempty" gorm:"column:request_payload"`
	ResponsePayload datatypes.JSON `json:"response_payload,omitempty" gorm:"column:response_payload"`
	Outcome         string         `json:"outcome" gorm:"column:outcome"`
	Rationale       string         `json:"rationale" gorm:"column:rationale"`
	CreatedAt       time.Time      `json:"created_at" gorm:"column:created_at"`
}

func (ResolutionAttempt) TableName() string { return "resolution_attempts" }

// TerminalOutcome reports whether this attempt closed the inconsistency.
func (a *ResolutionAttempt) TerminalOutcome() bool {
	return a.Outcome == OutcomeResolved || a.Outcome == OutcomeEscalated || a.Outcome == OutcomeOverridden
}
