package models

import (
	"time"
)

// Event bus envelope shared by all Kafka topics.
type BusEvent struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"` // clinical-event, event-ingested, report-updated
	Source    string                 `json:"source"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]string      `json:"metadata,omitempty"`
}

// IngestEventRequest is the payload extraction collaborators submit, over HTTP
// or the clinical-events topic, to add one event to a patient timeline.
type IngestEventRequest struct {
	EventID        string                 `json:"event_id,omitempty"`
	PatientID      string                 `json:"patient_id"`
	EventDate      string                 `json:"event_date"` // ISO date or datetime
	DatePrecision  string                 `json:"date_precision,omitempty"`
	EventType      string                 `json:"event_type"`
	Category       string                 `json:"category,omitempty"`
	Subtype        string                 `json:"subtype,omitempty"`
	Description    string                 `json:"description"`
	SourceID       string                 `json:"source_id,omitempty"`
	Collaborator   string                 `json:"collaborator"`
	DiagnosisCodes []string               `json:"diagnosis_codes,omitempty"`
	ProcedureCodes []string               `json:"procedure_codes,omitempty"`
	LabCodes       []string               `json:"lab_codes,omitempty"`
	ClinicalStatus string                 `json:"clinical_status,omitempty"`
	Details        map[string]interface{} `json:"details,omitempty"`
}

// IngestVariableRequest records one extraction of one clinical variable from
// one source document.
type IngestVariableRequest struct {
	VariableID    string  `json:"variable_id,omitempty"`
	PatientID     string  `json:"patient_id"`
	Variable      string  `json:"variable"`
	Value         string  `json:"value"`
	Confidence    float64 `json:"confidence"`
	EventID       string  `json:"event_id,omitempty"`
	EffectiveDate string  `json:"effective_date"`
	DatePrecision string  `json:"date_precision,omitempty"`
	Method        string  `json:"method"`
}

type IngestEventResponse struct {
	EventID   string    `json:"event_id"`
	PatientID string    `json:"patient_id"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// DocumentRef is one candidate source document returned by the binary-file or
// note index collaborators. Date may be nil when the index has no reliable
// date for the document.
type DocumentRef struct {
	ID             string     `json:"id"`
	Date           *time.Time `json:"date,omitempty"`
	ContentType    string     `json:"content_type"` // text, html, rtf, pdf
	Classification string     `json:"classification,omitempty"`
	RenderableText string     `json:"renderable_text,omitempty"`
}

// TemporalContext is the derived clinical context for one anchor date. All
// days-since fields are nil when the corresponding milestone is absent and
// negative when the anchor precedes it.
type TemporalContext struct {
	PatientID          string          `json:"patient_id"`
	AnchorDate         time.Time       `json:"anchor_date"`
	AgeDays            *int            `json:"age_days,omitempty"`
	DaysSinceDiagnosis *int            `json:"days_since_diagnosis,omitempty"`
	DaysSinceSurgery   *int            `json:"days_since_surgery,omitempty"`
	DaysSinceTreatment *int            `json:"days_since_treatment,omitempty"`
	DiseasePhase       string          `json:"disease_phase"`
	TreatmentStatus    string          `json:"treatment_status"`
	Neighbors          []NeighborEvent `json:"neighbors,omitempty"`
}

// NeighborEvent is one timeline event inside the context window, annotated
// with its signed day offset from the anchor.
type NeighborEvent struct {
	EventID     string    `json:"event_id"`
	EventType   string    `json:"event_type"`
	Category    string    `json:"category,omitempty"`
	Description string    `json:"description"`
	EventDate   time.Time `json:"event_date"`
	OffsetDays  int       `json:"offset_days"`
}

// OracleRequest is the wire contract for one clarification query against the
// extraction oracle.
type OracleRequest struct {
	Model            string            `json:"model"`
	InconsistencyID  string            `json:"inconsistency_id"`
	Kind             string            `json:"kind"`
	Description      string            `json:"description"`
	EventSummaries   []string          `json:"event_summaries"`
	EvidenceExcerpts []string          `json:"evidence_excerpts,omitempty"`
	Questions        []string          `json:"questions"`
	ResponseFields   []string          `json:"response_fields"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

// OracleResponse must carry every field below; a response missing any of them
// is malformed and counts as a failed attempt.
type OracleResponse struct {
	Plausibility      string            `json:"clinical_plausibility"` // plausible, implausible, uncertain
	DuplicateScan     string            `json:"duplicate_assessment"`  // yes, no, possible
	EventJudgments    map[string]string `json:"event_judgments"`       // event id -> correct/incorrect/uncertain
	RecommendedAction string            `json:"recommended_action"`    // keep_both, mark_duplicate, revise_event, escalate
	RevisedValue      string            `json:"revised_value,omitempty"`
	ReviseEventID     string            `json:"revise_event_id,omitempty"`
	Confidence        float64           `json:"confidence"`
	Rationale         string            `json:"rationale"`
}
