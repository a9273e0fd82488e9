package timeline

import (
	"time"

	"gorm.io/datatypes"
)

const (
	EventTypeDiagnosis  = "Diagnosis"
	EventTypeProcedure  = "Procedure"
	EventTypeImaging    = "Imaging"
	EventTypeMedication = "Medication"
	EventTypeAssessment = "Assessment"
	EventTypeEncounter  = "Encounter"
)

const (
	MilestoneInitialDiagnosis = "initial_diagnosis"
	MilestoneSurgery          = "surgery"
	MilestoneProgression      = "progression"
	MilestoneTreatmentStart   = "treatment_start"
	MilestoneTreatmentEnd     = "treatment_end"
	MilestoneDeath            = "death"
)

const (
	ValidationPending     = "pending"
	ValidationConfirmed   = "confirmed"
	ValidationConflict    = "conflict"
	ValidationNeedsReview = "needs-review"
)

// Patient carries identity plus the four authoritative milestone anchors. The
// anchors are maintained by the ingestion path as qualifying events arrive;
// historical milestones of the same type accumulate in the milestones table.
type Patient struct {
	ID                 string     `json:"id" gorm:"primaryKey;column:id"`
	BirthDate          *time.Time `json:"birth_date,omitempty" gorm:"column:birth_date"`
	FirstDiagnosisDate *time.Time `json:"first_diagnosis_date,omitempty" gorm:"column:first_diagnosis_date"`
	FirstSurgeryDate   *time.Time `json:"first_surgery_date,omitempty" gorm:"column:first_surgery_date"`
	FirstTreatmentDate *time.Time `json:"first_treatment_date,omitempty" gorm:"column:first_treatment_date"`
	LastFollowUpDate   *time.Time `json:"last_follow_up_date,omitempty" gorm:"column:last_follow_up_date"`
	CreatedAt          time.Time  `json:"created_at" gorm:"column:created_at"`
	UpdatedAt          time.Time  `json:"updated_at" gorm:"column:updated_at"`
}

func (Patient) TableName() string { return "patients" }

// Event is the atomic timeline unit. Rows are immutable after ingestion apart
// from the active/superseded flags written by adjudication; nothing is ever
// physically deleted.
type Event struct {
	ID             string         `json:"id" gorm:"primaryKey;column:id"`
	PatientID      string         `json:"patient_id" gorm:"column:patient_id;index:idx_events_patient_date,priority:1"`
	EventDate      time.Time      `json:"event_date" gorm:"column:event_date;index:idx_events_patient_date,priority:2"`
	DatePrecision  string         `json:"date_precision" gorm:"column:date_precision"`
	EventType      string         `json:"event_type" gorm:"column:event_type"`
	Category       string         `json:"category,omitempty" gorm:"column:category"`
	Subtype        string         `json:"subtype,omitempty" gorm:"column:subtype"`
	Description    string         `json:"description" gorm:"column:description"`
	SourceID       string         `json:"source_id,omitempty" gorm:"column:source_id"`
	Collaborator   string         `json:"collaborator" gorm:"column:collaborator"`
	DiagnosisCodes datatypes.JSON `json:"diagnosis_codes,omitempty" gorm:"column:diagnosis_codes"`
	ProcedureCodes datatypes.JSON `json:"procedure_codes,omitempty" gorm:"column:procedure_codes"`
	LabCodes       datatypes.JSON `json:"lab_codes,omitempty" gorm:"column:lab_codes"`
	ClinicalStatus string         `json:"clinical_status,omitempty" gorm:"column:clinical_status"`
	Details        datatypes.JSON `json:"details,omitempty" gorm:"column:details"`
	Active         bool           `json:"active" gorm:"column:active;default:true"`
	SupersededBy   string         `json:"superseded_by,omitempty" gorm:"column:superseded_by"`
	Fingerprint    string         `json:"-" gorm:"column:fingerprint"`
	Seq            int64          `json:"-" gorm:"column:seq;autoIncrement;uniqueIndex"`
	IngestedAt     time.Time      `json:"ingested_at" gorm:"column:ingested_at"`
}

func (Event) TableName() string { return "timeline_events" }

// Milestone is a dated clinical landmark with a weak reference to the event
// that evidenced it. The referenced event must be looked up, never assumed.
type Milestone struct {
	ID        string         `json:"id" gorm:"primaryKey;column:id"`
	PatientID string         `json:"patient_id" gorm:"column:patient_id;index"`
	Type      string         `json:"type" gorm:"column:type"`
	Date      time.Time      `json:"date" gorm:"column:date"`
	EventID   string         `json:"event_id,omitempty" gorm:"column:event_id"`
	Detail    datatypes.JSON `json:"detail,omitempty" gorm:"column:detail"`
	CreatedAt time.Time      `json:"created_at" gorm:"column:created_at"`
}

func (Milestone) TableName() string { return "milestones" }

// ExtractedVariable is one extraction of one clinical variable from one
// source document. Several rows may exist for the same (patient, variable,
// near-duplicate date); deciding which is authoritative belongs to the
// detector and orchestrator, not the schema.
type ExtractedVariable struct {
	ID              string         `json:"id" gorm:"primaryKey;column:id"`
	PatientID       string         `json:"patient_id" gorm:"column:patient_id;index"`
	Variable        string         `json:"variable" gorm:"column:variable"`
	Value           string         `json:"value" gorm:"column:value"`
	Confidence      float64        `json:"confidence" gorm:"column:confidence"`
	EventID         string         `json:"event_id,omitempty" gorm:"column:event_id"`
	EffectiveDate   time.Time      `json:"effective_date" gorm:"column:effective_date"`
	DatePrecision   string         `json:"date_precision" gorm:"column:date_precision"`
	Method          string         `json:"method" gorm:"column:method"`
	Context         datatypes.JSON `json:"context,omitempty" gorm:"column:context"`
	ValidationState string         `json:"validation_state" gorm:"column:validation_state"`
	ExtractedAt     time.Time      `json:"extracted_at" gorm:"column:extracted_at"`
	UpdatedAt       time.Time      `json:"updated_at" gorm:"column:updated_at"`
}

func (ExtractedVariable) TableName() string { return "extracted_variables" }

// Snapshot is one patient's full committed timeline read in one consistent
// pass. Every derived computation (context, detection) works from a Snapshot
// so results are recomputable from store contents alone.
type Snapshot struct {
	Patient    Patient
	Events     []Event
	Milestones []Milestone
	Variables  []ExtractedVariable
}

// ActiveEvents filters superseded events out.
func (s *Snapshot) ActiveEvents() []Event {
	out := make([]Event, 0, len(s.Events))
	for _, e := range s.Events {
		if e.Active {
			out = append(out, e)
		}
	}
	return out
}

// EventByID resolves a weak event reference; ok is false when the id is
// unknown.
func (s *Snapshot) EventByID(id string) (Event, bool) {
	for _, e := range s.Events {
		if e.ID == id {
			return e, true
		}
	}
	return Event{}, false
}

// VariableByID resolves a weak extracted-variable reference.
func (s *Snapshot) VariableByID(id string) (ExtractedVariable, bool) {
	for _, v := range s.Variables {
		if v.ID == id {
			return v, true
		}
	}
	return ExtractedVariable{}, false
}
