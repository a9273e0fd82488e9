package detect

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"gorm.io/datatypes"
)

const (
	KindDuplicate              = "duplicate"
	KindTemporalImplausibility = "temporal-implausibility"
	KindWrongVariableType      = "wrong-variable-type"
	KindLowConfidence          = "low-confidence"
)

const (
	SeverityHigh   = "high"
	SeverityMedium = "medium"
	SeverityLow    = "low"
)

// InconsistencyRecord is one detected problem. Rows are never mutated;
// resolution attempts reference them by id. Fingerprint is the content
// / identity: re-running the detector on unchanged data reproduces the same
// fingerprints, so persistence stays idempotent across runs.
type InconsistencyRecord struct {
	ID          string         `json:"id" gorm:"primaryKey;column:id"`
	PatientID   string         `json:"patient_id" gorm:"column:patient_id;index"`
	Kind        string         `json:"kind" gorm:"column:kind"`
	Severity    string         `json:"severity" gorm:"column:severity"`
	Description string         `json:"description" gorm:"column:description"`
	EventIDs    datatypes.JSON `json:"event_ids,omitempty" gorm:"column:event_ids"`
	VariableIDs datatypes.JSON `json:"variable_ids,omitempty" gorm:"column:variable_ids"`
	DetectorID  string         `json:"detector_id" gorm:"column:detector_id"`
	Fingerprint string         `json:"fingerprint" gorm:"column:fingerprint;uniqueIndex"`
	DetectedAt  time.Time      `json:"detected_at" gorm:"column:detected_at"`
}

func (InconsistencyRecord) TableName() string { return "inconsistency_records" }

// AffectedEventIDs decodes the weak event references.
func (r *InconsistencyRecord) AffectedEventIDs() []string {
	return decodeIDs(r.EventIDs)
}

// AffectedVariableIDs decodes the weak extracted-variable references.
func (r *InconsistencyRecord) AffectedVariableIDs() []string {
	return decodeIDs(r.VariableIDs)
}

func decodeIDs(raw datatypes.JSON) []string {
	if len(raw) == 0 {
		return nil
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil
	}
	return ids
}

func encodeIDs(ids []string) datatypes.JSON {
	if len(ids) == 0 {
		return nil
	}
	sorted := make([]string, len(ids))
	copy(sorted, ids)
	sort.Strings(sorted)
	raw, err := json.Marshal(sorted)
	if err != nil {
		return nil
	}
	return datatypes.JSON(raw)
}

func fingerprint(patientID, kind string, eventIDs, variableIDs []string, extra string) string {
	sortedEvents := make([]string, len(eventIDs))
	copy(sortedEvents, eventIDs)
	sort.Strings(sortedEvents)
	sortedVars := make([]string, len(variableIDs))
	copy(sortedVars, variableIDs)
	sort.Strings(sortedVars)

	parts := []string{
		patientID,
		kind,
		strings.Join(sortedEvents, ","),
		strings.Join(sortedVars, ","),
		extra,
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}
