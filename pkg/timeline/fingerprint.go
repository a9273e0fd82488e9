package timeline

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"

	"gorm.io/datatypes"
)

// CodesJSON stores a coded-identifier set in canonical sorted order so that
// order-insensitive payloads fingerprint identically.
func CodesJSON(codes []string) datatypes.JSON {
	if len(codes) == 0 {
		return nil
	}
	sorted := make([]string, len(codes))
	copy(sorted, codes)
	sort.Strings(sorted)
	raw, err := json.Marshal(sorted)
	if err != nil {
		return nil
	}
	return datatypes.JSON(raw)
}

// CodesFromJSON decodes a stored coded-identifier set.
func CodesFromJSON(raw datatypes.JSON) []string {
	if len(raw) == 0 {
		return nil
	}
	var codes []string
	if err := json.Unmarshal(raw, &codes); err != nil {
		return nil
	}
	return codes
}

// EventFingerprint hashes the content-bearing fields of an event. Upserts use
// it to distinguish an idempotent replay from a genuine id collision.
func EventFingerprint(e *Event) string {
	parts := []string{
		e.PatientID,
		e.EventDate.UTC().Format("2006-01-02T15:04:05Z"),
		e.DatePrecision,
		e.EventType,
		e.Category,
		e.Subtype,
		e.Description,
		e.SourceID,
		e.Collaborator,
		e.ClinicalStatus,
		string(e.DiagnosisCodes),
		string(e.ProcedureCodes),
		string(e.LabCodes),
		string(e.Details),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}
