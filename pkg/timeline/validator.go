package timeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/chronica-ai/platform/pkg/common/models"
)

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func IsValidationError(err error) bool {
	var ve *ValidationError
	var ne *DateNormalizationError
	return errors.As(err, &ve) || errors.As(err, &ne)
}

var allowedEventTypes = map[string]bool{
	EventTypeDiagnosis:  true,
	EventTypeProcedure:  true,
	EventTypeImaging:    true,
	EventTypeMedication: true,
	EventTypeAssessment: true,
	EventTypeEncounter:  true,
}

type Validator struct{}

func NewValidator() *Validator { return &Validator{} }

func (v *Validator) ValidateEvent(req models.IngestEventRequest) error {
	if strings.TrimSpace(req.PatientID) == "" {
		return &ValidationError{Field: "patient_id", Reason: "required"}
	}
	if !allowedEventTypes[req.EventType] {
		return &ValidationError{Field: "event_type", Reason: fmt.Sprintf("unknown type %q", req.EventType)}
	}
	if strings.TrimSpace(req.EventDate) == "" {
		return &ValidationError{Field: "event_date", Reason: "required"}
	}
	if strings.TrimSpace(req.Collaborator) == "" {
		return &ValidationError{Field: "collaborator", Reason: "required"}
	}
	return nil
}

func (v *Validator) ValidateVariable(req models.IngestVariableRequest) error {
	if strings.TrimSpace(req.PatientID) == "" {
		return &ValidationError{Field: "patient_id", Reason: "required"}
	}
	if strings.TrimSpace(req.Variable) == "" {
		return &ValidationError{Field: "variable", Reason: "required"}
	}
	if strings.TrimSpace(req.EffectiveDate) == "" {
		return &ValidationError{Field: "effective_date", Reason: "required"}
	}
	if req.Confidence < 0 || req.Confidence > 1 {
		return &ValidationError{Field: "confidence", Reason: "must be in [0,1]"}
	}
	return nil
}
