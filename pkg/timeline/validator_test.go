package timeline

import (
	"testing"

	"github.com/chronica-ai/platform/pkg/common/models"
)

func TestValidateEvent(t *testing.T) {
	valid := models.IngestEventRequest{
		PatientID:    "p1",
		EventType:    EventTypeImaging,
		EventDate:    "2018-05-27",
		Collaborator: "hospital-a",
	}
	if err := NewValidator().ValidateEvent(valid); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*models.IngestEventRequest)
	}{
		{"missing patient", func(r *models.IngestEventRequest) { r.PatientID = " " }},
		{"unknown type", func(r *models.IngestEventRequest) { r.EventType = "Surgeries" }},
		{"missing date", func(r *models.IngestEventRequest) { r.EventDate = "" }},
		{"missing collaborator", func(r *models.IngestEventRequest) { r.Collaborator = "" }},
	}
	for _, tc := range cases {
		req := valid
		tc.mutate(&req)
		err := NewValidator().ValidateEvent(req)
		if err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
		if !IsValidationError(err) {
			t.Fatalf("%s: expected validation error, got %T", tc.name, err)
		}
	}
}

func TestValidateVariable(t *testing.T) {
	valid := models.IngestVariableRequest{
		PatientID:     "p1",
		Variable:      "tumor_status",
		Value:         "Stable",
		Confidence:    0.9,
		EffectiveDate: "2018-05-27",
	}
	if err := NewValidator().ValidateVariable(valid); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	bad := valid
	bad.Confidence = 1.3
	if err := NewValidator().ValidateVariable(bad); err == nil {
		t.Fatal("expected error for out-of-range confidence")
	}
}

func TestIsValidationErrorCoversDateErrors(t *testing.T) {
	_, err := ParseClinicalDate("garbage", "")
	if !IsValidationError(err) {
		t.Fatal("date normalization failures are client errors")
	}
}
