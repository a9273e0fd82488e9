package timeline

import "testing"

func TestPayloadForTypeRoutesKnownKeys(t *testing.T) {
	payload, err := PayloadForType(EventTypeImaging, map[string]interface{}{
		"modality":  "MRI",
		"body_site": "brain",
		"contrast":  true,
		"protocol":  "tumor-followup",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payload.Imaging == nil || payload.Imaging.Modality != "MRI" || !payload.Imaging.Contrast {
		t.Fatalf("imaging variant not populated: %+v", payload.Imaging)
	}
	if payload.Medication != nil || payload.Procedure != nil || payload.Assessment != nil {
		t.Fatal("only the matching variant may be populated")
	}
	if payload.Extra["protocol"] != "tumor-followup" {
		t.Fatalf("unknown key not preserved in extra: %v", payload.Extra)
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	payload, err := PayloadForType(EventTypeProcedure, map[string]interface{}{
		"name":   "craniotomy",
		"extent": "Gross Total Resection",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	raw, err := payload.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON: %v", err)
	}
	decoded, err := PayloadFromJSON(raw)
	if err != nil {
		t.Fatalf("PayloadFromJSON: %v", err)
	}
	if decoded.Procedure == nil || decoded.Procedure.Extent != "Gross Total Resection" {
		t.Fatalf("round trip lost data: %+v", decoded.Procedure)
	}
}

func TestPayloadForUnknownTypeKeepsEverythingExtra(t *testing.T) {
	payload, err := PayloadForType(EventTypeEncounter, map[string]interface{}{
		"location": "clinic",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payload.Extra["location"] != "clinic" {
		t.Fatalf("expected extra to carry unknown type detail: %v", payload.Extra)
	}
}
