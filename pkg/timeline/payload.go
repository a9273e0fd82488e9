package timeline

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// EventPayload is the tagged-variant detail bag carried by every event. At
// most one typed variant is populated, matching the event type; fields the
// schema does not know about land in Extra so collaborators can ship forward-
// compatible detail without consumers duck-typing a free-form map.
type EventPayload struct {
	Imaging    *ImagingDetails        `json:"imaging,omitempty"`
	Medication *MedicationDetails     `json:"medication,omitempty"`
	Procedure  *ProcedureDetails      `json:"procedure,omitempty"`
	Assessment *AssessmentDetails     `json:"assessment,omitempty"`
	Extra      map[string]interface{} `json:"extra,omitempty"`
}

type ImagingDetails struct {
	Modality string `json:"modality,omitempty"`
	BodySite string `json:"body_site,omitempty"`
	Contrast bool   `json:"contrast,omitempty"`
	Findings string `json:"findings,omitempty"`
}

type MedicationDetails struct {
	Drug      string     `json:"drug,omitempty"`
	Category  string     `json:"category,omitempty"` // chemotherapy, radiation, targeted
	Dose      string     `json:"dose,omitempty"`
	Route     string     `json:"route,omitempty"`
	StartDate *time.Time `json:"start_date,omitempty"`
	EndDate   *time.Time `json:"end_date,omitempty"`
}

type ProcedureDetails struct {
	Name     string `json:"name,omitempty"`
	Approach string `json:"approach,omitempty"`
	Extent   string `json:"extent,omitempty"`
	Outcome  string `json:"outcome,omitempty"`
}

type AssessmentDetails struct {
	Variable string `json:"variable,omitempty"`
	Value    string `json:"value,omitempty"`
	Scale    string `json:"scale,omitempty"`
}

var knownPayloadKeys = map[string]map[string]bool{
	EventTypeImaging: {
		"modality": true, "body_site": true, "contrast": true, "findings": true,
	},
	EventTypeMedication: {
		"drug": true, "category": true, "dose": true, "route": true,
		"start_date": true, "end_date": true,
	},
	EventTypeProcedure: {
		"name": true, "approach": true, "extent": true, "outcome": true,
	},
	EventTypeAssessment: {
		"variable": true, "value": true, "scale": true,
	},
}

// PayloadForType routes a collaborator's loose detail map into the typed
// variant for the event type. Unrecognized keys are preserved in Extra.
func PayloadForType(eventType string, details map[string]interface{}) (EventPayload, error) {
	payload := EventPayload{}
	if len(details) == 0 {
		return payload, nil
	}

	known := knownPayloadKeys[eventType]
	typed := make(map[string]interface{})
	for key, value := range details {
		if known[key] {
			typed[key] = value
		} else {
			if payload.Extra == nil {
				payload.Extra = make(map[string]interface{})
			}
			payload.Extra[key] = value
		}
	}

	if len(typed) == 0 {
		return payload, nil
	}

	raw, err := json.Marshal(typed)
	if err != nil {
		return EventPayload{}, err
	}

	switch eventType {
	case EventTypeImaging:
		var d ImagingDetails
		if err := json.Unmarshal(raw, &d); err != nil {
			return EventPayload{}, err
		}
		payload.Imaging = &d
	case EventTypeMedication:
		var d MedicationDetails
		if err := json.Unmarshal(raw, &d); err != nil {
			return EventPayload{}, err
		}
		payload.Medication = &d
	case EventTypeProcedure:
		var d ProcedureDetails
		if err := json.Unmarshal(raw, &d); err != nil {
			return EventPayload{}, err
		}
		payload.Procedure = &d
	case EventTypeAssessment:
		var d AssessmentDetails
		if err := json.Unmarshal(raw, &d); err != nil {
			return EventPayload{}, err
		}
		payload.Assessment = &d
	}

	return payload, nil
}

func (p EventPayload) ToJSON() (datatypes.JSON, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

// PayloadFromJSON decodes a stored detail column; a null or empty column
// yields the zero payload.
func PayloadFromJSON(raw datatypes.JSON) (EventPayload, error) {
	var payload EventPayload
	if len(raw) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return EventPayload{}, err
	}
	return payload, nil
}
