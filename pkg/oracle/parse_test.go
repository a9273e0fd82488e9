package oracle

import (
	"errors"
	"testing"
)

const validBody = `{
	"clinical_plausibility": "implausible",
	"duplicate_assessment": "yes",
	"event_judgments": {"e1": "correct", "e2": "incorrect"},
	"recommended_action": "mark_duplicate",
	"confidence": 0.85,
	"rationale": "Two imaging studies describe the same scan."
}`

func TestParseResponseValid(t *testing.T) {
	response, err := ParseResponse([]byte(validBody))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if response.RecommendedAction != ActionMarkDuplicate {
		t.Fatalf("action = %s, want %s", response.RecommendedAction, ActionMarkDuplicate)
	}
	if response.Confidence != 0.85 {
		t.Fatalf("confidence = %v, want 0.85", response.Confidence)
	}
	if response.EventJudgments["e2"] != "incorrect" {
		t.Fatalf("judgments lost: %v", response.EventJudgments)
	}
}

func TestParseResponseStripsMarkdownFences(t *testing.T) {
	fenced := "```json\n" + validBody + "\n```"
	response, err := ParseResponse([]byte(fenced))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if response.RecommendedAction != ActionMarkDuplicate {
		t.Fatalf("action = %s, want %s", response.RecommendedAction, ActionMarkDuplicate)
	}
}

func TestParseResponseMalformed(t *testing.T) {
	cases := map[string]string{
		"empty":          "",
		"not json":       "the patient is fine",
		"bad action":     `{"clinical_plausibility":"plausible","duplicate_assessment":"no","event_judgments":{},"recommended_action":"delete_everything","confidence":0.9,"rationale":"x"}`,
		"bad confidence": `{"clinical_plausibility":"plausible","duplicate_assessment":"no","event_judgments":{},"recommended_action":"keep_both","confidence":1.4,"rationale":"x"}`,
		"no rationale":   `{"clinical_plausibility":"plausible","duplicate_assessment":"no","event_judgments":{},"recommended_action":"keep_both","confidence":0.9,"rationale":"  "}`,
		"no judgments":   `{"clinical_plausibility":"plausible","duplicate_assessment":"no","recommended_action":"keep_both","confidence":0.9,"rationale":"x"}`,
		"bad scan":       `{"clinical_plausibility":"plausible","duplicate_assessment":"maybe","event_judgments":{},"recommended_action":"keep_both","confidence":0.9,"rationale":"x"}`,
	}

	for name, body := range cases {
		_, err := ParseResponse([]byte(body))
		if !errors.Is(err, ErrMalformed) {
			t.Fatalf("%s: expected ErrMalformed, got %v", name, err)
		}
	}
}
