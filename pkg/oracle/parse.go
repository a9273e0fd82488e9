package oracle

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/chronica-ai/platform/pkg/common/models"
)

// Recommended actions the adjudication layer knows how to apply.
const (
	ActionKeepBoth      = "keep_both"
	ActionMarkDuplicate = "mark_duplicate"
	ActionReviseEvent   = "revise_event"
	ActionEscalate      = "escalate"
)

var allowedActions = map[string]bool{
	ActionKeepBoth:      true,
	ActionMarkDuplicate: true,
	ActionReviseEvent:   true,
	ActionEscalate:      true,
}

var allowedPlausibility = map[string]bool{
	"plausible":   true,
	"implausible": true,
	"uncertain":   true,
}

var allowedDuplicateScan = map[string]bool{
	"yes":      true,
	"no":       true,
	"possible": true,
}

// ParseResponse decodes and validates an oracle answer. Model-generated JSON
// sometimes arrives wrapped in markdown code fences; those are stripped
// before decoding. Any missing or out-of-vocabulary required field yields
// ErrMalformed.
func ParseResponse(raw []byte) (*models.OracleResponse, error) {
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return nil, fmt.Errorf("%w: empty body", ErrMalformed)
	}
	text = stripFences(text)

	var response models.OracleResponse
	if err := json.Unmarshal([]byte(text), &response); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if !allowedPlausibility[response.Plausibility] {
		return nil, fmt.Errorf("%w: clinical_plausibility %q", ErrMalformed, response.Plausibility)
	}
	if !allowedDuplicateScan[response.DuplicateScan] {
		return nil, fmt.Errorf("%w: duplicate_assessment %q", ErrMalformed, response.DuplicateScan)
	}
	if !allowedActions[response.RecommendedAction] {
		return nil, fmt.Errorf("%w: recommended_action %q", ErrMalformed, response.RecommendedAction)
	}
	if response.EventJudgments == nil {
		return nil, fmt.Errorf("%w: missing event_judgments", ErrMalformed)
	}
	if response.Confidence < 0 || response.Confidence > 1 {
		return nil, fmt.Errorf("%w: confidence %v out of range", ErrMalformed, response.Confidence)
	}
	if strings.TrimSpace(response.Rationale) == "" {
		return nil, fmt.Errorf("%w: missing rationale", ErrMalformed)
	}

	return &response, nil
}

func stripFences(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	lines := strings.Split(text, "\n")
	endIdx := len(lines) - 1
	for i := len(lines) - 1; i > 0; i-- {
		if strings.TrimSpace(lines[i]) == "```" {
			endIdx = i
			break
		}
	}
	return strings.Join(lines[1:endIdx], "\n")
}
