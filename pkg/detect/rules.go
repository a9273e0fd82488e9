package detect

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// TransitionRule declares the minimum plausible elapsed days between two
// adjacent values of a status-bearing variable, absent a corroborating
// intervention in the window.
type TransitionRule struct {
	Variable string `yaml:"variable" json:"variable"`
	From     string `yaml:"from" json:"from"`
	To       string `yaml:"to" json:"to"`
	MinDays  int    `yaml:"min_days" json:"min_days"`
}

type RulesConfig struct {
	ConfidenceFloor     float64             `yaml:"confidence_floor" json:"confidence_floor"`
	DuplicateEventTypes []string            `yaml:"duplicate_event_types" json:"duplicate_event_types"`
	StatusVariables     []string            `yaml:"status_variables" json:"status_variables"`
	Transitions         []TransitionRule    `yaml:"transitions" json:"transitions"`
	ForeignVocabularies map[string][]string `yaml:"foreign_vocabularies" json:"foreign_vocabularies"`
}

func LoadRules(path string) (RulesConfig, error) {
	if path == "" {
		return DefaultRules(), nil
	}
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return DefaultRules(), err
	}

	var cfg RulesConfig
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return RulesConfig{}, err
	}
	if len(cfg.Transitions) == 0 && len(cfg.ForeignVocabularies) == 0 {
		return RulesConfig{}, errors.New("no detection rules configured")
	}
	if cfg.ConfidenceFloor <= 0 {
		cfg.ConfidenceFloor = 0.75
	}
	return cfg, nil
}

// DefaultRules carries the compiled-in thresholds. The day values are
// empirically chosen; deployments revisit them via the YAML file.
func DefaultRules() RulesConfig {
	return RulesConfig{
		ConfidenceFloor:     0.75,
		DuplicateEventTypes: []string{"Imaging", "Assessment"},
		StatusVariables:     []string{"tumor_status"},
		Transitions: []TransitionRule{
			{Variable: "tumor_status", From: "Increased", To: "Decreased", MinDays: 7},
			{Variable: "tumor_status", From: "Decreased", To: "Increased", MinDays: 5},
			{Variable: "tumor_status", From: "Increased", To: "Stable", MinDays: 5},
			{Variable: "tumor_status", From: "Stable", To: "Increased", MinDays: 3},
			{Variable: "tumor_status", From: "Stable", To: "Decreased", MinDays: 3},
		},
		ForeignVocabularies: map[string][]string{
			"tumor_status": {
				"Gross Total Resection",
				"Near Total Resection",
				"Subtotal Resection",
				"Biopsy Only",
			},
		},
	}
}

func (c RulesConfig) transition(variable, from, to string) (TransitionRule, bool) {
	for _, rule := range c.Transitions {
		if rule.Variable == variable && rule.From == from && rule.To == to {
			return rule, true
		}
	}
	return TransitionRule{}, false
}
