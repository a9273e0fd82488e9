package detect

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadRulesFromYAML(t *testing.T) {
	content := `
confidence_floor: 0.8
duplicate_event_types: ["Imaging"]
status_variables: ["tumor_status"]
transitions:
  - variable: tumor_status
    from: Increased
    to: Decreased
    min_days: 10
foreign_vocabularies:
  tumor_status:
    - "Gross Total Resection"
`
	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing rules file: %v", err)
	}

	cfg, err := LoadRules(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ConfidenceFloor != 0.8 {
		t.Fatalf("confidence floor = %v, want 0.8", cfg.ConfidenceFloor)
	}
	rule, ok := cfg.transition("tumor_status", "Increased", "Decreased")
	if !ok || rule.MinDays != 10 {
		t.Fatalf("transition lookup failed: %+v ok=%v", rule, ok)
	}
	if _, ok := cfg.transition("tumor_status", "Decreased", "Increased"); ok {
		t.Fatal("undeclared transition must not resolve")
	}
}

func TestLoadRulesEmptyPathGivesDefaults(t *testing.T) {
	cfg, err := LoadRules("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Transitions) == 0 || cfg.ConfidenceFloor != 0.75 {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

func TestLoadRulesRejectsEmptyConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte("confidence_floor: 0.9\n"), 0o644); err != nil {
		t.Fatalf("writing rules file: %v", err)
	}
	if _, err := LoadRules(path); err == nil {
		t.Fatal("expected error for config with no rules")
	}
}
