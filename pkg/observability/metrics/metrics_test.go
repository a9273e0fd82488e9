package metrics

import (
	"strings"
	"testing"
)

func TestRegistryCounters(t *testing.T) {
	registry := NewRegistry()
	registry.Inc(EventsIngested)
	registry.Inc(EventsIngested)
	registry.Add(Resolved, 3)

	if got := registry.Value(EventsIngested); got != 2 {
		t.Fatalf("events counter = %d, want 2", got)
	}
	if got := registry.Value(Resolved); got != 3 {
		t.Fatalf("resolved counter = %d, want 3", got)
	}
	if got := registry.Value(Escalated); got != 0 {
		t.Fatalf("untouched counter = %d, want 0", got)
	}
}

func TestWritePrometheusFormat(t *testing.T) {
	registry := NewRegistry()
	registry.Inc(OracleFailures)
	registry.Add(PatientsProcessed, 5)

	var sb strings.Builder
	if err := registry.WritePrometheus(&sb); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := sb.String()
	if !strings.Contains(out, "chronica_oracle_failures_total 1") {
		t.Fatalf("missing failure counter:\n%s", out)
	}
	if !strings.Contains(out, "chronica_patients_processed_total 5") {
		t.Fatalf("missing processed counter:\n%s", out)
	}
	if !strings.Contains(out, "# TYPE chronica_oracle_failures_total counter") {
		t.Fatalf("missing TYPE line:\n%s", out)
	}
}

func TestDetectionCounterMapping(t *testing.T) {
	cases := map[string]string{
		"duplicate":               DetectionsDuplicate,
		"temporal-implausibility": DetectionsTemporal,
		"wrong-variable-type":     DetectionsVariable,
		"low-confidence":          DetectionsLowConf,
		"something-new":           "detections_other_total",
	}
	for kind, want := range cases {
		if got := DetectionCounter(kind); got != want {
			t.Fatalf("DetectionCounter(%s) = %s, want %s", kind, got, want)
		}
	}
}
