package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
)

// Registry holds process-local counters exported in Prometheus text format.
// Counter names are prefixed with chronica_ at write time.
type Registry struct {
	mu       sync.Mutex
	counters map[string]*atomic.Int64
}

func NewRegistry() *Registry {
	return &Registry{counters: make(map[string]*atomic.Int64)}
}

func (r *Registry) counter(name string) *atomic.Int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.counters[name]; ok {
		return c
	}
	c := &atomic.Int64{}
	r.counters[name] = c
	return c
}

func (r *Registry) Inc(name string) {
	r.counter(name).Add(1)
}

func (r *Registry) Add(name string, delta int64) {
	r.counter(name).Add(delta)
}

func (r *Registry) Value(name string) int64 {
	return r.counter(name).Load()
}

// WritePrometheus emits all counters in deterministic order.
func (r *Registry) WritePrometheus(w io.Writer) error {
	r.mu.Lock()
	names := make([]string, 0, len(r.counters))
	for name := range r.counters {
		names = append(names, name)
	}
	r.mu.Unlock()
	sort.Strings(names)

	for _, name := range names {
		full := "chronica_" + name
		if _, err := fmt.Fprintf(w, "# TYPE %s counter\n%s %d\n", full, full, r.Value(name)); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_ = r.WritePrometheus(w)
	}
}

// Counter names shared by the services.
const (
	EventsIngested      = "events_ingested_total"
	VariablesIngested   = "variables_ingested_total"
	PatientsProcessed   = "patients_processed_total"
	DetectionsDuplicate = "detections_duplicate_total"
	DetectionsTemporal  = "detections_temporal_total"
	DetectionsVariable  = "detections_wrong_variable_total"
	DetectionsLowConf   = "detections_low_confidence_total"
	Resolved            = "inconsistencies_resolved_total"
	Escalated           = "inconsistencies_escalated_total"
	Overridden          = "inconsistencies_overridden_total"
	OracleFailures      = "oracle_failures_total"
)

// DetectionCounter maps an inconsistency kind to its counter name.
func DetectionCounter(kind string) string {
	switch kind {
	case "duplicate":
		return DetectionsDuplicate
	case "temporal-implausibility":
		return DetectionsTemporal
	case "wrong-variable-type":
		return DetectionsVariable
	case "low-confidence":
		return DetectionsLowConf
	}
	return "detections_other_total"
}
