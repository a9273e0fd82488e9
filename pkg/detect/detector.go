package detect

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/chronica-ai/platform/pkg/timeline"
	"github.com/google/uuid"
)

// Detector scans one patient's snapshot for implausible extractions. Every
// check is a pure function of snapshot contents: re-running on unchanged data
// reproduces a content-identical record set.
type Detector struct {
	rules RulesConfig
	id    string
}

func New(rules RulesConfig, detectorID string) *Detector {
	if detectorID == "" {
		detectorID = "chronica-detector/v1"
	}
	return &Detector{rules: rules, id: detectorID}
}

// Run executes all checks over the full event set.
func (d *Detector) Run(snap *timeline.Snapshot) []InconsistencyRecord {
	return d.RunSubset(snap, nil)
}

// RunSubset restricts the duplicate check to the declared event types
// (imaging-only scans and the like). Nil means all configured types.
func (d *Detector) RunSubset(snap *timeline.Snapshot, eventTypes []string) []InconsistencyRecord {
	var records []InconsistencyRecord
	records = append(records, d.detectDuplicates(snap, eventTypes)...)
	records = append(records, d.detectTemporalImplausibility(snap)...)
	records = append(records, d.detectWrongVariableType(snap)...)
	records = append(records, d.detectLowConfidence(snap)...)

	sort.Slice(records, func(i, j int) bool {
		if records[i].Kind != records[j].Kind {
			return records[i].Kind < records[j].Kind
		}
		return records[i].Fingerprint < records[j].Fingerprint
	})
	return records
}

// detectDuplicates groups active events by exact calendar date within one
// event type. Same-day repeats are far more likely duplicate ingestions than
// independent studies, so each group yields exactly one record referencing
// every member.
func (d *Detector) detectDuplicates(snap *timeline.Snapshot, eventTypes []string) []InconsistencyRecord {
	checked := d.rules.DuplicateEventTypes
	if len(eventTypes) > 0 {
		checked = intersect(checked, eventTypes)
	}
	checkedSet := make(map[string]bool, len(checked))
	for _, t := range checked {
		checkedSet[t] = true
	}

	groups := make(map[string][]string)
	for _, event := range snap.ActiveEvents() {
		if !checkedSet[event.EventType] {
			continue
		}
		key := event.EventType + "@" + timeline.DayKey(event.EventDate)
		groups[key] = append(groups[key], event.ID)
	}

	keys := make([]string, 0, len(groups))
	for key := range groups {
		if len(groups[key]) > 1 {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	var records []InconsistencyRecord
	for _, key := range keys {
		ids := groups[key]
		parts := strings.SplitN(key, "@", 2)
		records = append(records, d.newRecord(
			snap.Patient.ID,
			KindDuplicate,
			SeverityMedium,
			fmt.Sprintf("%d %s events share calendar date %s", len(ids), parts[0], parts[1]),
			ids,
			nil,
			key,
		))
	}
	return records
}

// detectTemporalImplausibility walks each status variable chronologically and
// consults the transition matrix for every adjacent pair. A sub-threshold
// transition without a corroborating intervention in the window is flagged
// high.
func (d *Detector) detectTemporalImplausibility(snap *timeline.Snapshot) []InconsistencyRecord {
	var records []InconsistencyRecord

	for _, variable := range d.rules.StatusVariables {
		series := variableSeries(snap, variable)
		for i := 1; i < len(series); i++ {
			prev, next := series[i-1], series[i]
			rule, ok := d.rules.transition(variable, prev.Value, next.Value)
			if !ok {
				continue
			}
			elapsed := timeline.DaysBetween(prev.EffectiveDate, next.EffectiveDate)
			if elapsed >= rule.MinDays {
				continue
			}
			if hasIntervention(snap, prev.EffectiveDate, next.EffectiveDate) {
				continue
			}
			records = append(records, d.newRecord(
				snap.Patient.ID,
				KindTemporalImplausibility,
				SeverityHigh,
				fmt.Sprintf("%s %s to %s in %d days (minimum plausible: %d) with no intervention in the window",
					variable, prev.Value, next.Value, elapsed, rule.MinDays),
				eventRefs(prev, next),
				[]string{prev.ID, next.ID},
				fmt.Sprintf("%s:%s>%s", variable, prev.ID, next.ID),
			))
		}
	}
	return records
}

// detectWrongVariableType flags extraction values that belong to a different
// variable's vocabulary, e.g. resection extent text in a tumor-status field.
func (d *Detector) detectWrongVariableType(snap *timeline.Snapshot) []InconsistencyRecord {
	var records []InconsistencyRecord
	for _, v := range snap.Variables {
		foreign, ok := d.rules.ForeignVocabularies[v.Variable]
		if !ok {
			continue
		}
		for _, foreignValue := range foreign {
			if v.Value == foreignValue {
				records = append(records, d.newRecord(
					snap.Patient.ID,
					KindWrongVariableType,
					SeverityMedium,
					fmt.Sprintf("value %q in %s field belongs to a different variable's vocabulary", v.Value, v.Variable),
					eventRefs(v),
					[]string{v.ID},
					v.Value,
				))
				break
			}
		}
	}
	return records
}

// detectLowConfidence flags sub-floor extractions. These are reported but not
// auto-escalated for resolution unless they co-occur with another flagged
// kind on the same record (see Actionable).
func (d *Detector) detectLowConfidence(snap *timeline.Snapshot) []InconsistencyRecord {
	var records []InconsistencyRecord
	for _, v := range snap.Variables {
		if v.Confidence >= d.rules.ConfidenceFloor {
			continue
		}
		records = append(records, d.newRecord(
			snap.Patient.ID,
			KindLowConfidence,
			SeverityLow,
			fmt.Sprintf("%s extraction confidence %.2f below floor %.2f", v.Variable, v.Confidence, d.rules.ConfidenceFloor),
			eventRefs(v),
			[]string{v.ID},
			fmt.Sprintf("%.2f", v.Confidence),
		))
	}
	return records
}

// Actionable filters the records the orchestrator should resolve: every
// non-low-confidence record, plus low-confidence records that share an
// affected event or variable with another flagged kind.
func Actionable(records []InconsistencyRecord) []InconsistencyRecord {
	flagged := make(map[string]bool)
	for _, r := range records {
		if r.Kind == KindLowConfidence {
			continue
		}
		for _, id := range r.AffectedEventIDs() {
			flagged[id] = true
		}
		for _, id := range r.AffectedVariableIDs() {
			flagged[id] = true
		}
	}

	var out []InconsistencyRecord
	for _, r := range records {
		if r.Kind != KindLowConfidence {
			out = append(out, r)
			continue
		}
		for _, id := range append(r.AffectedEventIDs(), r.AffectedVariableIDs()...) {
			if flagged[id] {
				out = append(out, r)
				break
			}
		}
	}
	return out
}

func (d *Detector) newRecord(patientID, kind, severity, description string, eventIDs, variableIDs []string, extra string) InconsistencyRecord {
	return InconsistencyRecord{
		ID:          uuid.New().String(),
		PatientID:   patientID,
		Kind:        kind,
		Severity:    severity,
		Description: description,
		EventIDs:    encodeIDs(eventIDs),
		VariableIDs: encodeIDs(variableIDs),
		DetectorID:  d.id,
		Fingerprint: fingerprint(patientID, kind, eventIDs, variableIDs, extra),
		DetectedAt:  time.Now().UTC(),
	}
}

func variableSeries(snap *timeline.Snapshot, variable string) []timeline.ExtractedVariable {
	var series []timeline.ExtractedVariable
	for _, v := range snap.Variables {
		if v.Variable == variable {
			series = append(series, v)
		}
	}
	sort.SliceStable(series, func(i, j int) bool {
		if !series[i].EffectiveDate.Equal(series[j].EffectiveDate) {
			return series[i].EffectiveDate.Before(series[j].EffectiveDate)
		}
		return series[i].ExtractedAt.Before(series[j].ExtractedAt)
	})
	return series
}

// hasIntervention reports whether a surgery, medication start, or radiation
// start falls inside [from, to].
func hasIntervention(snap *timeline.Snapshot, from, to time.Time) bool {
	for _, event := range snap.ActiveEvents() {
		day := timeline.NormalizeDay(event.EventDate)
		if day.Before(timeline.NormalizeDay(from)) || day.After(timeline.NormalizeDay(to)) {
			continue
		}
		switch event.EventType {
		case timeline.EventTypeProcedure:
			return true
		case timeline.EventTypeMedication:
			return true
		default:
			if strings.EqualFold(event.Category, "radiation") {
				return true
			}
		}
	}
	return false
}

func eventRefs(vars ...timeline.ExtractedVariable) []string {
	var ids []string
	for _, v := range vars {
		if v.EventID != "" {
			ids = append(ids, v.EventID)
		}
	}
	return ids
}

func intersect(a, b []string) []string {
	set := make(map[string]bool, len(b))
	for _, v := range b {
		set[v] = true
	}
	var out []string
	for _, v := range a {
		if set[v] {
			out = append(out, v)
		}
	}
	return out
}
