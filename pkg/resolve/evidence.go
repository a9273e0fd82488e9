package resolve

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/chronica-ai/platform/pkg/common/logger"
	"github.com/chronica-ai/platform/pkg/common/models"
	"github.com/chronica-ai/platform/pkg/detect"
	"github.com/chronica-ai/platform/pkg/documents"
	"github.com/chronica-ai/platform/pkg/redact"
	"github.com/chronica-ai/platform/pkg/terminology"
	"github.com/chronica-ai/platform/pkg/timeline"
)

const maxExcerptLength = 1200

// DocumentFinder is the collaborator boundary for the binary-file and note
// indices.
type DocumentFinder interface {
	Source() string
	FindDocuments(ctx context.Context, patientID string, from, to time.Time, typeFilter string) ([]models.DocumentRef, error)
}

// Evidence is everything one oracle query gets to see.
type Evidence struct {
	Sources        []string
	Neighbors      []models.NeighborEvent
	EventSummaries []string
	Excerpts       []string
}

// Gatherer assembles multi-source evidence for one inconsistency: windowed
// timeline neighbors plus any overlapping documents from the external
// indices, deduplicated and redacted.
type Gatherer struct {
	builder  *timeline.ContextBuilder
	finders  []DocumentFinder
	redactor *redact.Redactor
	catalog  terminology.Catalog
}

func NewGatherer(builder *timeline.ContextBuilder, finders []DocumentFinder, redactor *redact.Redactor, catalog terminology.Catalog) *Gatherer {
	return &Gatherer{
		builder:  builder,
		finders:  finders,
		redactor: redactor,
		catalog:  catalog,
	}
}

// Gather collects evidence in the given window around each affected event.
// Medication-proximate inconsistencies search notes in the wider medication
// window. An unreachable collaborator is tolerated: the attempt proceeds on
// structured context alone.
func (g *Gatherer) Gather(ctx context.Context, snap *timeline.Snapshot, record *detect.InconsistencyRecord, windowDays, medicationWindowDays int) (*Evidence, error) {
	evidence := &Evidence{Sources: []string{"timeline"}}

	anchors := g.anchorDates(snap, record)
	if len(anchors) == 0 {
		return evidence, nil
	}

	// Affected events are already summarized; none of them belongs in any
	// anchor's neighbor list.
	seen := make(map[string]bool)
	for _, id := range record.AffectedEventIDs() {
		seen[id] = true
	}
	for _, anchor := range anchors {
		for _, neighbor := range g.builder.Neighbors(snap, anchor.date, windowDays, windowDays, anchor.excludeEventID) {
			if seen[neighbor.EventID] {
				continue
			}
			seen[neighbor.EventID] = true
			evidence.Neighbors = append(evidence.Neighbors, neighbor)
		}
	}

	evidence.EventSummaries = g.summarize(snap, record)

	noteWindow := windowDays
	if g.medicationProximate(snap, record, evidence.Neighbors) {
		noteWindow = medicationWindowDays
	}

	var refs []models.DocumentRef
	var unavailable int
	for _, finder := range g.finders {
		from, to := windowBounds(anchors, noteWindow)
		found, err := finder.FindDocuments(ctx, snap.Patient.ID, from, to, "")
		if err != nil {
			if errors.Is(err, documents.ErrEvidenceUnavailable) {
				unavailable++
				continue
			}
			return nil, err
		}
		if len(found) > 0 {
			evidence.Sources = append(evidence.Sources, finder.Source())
			refs = append(refs, found...)
		}
	}
	if unavailable == len(g.finders) && len(g.finders) > 0 {
		logger.Log.WithField("patient_id", snap.Patient.ID).
			Warn("no document collaborator reachable, proceeding on structured context")
	}

	for _, ref := range DedupeDocuments(refs) {
		text := strings.TrimSpace(ref.RenderableText)
		if text == "" {
			continue
		}
		if len(text) > maxExcerptLength {
			cut := maxExcerptLength
			for cut > 0 && !utf8.RuneStart(text[cut]) {
				cut--
			}
			text = text[:cut]
		}
		evidence.Excerpts = append(evidence.Excerpts, g.redactor.Redact(text))
	}

	return evidence, nil
}

type anchorDate struct {
	date           time.Time
	excludeEventID string
}

func (g *Gatherer) anchorDates(snap *timeline.Snapshot, record *detect.InconsistencyRecord) []anchorDate {
	var anchors []anchorDate
	for _, id := range record.AffectedEventIDs() {
		if event, ok := snap.EventByID(id); ok {
			anchors = append(anchors, anchorDate{date: event.EventDate, excludeEventID: event.ID})
		}
	}
	for _, id := range record.AffectedVariableIDs() {
		if variable, ok := snap.VariableByID(id); ok {
			anchors = append(anchors, anchorDate{date: variable.EffectiveDate, excludeEventID: variable.EventID})
		}
	}
	return anchors
}

func (g *Gatherer) summarize(snap *timeline.Snapshot, record *detect.InconsistencyRecord) []string {
	var summaries []string
	for _, id := range record.AffectedEventIDs() {
		event, ok := snap.EventByID(id)
		if !ok {
			summaries = append(summaries, fmt.Sprintf("event %s: no longer present in timeline", id))
			continue
		}
		summary := fmt.Sprintf("%s %s", event.EventDate.Format("2006-01-02"), event.EventType)
		if event.Category != "" {
			summary += " (" + event.Category + ")"
		}
		summary += ": " + event.Description
		codes := append(timeline.CodesFromJSON(event.DiagnosisCodes), timeline.CodesFromJSON(event.ProcedureCodes)...)
		if len(codes) > 0 {
			summary += " [codes: " + strings.Join(g.catalog.Annotate(codes), ", ") + "]"
		}
		if !event.Active {
			summary += " [superseded]"
		}
		summaries = append(summaries, summary)
	}
	for _, id := range record.AffectedVariableIDs() {
		variable, ok := snap.VariableByID(id)
		if !ok {
			summaries = append(summaries, fmt.Sprintf("variable %s: no longer present", id))
			continue
		}
		summaries = append(summaries, fmt.Sprintf("%s %s=%s (confidence %.2f, %s)",
			variable.EffectiveDate.Format("2006-01-02"), variable.Variable, variable.Value,
			variable.Confidence, variable.Method))
	}
	return summaries
}

func (g *Gatherer) medicationProximate(snap *timeline.Snapshot, record *detect.InconsistencyRecord, neighbors []models.NeighborEvent) bool {
	for _, id := range record.AffectedEventIDs() {
		if event, ok := snap.EventByID(id); ok && event.EventType == timeline.EventTypeMedication {
			return true
		}
	}
	for _, neighbor := range neighbors {
		if neighbor.EventType == timeline.EventTypeMedication {
			return true
		}
	}
	return false
}

func windowBounds(anchors []anchorDate, windowDays int) (time.Time, time.Time) {
	from := anchors[0].date
	to := anchors[0].date
	for _, anchor := range anchors[1:] {
		if anchor.date.Before(from) {
			from = anchor.date
		}
		if anchor.date.After(to) {
			to = anchor.date
		}
	}
	day := 24 * time.Hour
	return from.Add(-time.Duration(windowDays) * day), to.Add(time.Duration(windowDays) * day)
}

var contentTypePriority = map[string]int{
	"text":       0,
	"text/plain": 0,
	"html":       1,
	"text/html":  1,
	"rtf":        2,
	"pdf":        3,
}

// DedupeDocuments collapses the same logical document rendered in several
// formats to one reference, preferring structured text and falling back to a
// lower-priority rendering only when the preferred one carries no text.
func DedupeDocuments(refs []models.DocumentRef) []models.DocumentRef {
	byKey := make(map[string][]models.DocumentRef)
	var order []string
	for _, ref := range refs {
		key := logicalDocKey(ref)
		if _, ok := byKey[key]; !ok {
			order = append(order, key)
		}
		byKey[key] = append(byKey[key], ref)
	}

	var out []models.DocumentRef
	for _, key := range order {
		group := byKey[key]
		sort.SliceStable(group, func(i, j int) bool {
			return priorityOf(group[i].ContentType) < priorityOf(group[j].ContentType)
		})
		chosen := group[0]
		for _, candidate := range group {
			if strings.TrimSpace(candidate.RenderableText) != "" {
				chosen = candidate
				break
			}
		}
		out = append(out, chosen)
	}
	return out
}

func priorityOf(contentType string) int {
	if p, ok := contentTypePriority[strings.ToLower(contentType)]; ok {
		return p
	}
	return len(contentTypePriority)
}

func logicalDocKey(ref models.DocumentRef) string {
	id := ref.ID
	if dot := strings.LastIndex(id, "."); dot > 0 {
		id = id[:dot]
	}
	key := strings.ToLower(id) + "|" + strings.ToLower(ref.Classification)
	if ref.Date != nil {
		key += "|" + ref.Date.UTC().Format("2006-01-02")
	}
	return key
}
