package resolve

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/chronica-ai/platform/pkg/common/models"
	"github.com/chronica-ai/platform/pkg/detect"
	"github.com/chronica-ai/platform/pkg/documents"
	"github.com/chronica-ai/platform/pkg/redact"
	"github.com/chronica-ai/platform/pkg/terminology"
	"github.com/chronica-ai/platform/pkg/timeline"
)

var errDocumentDown = fmt.Errorf("%w: connection refused", documents.ErrEvidenceUnavailable)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestDedupeDocumentsPrefersStructuredText(t *testing.T) {
	date := day(2018, 5, 27)
	refs := []models.DocumentRef{
		{ID: "note-17.pdf", Date: &date, Classification: "radiology", ContentType: "pdf", RenderableText: "pdf render"},
		{ID: "note-17.txt", Date: &date, Classification: "radiology", ContentType: "text", RenderableText: "plain text render"},
		{ID: "note-17.html", Date: &date, Classification: "radiology", ContentType: "html", RenderableText: "html render"},
		{ID: "other-2.txt", Date: &date, Classification: "pathology", ContentType: "text", RenderableText: "pathology note"},
	}

	out := DedupeDocuments(refs)
	if len(out) != 2 {
		t.Fatalf("got %d documents, want 2", len(out))
	}
	if out[0].RenderableText != "plain text render" {
		t.Fatalf("expected plain text rendering to win, got %q", out[0].RenderableText)
	}
}

func TestDedupeDocumentsFallsBackWhenPreferredEmpty(t *testing.T) {
	date := day(2018, 5, 27)
	refs := []models.DocumentRef{
		{ID: "note-17.txt", Date: &date, Classification: "radiology", ContentType: "text", RenderableText: "   "},
		{ID: "note-17.pdf", Date: &date, Classification: "radiology", ContentType: "pdf", RenderableText: "pdf render"},
	}

	out := DedupeDocuments(refs)
	if len(out) != 1 {
		t.Fatalf("got %d documents, want 1", len(out))
	}
	if out[0].RenderableText != "pdf render" {
		t.Fatalf("expected fallback to pdf rendering, got %q", out[0].RenderableText)
	}
}

type fakeFinder struct {
	source           string
	refs             []models.DocumentRef
	err              error
	calls            int
	lastFrom, lastTo time.Time
}

func (f *fakeFinder) Source() string { return f.source }

func (f *fakeFinder) FindDocuments(_ context.Context, _ string, from, to time.Time, _ string) ([]models.DocumentRef, error) {
	f.calls++
	f.lastFrom, f.lastTo = from, to
	return f.refs, f.err
}

func newTestGatherer(t *testing.T, finders ...DocumentFinder) *Gatherer {
	t.Helper()
	redactor, err := redact.NewRedactor(redact.DefaultRules())
	if err != nil {
		t.Fatalf("building redactor: %v", err)
	}
	return NewGatherer(timeline.NewContextBuilder(90), finders, redactor, terminology.DefaultCatalog())
}

func duplicateRecord(snap *timeline.Snapshot) *detect.InconsistencyRecord {
	records := detect.New(detect.DefaultRules(), "").Run(snap)
	for i := range records {
		if records[i].Kind == detect.KindDuplicate {
			return &records[i]
		}
	}
	return nil
}

func duplicateSnapshot() *timeline.Snapshot {
	return &timeline.Snapshot{
		Patient: timeline.Patient{ID: "p1"},
		Events: []timeline.Event{
			{ID: "e1", PatientID: "p1", EventDate: day(2018, 5, 27), EventType: timeline.EventTypeImaging, Description: "MRI brain", Active: true, Seq: 1},
			{ID: "e2", PatientID: "p1", EventDate: day(2018, 5, 27), EventType: timeline.EventTypeImaging, Description: "MRI brain repeat", Active: true, Seq: 2},
			{ID: "e3", PatientID: "p1", EventDate: day(2018, 5, 30), EventType: timeline.EventTypeAssessment, Description: "clinic note", Active: true, Seq: 3},
		},
	}
}

func TestGatherCollectsNeighborsAndExcerpts(t *testing.T) {
	snap := duplicateSnapshot()
	record := duplicateRecord(snap)
	if record == nil {
		t.Fatal("expected a duplicate record")
	}

	date := day(2018, 5, 27)
	finder := &fakeFinder{source: "note-index", refs: []models.DocumentRef{
		{ID: "doc-1.txt", Date: &date, ContentType: "text", RenderableText: "Patient John Doe SSN 123-45-6789 stable appearance."},
	}}

	evidence, err := newTestGatherer(t, finder).Gather(context.Background(), snap, record, 7, 30)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if finder.calls != 1 {
		t.Fatalf("finder called %d times, want 1", finder.calls)
	}
	// e3 sits 3 days after the duplicate pair, inside the 7-day window.
	found := false
	for _, n := range evidence.Neighbors {
		if n.EventID == "e3" {
			found = true
		}
		if n.EventID == "e1" || n.EventID == "e2" {
			t.Fatalf("affected event %s must not appear as its own neighbor", n.EventID)
		}
	}
	if !found {
		t.Fatalf("expected e3 among neighbors: %+v", evidence.Neighbors)
	}

	if len(evidence.EventSummaries) != 2 {
		t.Fatalf("expected summaries for both affected events, got %v", evidence.EventSummaries)
	}
	if len(evidence.Excerpts) != 1 {
		t.Fatalf("expected one excerpt, got %d", len(evidence.Excerpts))
	}
	if strings.Contains(evidence.Excerpts[0], "123-45-6789") {
		t.Fatalf("excerpt must be redacted: %q", evidence.Excerpts[0])
	}
}

func TestGatherTruncatesExcerptsOnRuneBoundary(t *testing.T) {
	snap := duplicateSnapshot()
	record := duplicateRecord(snap)

	// A three-byte rune straddles the excerpt limit.
	date := day(2018, 5, 27)
	long := strings.Repeat("x", maxExcerptLength-1) + "日本語"
	finder := &fakeFinder{source: "note-index", refs: []models.DocumentRef{
		{ID: "doc-1.txt", Date: &date, ContentType: "text", RenderableText: long},
	}}

	evidence, err := newTestGatherer(t, finder).Gather(context.Background(), snap, record, 7, 30)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(evidence.Excerpts) != 1 {
		t.Fatalf("expected one excerpt, got %d", len(evidence.Excerpts))
	}
	excerpt := evidence.Excerpts[0]
	if len(excerpt) > maxExcerptLength {
		t.Fatalf("excerpt length %d exceeds limit %d", len(excerpt), maxExcerptLength)
	}
	if !utf8.ValidString(excerpt) {
		t.Fatalf("truncation produced invalid UTF-8: %q", excerpt[len(excerpt)-8:])
	}
}

func TestGatherToleratesUnreachableCollaborators(t *testing.T) {
	snap := duplicateSnapshot()
	record := duplicateRecord(snap)

	finder := &fakeFinder{source: "document-index", err: errDocumentDown}
	evidence, err := newTestGatherer(t, finder).Gather(context.Background(), snap, record, 7, 30)
	if err != nil {
		t.Fatalf("unavailable collaborator must not fail gathering: %v", err)
	}
	if len(evidence.Excerpts) != 0 {
		t.Fatalf("expected no excerpts, got %v", evidence.Excerpts)
	}
	if len(evidence.Neighbors) == 0 {
		t.Fatal("structured context must survive a collaborator outage")
	}
}
