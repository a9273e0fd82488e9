package pipeline

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/chronica-ai/platform/pkg/common/kafka"
	"github.com/chronica-ai/platform/pkg/common/logger"
	"github.com/chronica-ai/platform/pkg/detect"
	"github.com/chronica-ai/platform/pkg/observability/metrics"
	"github.com/chronica-ai/platform/pkg/qa"
	"github.com/chronica-ai/platform/pkg/resolve"
	"github.com/chronica-ai/platform/pkg/timeline"
)

// RunSummary is what one full pipeline pass over a patient produced.
type RunSummary struct {
	PatientID     string           `json:"patient_id"`
	Detected      int              `json:"detected"`
	Actionable    int              `json:"actionable"`
	Results       []resolve.Result `json:"results,omitempty"`
	ReportFlagged bool             `json:"report_flagged"`
}

// Service runs the detect-resolve-report pass for one patient: snapshot the
// timeline, persist detections, drive each actionable inconsistency to a
// terminal state, and regenerate the QA report.
type Service struct {
	timeline     *timeline.Repository
	detector     *detect.Detector
	detections   *detect.Repository
	attempts     *resolve.Repository
	orchestrator *resolve.Orchestrator
	reports      *qa.Repository
	producer     *kafka.Producer
	registry     *metrics.Registry
}

func NewService(
	timelineRepo *timeline.Repository,
	detector *detect.Detector,
	detections *detect.Repository,
	attempts *resolve.Repository,
	orchestrator *resolve.Orchestrator,
	reports *qa.Repository,
	producer *kafka.Producer,
	registry *metrics.Registry,
) *Service {
	return &Service{
		timeline:     timelineRepo,
		detector:     detector,
		detections:   detections,
		attempts:     attempts,
		orchestrator: orchestrator,
		reports:      reports,
		producer:     producer,
		registry:     registry,
	}
}

// ProcessPatient executes one pass. Every stage is idempotent, so a crashed
// or cancelled run is safe to repeat.
func (s *Service) ProcessPatient(ctx context.Context, patientID string) (*RunSummary, error) {
	log := logger.Log.WithField("patient_id", patientID)

	snap, err := s.timeline.Snapshot(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("loading timeline snapshot: %w", err)
	}

	detected := s.detector.Run(snap)
	stored, err := s.detections.SaveAll(ctx, detected)
	if err != nil {
		return nil, fmt.Errorf("persisting detections: %w", err)
	}
	for _, record := range stored {
		s.registry.Inc(metrics.DetectionCounter(record.Kind))
	}

	actionable := detect.Actionable(stored)
	summary := &RunSummary{PatientID: patientID, Detected: len(stored), Actionable: len(actionable)}

	for i := range actionable {
		result, err := s.orchestrator.Resolve(ctx, snap, &actionable[i])
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", actionable[i].ID, err)
		}
		summary.Results = append(summary.Results, *result)
		if result.FailedQueries > 0 {
			s.registry.Add(metrics.OracleFailures, int64(result.FailedQueries))
		}
		switch result.Outcome {
		case resolve.OutcomeResolved:
			s.registry.Inc(metrics.Resolved)
		case resolve.OutcomeEscalated:
			s.registry.Inc(metrics.Escalated)
		}
	}

	// Adjudications may have superseded events or revised variables; report
	// against the post-resolution state.
	if len(summary.Results) > 0 {
		if snap, err = s.timeline.Snapshot(ctx, patientID); err != nil {
			return nil, fmt.Errorf("reloading timeline snapshot: %w", err)
		}
	}

	report, err := s.regenerateReport(ctx, snap, patientID)
	if err != nil {
		return nil, err
	}
	summary.ReportFlagged = report.RequiresHumanReview
	s.registry.Inc(metrics.PatientsProcessed)

	log.WithFields(logrus.Fields{
		"detected":     summary.Detected,
		"actionable":   summary.Actionable,
		"human_review": summary.ReportFlagged,
	}).Info("pipeline pass complete")
	return summary, nil
}

// Override applies a human decision to one inconsistency and refreshes the
// patient's report.
func (s *Service) Override(ctx context.Context, inconsistencyID, action, rationale, actor string) (*resolve.Result, error) {
	record, err := s.detections.Get(ctx, inconsistencyID)
	if err != nil {
		return nil, err
	}
	snap, err := s.timeline.Snapshot(ctx, record.PatientID)
	if err != nil {
		return nil, fmt.Errorf("loading timeline snapshot: %w", err)
	}
	result, err := s.orchestrator.Override(ctx, snap, record, action, rationale, actor)
	if err != nil {
		return nil, err
	}
	s.registry.Inc(metrics.Overridden)

	if snap, err = s.timeline.Snapshot(ctx, record.PatientID); err != nil {
		return nil, fmt.Errorf("reloading timeline snapshot: %w", err)
	}
	if _, err := s.regenerateReport(ctx, snap, record.PatientID); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) Report(ctx context.Context, patientID string) (*qa.Report, error) {
	return s.reports.Get(ctx, patientID)
}

// Attempts returns the audit trail for one inconsistency, oldest first.
func (s *Service) Attempts(ctx context.Context, inconsistencyID string) ([]resolve.ResolutionAttempt, error) {
	return s.attempts.ListByInconsistency(ctx, inconsistencyID)
}

// ReviewQueue lists patients whose latest report needs a human, oldest first.
func (s *Service) ReviewQueue(ctx context.Context, limit int) ([]string, error) {
	return s.reports.ListNeedingReview(ctx, limit)
}

func (s *Service) regenerateReport(ctx context.Context, snap *timeline.Snapshot, patientID string) (*qa.Report, error) {
	records, err := s.detections.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("listing detections: %w", err)
	}
	attempts, err := s.attempts.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("listing attempts: %w", err)
	}

	report := qa.Generate(snap, records, attempts)
	if err := s.reports.Save(ctx, report); err != nil {
		return nil, fmt.Errorf("saving qa report: %w", err)
	}

	if s.producer != nil {
		payload := map[string]interface{}{
			"patient_id":            patientID,
			"requires_human_review": report.RequiresHumanReview,
			"escalated":             report.Escalated,
			"open":                  report.Open,
		}
		if err := s.producer.PublishEvent(ctx, "qa-report-updated", "resolution-service", payload); err != nil {
			logger.Log.WithError(err).WithField("patient_id", patientID).Warn("failed to publish report update")
		}
	}
	return report, nil
}
