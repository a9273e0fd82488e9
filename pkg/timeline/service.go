package timeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chronica-ai/platform/pkg/common/kafka"
	"github.com/chronica-ai/platform/pkg/common/logger"
	"github.com/chronica-ai/platform/pkg/common/models"
	"github.com/chronica-ai/platform/pkg/observability/metrics"
	"github.com/google/uuid"
)

// Service owns the write path of the timeline store: validation, event
// persistence, milestone maintenance, extraction-context capture, and the
// ingested-event notification downstream processing listens on.
type Service struct {
	validator *Validator
	repo      *Repository
	builder   *ContextBuilder
	producer  *kafka.Producer
	registry  *metrics.Registry
}

func NewService(validator *Validator, repo *Repository, builder *ContextBuilder, producer *kafka.Producer, registry *metrics.Registry) *Service {
	if registry == nil {
		registry = metrics.NewRegistry()
	}
	return &Service{
		validator: validator,
		repo:      repo,
		builder:   builder,
		producer:  producer,
		registry:  registry,
	}
}

// IngestEvent validates, persists, and announces one timeline event.
func (s *Service) IngestEvent(ctx context.Context, req models.IngestEventRequest) (*models.IngestEventResponse, error) {
	if err := s.validator.ValidateEvent(req); err != nil {
		return nil, err
	}

	date, err := ParseClinicalDate(req.EventDate, req.DatePrecision)
	if err != nil {
		return nil, err
	}

	payload, err := PayloadForType(req.EventType, req.Details)
	if err != nil {
		return nil, fmt.Errorf("building event payload: %w", err)
	}
	details, err := payload.ToJSON()
	if err != nil {
		return nil, fmt.Errorf("serializing event payload: %w", err)
	}

	eventID := req.EventID
	if eventID == "" {
		eventID = uuid.New().String()
	}

	event := &Event{
		ID:             eventID,
		PatientID:      req.PatientID,
		EventDate:      date.Time,
		DatePrecision:  date.Precision,
		EventType:      req.EventType,
		Category:       req.Category,
		Subtype:        req.Subtype,
		Description:    req.Description,
		SourceID:       req.SourceID,
		Collaborator:   req.Collaborator,
		DiagnosisCodes: CodesJSON(req.DiagnosisCodes),
		ProcedureCodes: CodesJSON(req.ProcedureCodes),
		LabCodes:       CodesJSON(req.LabCodes),
		ClinicalStatus: req.ClinicalStatus,
		Details:        details,
		Active:         true,
	}

	patient, err := s.repo.EnsurePatient(ctx, req.PatientID, nil)
	if err != nil {
		return nil, fmt.Errorf("ensuring patient: %w", err)
	}

	if _, err := s.repo.UpsertEvent(ctx, event); err != nil {
		return nil, err
	}

	candidates := MilestoneCandidates(event)
	for i := range candidates {
		if err := s.repo.SaveMilestone(ctx, &candidates[i]); err != nil {
			return nil, fmt.Errorf("saving milestone: %w", err)
		}
	}
	if ApplyAnchors(patient, event, candidates) {
		if err := s.repo.SavePatient(ctx, patient); err != nil {
			return nil, fmt.Errorf("updating milestone anchors: %w", err)
		}
	}

	if s.producer != nil {
		notifyErr := s.producer.PublishEvent(ctx, "event-ingested", req.Collaborator, map[string]interface{}{
			"patient_id": req.PatientID,
			"event_id":   event.ID,
			"event_type": event.EventType,
		})
		if notifyErr != nil {
			logger.Log.WithError(notifyErr).WithFields(map[string]interface{}{
				"patient_id": req.PatientID,
				"event_id":   event.ID,
			}).Error("failed to publish event-ingested notification")
		}
	}

	s.registry.Inc(metrics.EventsIngested)
	return &models.IngestEventResponse{
		EventID:   event.ID,
		PatientID: req.PatientID,
		Status:    "ingested",
		Timestamp: time.Now().UTC(),
	}, nil
}

// IngestVariable persists one extracted variable together with the temporal
// context derived at the moment of extraction.
func (s *Service) IngestVariable(ctx context.Context, req models.IngestVariableRequest) (*ExtractedVariable, error) {
	if err := s.validator.ValidateVariable(req); err != nil {
		return nil, err
	}

	date, err := ParseClinicalDate(req.EffectiveDate, req.DatePrecision)
	if err != nil {
		return nil, err
	}

	if _, err := s.repo.EnsurePatient(ctx, req.PatientID, nil); err != nil {
		return nil, fmt.Errorf("ensuring patient: %w", err)
	}

	snap, err := s.repo.Snapshot(ctx, req.PatientID)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot for context capture: %w", err)
	}
	contextJSON, err := json.Marshal(s.builder.Build(snap, date.Time))
	if err != nil {
		return nil, fmt.Errorf("serializing extraction context: %w", err)
	}

	variableID := req.VariableID
	if variableID == "" {
		variableID = uuid.New().String()
	}

	variable := &ExtractedVariable{
		ID:            variableID,
		PatientID:     req.PatientID,
		Variable:      req.Variable,
		Value:         req.Value,
		Confidence:    req.Confidence,
		EventID:       req.EventID,
		EffectiveDate: date.Time,
		DatePrecision: date.Precision,
		Method:        req.Method,
		Context:       contextJSON,
	}

	if err := s.repo.CreateVariable(ctx, variable); err != nil {
		return nil, err
	}

	if s.producer != nil {
		notifyErr := s.producer.PublishEvent(ctx, "variable-ingested", req.Method, map[string]interface{}{
			"patient_id":  req.PatientID,
			"variable_id": variable.ID,
			"variable":    req.Variable,
		})
		if notifyErr != nil {
			logger.Log.WithError(notifyErr).WithField("patient_id", req.PatientID).
				Error("failed to publish variable-ingested notification")
		}
	}

	s.registry.Inc(metrics.VariablesIngested)
	return variable, nil
}

// Context derives the temporal context for an arbitrary anchor date.
func (s *Service) Context(ctx context.Context, patientID string, anchor time.Time) (*models.TemporalContext, error) {
	snap, err := s.repo.Snapshot(ctx, patientID)
	if err != nil {
		return nil, err
	}
	result := s.builder.Build(snap, anchor)
	return &result, nil
}

// HandleBusEvent adapts the clinical-events topic to the ingestion path so
// collaborators can ship extractions without HTTP.
func (s *Service) HandleBusEvent(ctx context.Context, event models.BusEvent) error {
	raw, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("re-encoding bus payload: %w", err)
	}

	switch event.Type {
	case "clinical-event":
		var req models.IngestEventRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return fmt.Errorf("decoding clinical event: %w", err)
		}
		if req.Collaborator == "" {
			req.Collaborator = event.Source
		}
		_, err = s.IngestEvent(ctx, req)
		if IsValidationError(err) {
			// Malformed collaborator payloads are logged and dropped, not
			// retried forever.
			logger.Log.WithError(err).WithField("bus_event_id", event.ID).Warn("dropping invalid clinical event")
			return nil
		}
		return err
	case "extracted-variable":
		var req models.IngestVariableRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return fmt.Errorf("decoding extracted variable: %w", err)
		}
		_, err = s.IngestVariable(ctx, req)
		if IsValidationError(err) {
			logger.Log.WithError(err).WithField("bus_event_id", event.ID).Warn("dropping invalid extracted variable")
			return nil
		}
		return err
	default:
		logger.Log.WithField("type", event.Type).Debug("ignoring unhandled bus event")
		return nil
	}
}
