package resolve

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/chronica-ai/platform/pkg/common/logger"
	"github.com/chronica-ai/platform/pkg/common/models"
	"github.com/chronica-ai/platform/pkg/detect"
	"github.com/chronica-ai/platform/pkg/oracle"
	"github.com/chronica-ai/platform/pkg/timeline"
)

// TimelineStore is the slice of the timeline repository the orchestrator
// needs to apply adjudications.
type TimelineStore interface {
	MarkEventInactive(ctx context.Context, eventID, supersededBy string) error
	ReviseVariable(ctx context.Context, id, value string) error
	SetValidationState(ctx context.Context, id, state string) error
}

// AttemptStore persists the append-only attempt log.
type AttemptStore interface {
	Create(ctx context.Context, attempt *ResolutionAttempt) error
	HasTerminalAttempt(ctx context.Context, inconsistencyID string) (bool, error)
}

// OracleClient reviews one inconsistency against gathered evidence.
type OracleClient interface {
	Review(ctx context.Context, request models.OracleRequest) (*models.OracleResponse, error)
}

// Result summarizes how one inconsistency left the state machine.
type Result struct {
	InconsistencyID string `json:"inconsistency_id"`
	State           State  `json:"state"`
	Outcome         string `json:"outcome"`
	Action          string `json:"action,omitempty"`
	Attempts        int    `json:"attempts"`
	FailedQueries   int    `json:"failed_queries,omitempty"`
	Rationale       string `json:"rationale,omitempty"`
}

// Orchestrator drives one inconsistency from detection to a terminal state:
// gather evidence, consult the oracle, adjudicate, and on a failed or
// unusable oracle interaction retry with a doubled evidence window. Every
// inconsistency reaches resolved or escalated in bounded attempts.
type Orchestrator struct {
	timeline         TimelineStore
	attempts         AttemptStore
	oracle           OracleClient
	gatherer         *Gatherer
	model            string
	maxAttempts      int
	baseWindowDays   int
	medicationWindow int
	acceptanceFloor  float64
}

func NewOrchestrator(store TimelineStore, attempts AttemptStore, oracleClient OracleClient, gatherer *Gatherer, model string, maxAttempts, baseWindowDays, medicationWindowDays int, acceptanceFloor float64) *Orchestrator {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Orchestrator{
		timeline:         store,
		attempts:         attempts,
		oracle:           oracleClient,
		gatherer:         gatherer,
		model:            model,
		maxAttempts:      maxAttempts,
		baseWindowDays:   baseWindowDays,
		medicationWindow: medicationWindowDays,
		acceptanceFloor:  acceptanceFloor,
	}
}

// Resolve runs the resolution loop for one inconsistency. Already-closed
// inconsistencies are skipped, so re-running a patient is safe. Context
// cancellation aborts before the next oracle call with no partial writes.
func (o *Orchestrator) Resolve(ctx context.Context, snap *timeline.Snapshot, record *detect.InconsistencyRecord) (*Result, error) {
	done, err := o.attempts.HasTerminalAttempt(ctx, record.ID)
	if err != nil {
		return nil, fmt.Errorf("checking prior attempts: %w", err)
	}
	if done {
		return &Result{InconsistencyID: record.ID, State: StateAdjudicated, Outcome: OutcomeResolved, Rationale: "already closed by a prior run"}, nil
	}

	log := logger.Log.WithFields(logrus.Fields{
		"patient_id":       snap.Patient.ID,
		"inconsistency_id": record.ID,
		"kind":             record.Kind,
	})

	state := StateDetected
	window := o.baseWindowDays
	medicationWindow := o.medicationWindow
	failedQueries := 0

	for attempt := 1; attempt <= o.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if state, err = Transition(state, StateEvidenceGathering); err != nil {
			return nil, err
		}
		evidence, err := o.gatherer.Gather(ctx, snap, record, window, medicationWindow)
		if err != nil {
			return nil, fmt.Errorf("gathering evidence: %w", err)
		}

		if state, err = Transition(state, StateOracleQuery); err != nil {
			return nil, err
		}
		request := o.buildRequest(record, evidence)
		response, reviewErr := o.oracle.Review(ctx, request)

		if reviewErr != nil {
			if errors.Is(reviewErr, context.Canceled) {
				return nil, reviewErr
			}
			log.WithError(reviewErr).WithField("attempt", attempt).Warn("oracle interaction failed")
			o.recordAttempt(ctx, record, attempt, "oracle-review", window, evidence, request, nil, OutcomeFailed, reviewErr.Error())
			failedQueries++
			window *= 2
			medicationWindow *= 2
			continue
		}

		outcome, action, rationale, applyErr := o.adjudicate(ctx, snap, record, response)
		if applyErr != nil {
			return nil, applyErr
		}
		o.recordAttempt(ctx, record, attempt, "oracle-review", window, evidence, request, response, outcome, rationale)

		if outcome == OutcomeEscalated {
			state = StateEscalated
			log.WithField("rationale", rationale).Info("inconsistency escalated")
		} else {
			state = StateAdjudicated
			log.WithField("action", action).Info("inconsistency resolved")
		}
		return &Result{InconsistencyID: record.ID, State: state, Outcome: outcome, Action: action, Attempts: attempt, FailedQueries: failedQueries, Rationale: rationale}, nil
	}

	rationale := fmt.Sprintf("oracle unusable after %d attempts", o.maxAttempts)
	o.recordAttempt(ctx, record, o.maxAttempts+1, "retry-exhaustion", window, nil, models.OracleRequest{}, nil, OutcomeEscalated, rationale)
	log.Warn("escalating after exhausted retries")
	return &Result{InconsistencyID: record.ID, State: StateEscalated, Outcome: OutcomeEscalated, Attempts: o.maxAttempts, FailedQueries: failedQueries, Rationale: rationale}, nil
}

func (o *Orchestrator) buildRequest(record *detect.InconsistencyRecord, evidence *Evidence) models.OracleRequest {
	questions := []string{
		"Is this timeline clinically plausible given the evidence?",
		"Are any of the listed events duplicate records of the same real-world event?",
		"What action should be taken: keep_both, mark_duplicate, revise_event, or escalate?",
	}
	summaries := evidence.EventSummaries
	for _, neighbor := range evidence.Neighbors {
		summaries = append(summaries, fmt.Sprintf("nearby (%+d days): %s %s: %s",
			neighbor.OffsetDays, neighbor.EventDate.Format("2006-01-02"), neighbor.EventType, neighbor.Description))
	}
	return models.OracleRequest{
		Model:            o.model,
		InconsistencyID:  record.ID,
		Kind:             record.Kind,
		Description:      record.Description,
		EventSummaries:   summaries,
		EvidenceExcerpts: evidence.Excerpts,
		Questions:        questions,
		ResponseFields:   []string{"clinical_plausibility", "duplicate_assessment", "event_judgments", "recommended_action", "confidence", "rationale"},
		Metadata:         map[string]string{"severity": record.Severity, "detector_id": record.DetectorID},
	}
}

// adjudicate applies the oracle's recommendation. Low-confidence verdicts and
// explicit escalations both route to a human; everything else mutates the
// timeline through supersession or revision, never deletion.
func (o *Orchestrator) adjudicate(ctx context.Context, snap *timeline.Snapshot, record *detect.InconsistencyRecord, response *models.OracleResponse) (outcome, action, rationale string, err error) {
	if response.Confidence < o.acceptanceFloor {
		return OutcomeEscalated, "", fmt.Sprintf("oracle confidence %.2f below acceptance floor: %s", response.Confidence, response.Rationale), nil
	}

	switch response.RecommendedAction {
	case oracle.ActionEscalate:
		return OutcomeEscalated, "", response.Rationale, nil

	case oracle.ActionMarkDuplicate:
		kept, superseded, pickErr := o.pickDuplicate(snap, record)
		if pickErr != nil {
			return OutcomeEscalated, "", pickErr.Error(), nil
		}
		for _, id := range superseded {
			if err := o.timeline.MarkEventInactive(ctx, id, kept); err != nil {
				return "", "", "", fmt.Errorf("superseding duplicate event %s: %w", id, err)
			}
		}
		return OutcomeResolved, oracle.ActionMarkDuplicate, response.Rationale, nil

	case oracle.ActionReviseEvent:
		variableID := o.pickRevision(record, response)
		if variableID == "" || response.RevisedValue == "" {
			return OutcomeEscalated, "", "revision recommended without a target variable or value: " + response.Rationale, nil
		}
		if err := o.timeline.ReviseVariable(ctx, variableID, response.RevisedValue); err != nil {
			return "", "", "", fmt.Errorf("revising variable %s: %w", variableID, err)
		}
		return OutcomeResolved, oracle.ActionReviseEvent, response.Rationale, nil

	case oracle.ActionKeepBoth:
		for _, id := range record.AffectedVariableIDs() {
			if err := o.timeline.SetValidationState(ctx, id, timeline.ValidationConfirmed); err != nil && !errors.Is(err, timeline.ErrNotFound) {
				return "", "", "", fmt.Errorf("confirming variable %s: %w", id, err)
			}
		}
		return OutcomeResolved, oracle.ActionKeepBoth, response.Rationale, nil
	}

	return OutcomeEscalated, "", fmt.Sprintf("unrecognized recommendation %q", response.RecommendedAction), nil
}

// pickDuplicate keeps the earliest record of a duplicate group and marks the
// rest superseded. Insertion order breaks date ties so the outcome is stable.
func (o *Orchestrator) pickDuplicate(snap *timeline.Snapshot, record *detect.InconsistencyRecord) (kept string, superseded []string, err error) {
	var events []timeline.Event
	for _, id := range record.AffectedEventIDs() {
		if event, ok := snap.EventByID(id); ok && event.Active {
			events = append(events, event)
		}
	}
	if len(events) < 2 {
		return "", nil, errors.New("duplicate recommendation without two live events")
	}
	sort.Slice(events, func(i, j int) bool {
		if !events[i].EventDate.Equal(events[j].EventDate) {
			return events[i].EventDate.Before(events[j].EventDate)
		}
		return events[i].Seq < events[j].Seq
	})
	kept = events[0].ID
	for _, event := range events[1:] {
		superseded = append(superseded, event.ID)
	}
	return kept, superseded, nil
}

func (o *Orchestrator) pickRevision(record *detect.InconsistencyRecord, response *models.OracleResponse) string {
	variableIDs := record.AffectedVariableIDs()
	if response.ReviseEventID != "" {
		for _, id := range variableIDs {
			if id == response.ReviseEventID {
				return id
			}
		}
		return ""
	}
	if len(variableIDs) == 1 {
		return variableIDs[0]
	}
	return ""
}

// recordAttempt appends one row to the audit log. A write failure here is logged
// rather than failing the resolution: the adjudication already happened.
func (o *Orchestrator) recordAttempt(ctx context.Context, record *detect.InconsistencyRecord, attemptNumber int, method string, windowDays int, evidence *Evidence, request models.OracleRequest, response *models.OracleResponse, outcome, rationale string) {
	attempt := &ResolutionAttempt{
		ID:              uuid.NewString(),
		InconsistencyID: record.ID,
		PatientID:       record.PatientID,
		AttemptNumber:   attemptNumber,
		Method:          method,
		WindowDays:      windowDays,
		Outcome:         outcome,
		Rationale:       rationale,
		CreatedAt:       time.Now().UTC(),
	}
	if evidence != nil {
		if raw, err := json.Marshal(evidence.Sources); err == nil {
			attempt.EvidenceSources = raw
		}
	}
	if raw, err := json.Marshal(request); err == nil {
		attempt.RequestPayload = raw
	}
	if response != nil {
		if raw, err := json.Marshal(response); err == nil {
			attempt.ResponsePayload = raw
		}
	}
	if err := o.attempts.Create(ctx, attempt); err != nil {
		logger.Log.WithError(err).WithField("inconsistency_id", record.ID).Error("failed to persist resolution attempt")
	}
}

// Override records a human decision against an inconsistency and applies it.
// Overrides are legal from any state, including terminal ones.
func (o *Orchestrator) Override(ctx context.Context, snap *timeline.Snapshot, record *detect.InconsistencyRecord, action, rationale, actor string) (*Result, error) {
	if rationale == "" {
		return nil, errors.New("override requires a rationale")
	}

	var applied string
	switch action {
	case oracle.ActionMarkDuplicate:
		kept, superseded, err := o.pickDuplicate(snap, record)
		if err != nil {
			return nil, err
		}
		for _, id := range superseded {
			if err := o.timeline.MarkEventInactive(ctx, id, kept); err != nil {
				return nil, fmt.Errorf("superseding duplicate event %s: %w", id, err)
			}
		}
		applied = action
	case oracle.ActionKeepBoth, "":
		applied = oracle.ActionKeepBoth
	default:
		return nil, fmt.Errorf("unsupported override action %q", action)
	}

	o.recordAttempt(ctx, record, 0, "manual-override", 0, nil, models.OracleRequest{}, nil, OutcomeOverridden,
		fmt.Sprintf("%s (by %s)", rationale, actor))
	return &Result{InconsistencyID: record.ID, State: StateOverridden, Outcome: OutcomeOverridden, Action: applied, Rationale: rationale}, nil
}
