package timeline

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

var (
	// ErrDuplicateID is returned when an event id is replayed with a
	// different payload. Identical payloads are accepted idempotently.
	ErrDuplicateID = errors.New("event id already exists with different payload")

	ErrNotFound = errors.New("timeline record not found")
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&Patient{}, &Event{}, &Milestone{}, &ExtractedVariable{})
}

// EnsurePatient creates the patient row on first contact. Patients are never
// deleted; birth date is filled in if it arrives later.
func (r *Repository) EnsurePatient(ctx context.Context, patientID string, birthDate *time.Time) (*Patient, error) {
	var patient Patient
	err := r.db.WithContext(ctx).First(&patient, "id = ?", patientID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		now := time.Now().UTC()
		patient = Patient{ID: patientID, BirthDate: birthDate, CreatedAt: now, UpdatedAt: now}
		if err := r.db.WithContext(ctx).Create(&patient).Error; err != nil {
			return nil, err
		}
		return &patient, nil
	}
	if err != nil {
		return nil, err
	}
	if patient.BirthDate == nil && birthDate != nil {
		patient.BirthDate = birthDate
		patient.UpdatedAt = time.Now().UTC()
		if err := r.db.WithContext(ctx).Save(&patient).Error; err != nil {
			return nil, err
		}
	}
	return &patient, nil
}

// UpsertEvent writes one event atomically. A replay with an identical
// fingerprint is a no-op returning the existing id; the same id with a
// different payload is rejected with ErrDuplicateID. Two distinct events may
// legitimately share a timestamp; duplicate detection handles that later, so
// it is not a schema violation here.
func (r *Repository) UpsertEvent(ctx context.Context, event *Event) (string, error) {
	if event.Fingerprint == "" {
		event.Fingerprint = EventFingerprint(event)
	}
	if event.IngestedAt.IsZero() {
		event.IngestedAt = time.Now().UTC()
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Event
		err := tx.First(&existing, "id = ?", event.ID).Error
		if err == nil {
			if existing.Fingerprint == event.Fingerprint {
				return nil
			}
			return ErrDuplicateID
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		return tx.Create(event).Error
	})
	if err != nil {
		return "", err
	}
	return event.ID, nil
}

type QueryFilters struct {
	EventTypes []string
	Category   string
	ActiveOnly bool
}

// QueryRange returns the patient's events in [start, end] ordered by event
// date ascending, ties broken by insertion order.
func (r *Repository) QueryRange(ctx context.Context, patientID string, start, end time.Time, filters QueryFilters) ([]Event, error) {
	tx := r.db.WithContext(ctx).
		Where("patient_id = ?", patientID).
		Where("event_date >= ? AND event_date <= ?", start, end)

	if len(filters.EventTypes) > 0 {
		tx = tx.Where("event_type IN ?", filters.EventTypes)
	}
	if filters.Category != "" {
		tx = tx.Where("category = ?", filters.Category)
	}
	if filters.ActiveOnly {
		tx = tx.Where("active = ?", true)
	}

	var events []Event
	if err := tx.Order("event_date asc").Order("seq asc").Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (r *Repository) GetEvent(ctx context.Context, id string) (*Event, error) {
	var event Event
	err := r.db.WithContext(ctx).First(&event, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// MarkEventInactive flags a superseded event; the row stays for audit.
func (r *Repository) MarkEventInactive(ctx context.Context, eventID, supersededBy string) error {
	result := r.db.WithContext(ctx).Model(&Event{}).
		Where("id = ?", eventID).
		Updates(map[string]interface{}{
			"active":        false,
			"superseded_by": supersededBy,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

const (
	DirectionBefore = "before"
	DirectionAfter  = "after"
)

// NearestMilestone returns the closest milestone of the given type relative
// to asOf, or nil when the patient has none in that direction.
func (r *Repository) NearestMilestone(ctx context.Context, patientID string, asOf time.Time, milestoneType, direction string) (*Milestone, error) {
	tx := r.db.WithContext(ctx).
		Where("patient_id = ?", patientID).
		Where("type = ?", milestoneType)

	switch direction {
	case DirectionBefore:
		tx = tx.Where("date <= ?", asOf).Order("date desc")
	case DirectionAfter:
		tx = tx.Where("date >= ?", asOf).Order("date asc")
	default:
		tx = tx.Order("date asc")
	}

	var milestone Milestone
	err := tx.First(&milestone).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &milestone, nil
}

func (r *Repository) SaveMilestone(ctx context.Context, milestone *Milestone) error {
	if milestone.CreatedAt.IsZero() {
		milestone.CreatedAt = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Create(milestone).Error
}

func (r *Repository) SavePatient(ctx context.Context, patient *Patient) error {
	patient.UpdatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).Save(patient).Error
}

func (r *Repository) CreateVariable(ctx context.Context, variable *ExtractedVariable) error {
	now := time.Now().UTC()
	if variable.ExtractedAt.IsZero() {
		variable.ExtractedAt = now
	}
	variable.UpdatedAt = now
	if variable.ValidationState == "" {
		variable.ValidationState = ValidationPending
	}
	return r.db.WithContext(ctx).Create(variable).Error
}

func (r *Repository) GetVariable(ctx context.Context, id string) (*ExtractedVariable, error) {
	var variable ExtractedVariable
	err := r.db.WithContext(ctx).First(&variable, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &variable, nil
}

// ReviseVariable overwrites an extraction with the adjudicated value and
// marks it confirmed.
func (r *Repository) ReviseVariable(ctx context.Context, id, value string) error {
	result := r.db.WithContext(ctx).Model(&ExtractedVariable{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"value":            value,
			"validation_state": ValidationConfirmed,
			"updated_at":       time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) SetValidationState(ctx context.Context, id, state string) error {
	result := r.db.WithContext(ctx).Model(&ExtractedVariable{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"validation_state": state,
			"updated_at":       time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Snapshot reads one patient's full committed timeline. Downstream
// computation is pure over the result, so detection and context stay
// recomputable and never depend on cached state.
func (r *Repository) Snapshot(ctx context.Context, patientID string) (*Snapshot, error) {
	var patient Patient
	err := r.db.WithContext(ctx).First(&patient, "id = ?", patientID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var events []Event
	if err := r.db.WithContext(ctx).
		Where("patient_id = ?", patientID).
		Order("event_date asc").Order("seq asc").
		Find(&events).Error; err != nil {
		return nil, err
	}

	var milestones []Milestone
	if err := r.db.WithContext(ctx).
		Where("patient_id = ?", patientID).
		Order("date asc").
		Find(&milestones).Error; err != nil {
		return nil, err
	}

	var variables []ExtractedVariable
	if err := r.db.WithContext(ctx).
		Where("patient_id = ?", patientID).
		Order("effective_date asc").Order("extracted_at asc").
		Find(&variables).Error; err != nil {
		return nil, err
	}

	return &Snapshot{
		Patient:    patient,
		Events:     events,
		Milestones: milestones,
		Variables:  variables,
	}, nil
}
