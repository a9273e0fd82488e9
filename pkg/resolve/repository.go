package resolve

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&ResolutionAttempt{})
}

func (r *Repository) Create(ctx context.Context, attempt *ResolutionAttempt) error {
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Create(attempt).Error
}

func (r *Repository) ListByInconsistency(ctx context.Context, inconsistencyID string) ([]ResolutionAttempt, error) {
	var attempts []ResolutionAttempt
	err := r.db.WithContext(ctx).
		Where("inconsistency_id = ?", inconsistencyID).
		Order("created_at asc").Order("attempt_number asc").
		Find(&attempts).Error
	if err != nil {
		return nil, err
	}
	return attempts, nil
}

func (r *Repository) ListByPatient(ctx context.Context, patientID string) ([]ResolutionAttempt, error) {
	var attempts []ResolutionAttempt
	err := r.db.WithContext(ctx).
		Where("patient_id = ?", patientID).
		Order("created_at asc").Order("attempt_number asc").
		Find(&attempts).Error
	if err != nil {
		return nil, err
	}
	return attempts, nil
}

// HasTerminalAttempt reports whether an inconsistency already reached a
// terminal outcome, so re-runs skip it.
func (r *Repository) HasTerminalAttempt(ctx context.Context, inconsistencyID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&ResolutionAttempt{}).
		Where("inconsistency_id = ?", inconsistencyID).
		Where("outcome IN ?", []string{OutcomeResolved, OutcomeEscalated, OutcomeOverridden}).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
