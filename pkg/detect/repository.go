package detect

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrNotFound = errors.New("inconsistency not found")

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&InconsistencyRecord{})
}

// SaveAll persists a detector run idempotently: records whose fingerprint is
// already stored are skipped, so repeated runs on unchanged data leave the
// table unchanged. Returns the stored rows (existing ids win over new ones).
func (r *Repository) SaveAll(ctx context.Context, records []InconsistencyRecord) ([]InconsistencyRecord, error) {
	stored := make([]InconsistencyRecord, 0, len(records))
	for _, record := range records {
		if err := r.db.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "fingerprint"}},
				DoNothing: true,
			}).
			Create(&record).Error; err != nil {
			return nil, err
		}

		var row InconsistencyRecord
		if err := r.db.WithContext(ctx).
			First(&row, "fingerprint = ?", record.Fingerprint).Error; err != nil {
			return nil, err
		}
		stored = append(stored, row)
	}
	return stored, nil
}

func (r *Repository) ListByPatient(ctx context.Context, patientID string) ([]InconsistencyRecord, error) {
	var records []InconsistencyRecord
	err := r.db.WithContext(ctx).
		Where("patient_id = ?", patientID).
		Order("detected_at asc").Order("fingerprint asc").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (r *Repository) Get(ctx context.Context, id string) (*InconsistencyRecord, error) {
	var record InconsistencyRecord
	err := r.db.WithContext(ctx).First(&record, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &record, nil
}
