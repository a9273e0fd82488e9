package qa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrNotFound = errors.New("qa report not found")

// StoredReport is the persisted form: one row per patient, overwritten on
// each regeneration.
type StoredReport struct {
	ID          string         `json:"id" gorm:"primaryKey;column:id"`
	PatientID   string         `json:"patient_id" gorm:"column:patient_id;uniqueIndex"`
	Payload     datatypes.JSON `json:"payload" gorm:"column:payload"`
	HumanReview bool           `json:"human_review" gorm:"column:human_review;index"`
	GeneratedAt time.Time      `json:"generated_at" gorm:"column:generated_at"`
}

func (StoredReport) TableName() string { return "qa_reports" }

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&StoredReport{})
}

// Save upserts the patient's report.
func (r *Repository) Save(ctx context.Context, report *Report) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encoding qa report: %w", err)
	}
	row := &StoredReport{
		ID:          uuid.NewString(),
		PatientID:   report.PatientID,
		Payload:     payload,
		HumanReview: report.RequiresHumanReview,
		GeneratedAt: report.GeneratedAt,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "patient_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload", "human_review", "generated_at"}),
	}).Create(row).Error
}

func (r *Repository) Get(ctx context.Context, patientID string) (*Report, error) {
	var row StoredReport
	err := r.db.WithContext(ctx).First(&row, "patient_id = ?", patientID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var report Report
	if err := json.Unmarshal(row.Payload, &report); err != nil {
		return nil, fmt.Errorf("decoding qa report: %w", err)
	}
	return &report, nil
}

// ListNeedingReview returns patient ids whose latest report flags human
// review, oldest first.
func (r *Repository) ListNeedingReview(ctx context.Context, limit int) ([]string, error) {
	var rows []StoredReport
	query := r.db.WithContext(ctx).
		Where("human_review = ?", true).
		Order("generated_at asc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.PatientID)
	}
	return ids, nil
}
