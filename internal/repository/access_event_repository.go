package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/SylvanaMarinePurnomo/PlateTrack/internal/domain/anpr"
)

type AccessEventRepository struct {
	db *gorm.DB
}

func NewAccessEventRepository(db *gorm.DB) *AccessEventRepository {
	return &AccessEventRepository{db: db}
}

type AccessEvent struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	Source       string    `gorm:"not null"`
	Mode         string    `gorm:"not null"`
	SessionID    *string
	Status       string `gorm:"not null"`
	PlateText    string `gorm:"not null"`
	RawText      *string
	Confidence   float64 `gorm:"not null"`
	AccessStatus string  `gorm:"not null"`
	Distance     *int
	Detections   datatypes.JSON `gorm:"type:jsonb"`
	ProcessedAt  time.Time      `gorm:"not null"`
	CreatedAt    time.Time
}

func (AccessEvent) TableName() string {
	return "access_events"
}

type EventFilter struct {
	Plate        *string
	Status       *string
	AccessStatus *string
	From         *time.Time
	To           *time.Time
	Limit        int
	Offset       int
}

func (r *AccessEventRepository) CreateAccessEvent(ctx context.Context, event *anpr.AccessEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.ProcessedAt.IsZero() {
		event.ProcessedAt = time.Now().UTC()
	}

	dbEvent := AccessEvent{
		ID:           event.ID,
		Source:       string(event.Source),
		Mode:         string(event.Mode),
		Status:       string(event.Status),
		PlateText:    event.PlateText,
		Confidence:   event.Confidence,
		AccessStatus: string(event.AccessStatus),
		Distance:     event.Distance,
		ProcessedAt:  event.ProcessedAt,
		CreatedAt:    time.Now().UTC(),
	}

	if event.SessionID != "" {
		dbEvent.SessionID = &event.SessionID
	}
	if event.RawText != "" {
		dbEvent.RawText = &event.RawText
	}
	if len(event.Detections) > 0 {
		raw, err := json.Marshal(event.Detections)
		if err != nil {
			return fmt.Errorf("failed to encode detections: %w", err)
		}
		dbEvent.Detections = datatypes.JSON(raw)
	}

	return r.db.WithContext(ctx).Create(&dbEvent).Error
}

func (r *AccessEventRepository) FindEvents(ctx context.Context, f EventFilter) ([]AccessEvent, error) {
	query := r.db.WithContext(ctx).Model(&AccessEvent{})

	if f.Plate != nil {
		query = query.Where("plate_text = ?", *f.Plate)
	}
	if f.Status != nil {
		query = query.Where("status = ?", *f.Status)
	}
	if f.AccessStatus != nil {
		query = query.Where("access_status = ?", *f.AccessStatus)
	}
	if f.From != nil {
		query = query.Where("processed_at >= ?", *f.From)
	}
	if f.To != nil {
		query = query.Where("processed_at <= ?", *f.To)
	}

	query = query.Order("processed_at DESC")

	if f.Limit > 0 {
		query = query.Limit(min(f.Limit, 100))
	}
	if f.Offset > 0 {
		query = query.Offset(f.Offset)
	}

	var events []AccessEvent
	err := query.Find(&events).Error
	return events, err
}

func (r *AccessEventRepository) DeleteOldEvents(ctx context.Context, days int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	res := r.db.WithContext(ctx).
		Where("processed_at < ?", cutoff).
		Delete(&AccessEvent{})
	return res.RowsAffected, res.Error
}

type StatusCount struct {
	AccessStatus string
	Count        int64
}

func (r *AccessEventRepository) CountByAccessStatus(ctx context.Context, since time.Time) ([]StatusCount, error) {
	var counts []StatusCount
	err := r.db.WithContext(ctx).
		Model(&AccessEvent{}).
		Select("access_status, count(*) as count").
		Where("processed_at >= ?", since).
		Group("access_status").
		Order("access_status").
		Scan(&counts).Error
	return counts, err
}
