package repository

import (
	"context"
	"time"

	usagedomain "github.com/scalehq/entitlements/internal/usage/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() usagedomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, event *usagedomain.UsageEvent) error {
	return db.WithContext(ctx).Create(event).Error
}

func (r *repo) ListByUser(ctx context.Context, db *gorm.DB, q usagedomain.EventQuery) ([]usagedomain.UsageEvent, error) {
	stmt := db.WithContext(ctx).
		Where("user_id = ?", q.UserID).
		Order("timestamp DESC")

	if q.StartDate != nil {
		stmt = stmt.Where("timestamp >= ?", *q.StartDate)
	}
	if q.EndDate != nil {
		stmt = stmt.Where("timestamp <= ?", *q.EndDate)
	}
	if q.Type != "" {
		stmt = stmt.Where("type = ?", q.Type)
	}
	if q.Limit > 0 {
		stmt = stmt.Limit(q.Limit)
	}

	var events []usagedomain.UsageEvent
	if err := stmt.Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (r *repo) DeleteOlderThan(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error) {
	result := db.WithContext(ctx).
		Where("timestamp < ?", cutoff).
		Delete(&usagedomain.UsageEvent{})
	return result.RowsAffected, result.Error
}
