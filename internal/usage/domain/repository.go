package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// EventQuery filters the per-user event listing.
type EventQuery struct {
	UserID    string
	StartDate *time.Time
	EndDate   *time.Time
	Type      EventType
	Limit     int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, event *UsageEvent) error
	ListByUser(ctx context.Context, db *gorm.DB, q EventQuery) ([]UsageEvent, error)
	DeleteOlderThan(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error)
}
