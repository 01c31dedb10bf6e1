package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, user *User) error
	FindByID(ctx context.Context, db *gorm.DB, id string) (*User, error)
	FindByBillingSubscriptionID(ctx context.Context, db *gorm.DB, subscriptionID string) (*User, error)
	// Save persists the full record. Each reconciler mutation is a single
	// record save; no partial-write rollback is attempted.
	Save(ctx context.Context, db *gorm.DB, user *User) error
}
