package repository

import (
	"context"
	"errors"

	webhookdomain "github.com/scalehq/entitlements/internal/webhook/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() webhookdomain.Repository {
	return &repo{}
}

func (r *repo) Save(ctx context.Context, db *gorm.DB, record *webhookdomain.WebhookRecord) error {
	return db.WithContext(ctx).Save(record).Error
}

func (r *repo) FindByProviderEventID(ctx context.Context, db *gorm.DB, providerEventID string) (*webhookdomain.WebhookRecord, error) {
	var record webhookdomain.WebhookRecord
	err := db.WithContext(ctx).
		Where("provider_event_id = ?", providerEventID).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}
