// Package domain contains the billing webhook intake: signature
// verification, payload normalization, and the processed-event log used
// to deduplicate provider retries.
package domain

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// DeliveryStatus records the outcome of one webhook delivery.
type DeliveryStatus string

const (
	DeliveryProcessed DeliveryStatus = "processed"
	DeliveryDuplicate DeliveryStatus = "duplicate"
	DeliveryFailed    DeliveryStatus = "failed"
)

// WebhookRecord is one received provider event. ProviderEventID carries
// the provider's own event identifier; a unique index on it makes retry
// deliveries idempotent.
type WebhookRecord struct {
	ID              int64          `gorm:"primaryKey;autoIncrement:false" json:"id"`
	ProviderEventID string         `gorm:"type:text;not null;uniqueIndex" json:"providerEventId"`
	EventType       string         `gorm:"type:text;not null" json:"eventType"`
	SubscriptionID  string         `gorm:"type:text;index" json:"subscriptionId"`
	Status          DeliveryStatus `gorm:"type:text;not null" json:"status"`
	Error           string         `gorm:"type:text" json:"error,omitempty"`
	ReceivedAt      time.Time      `gorm:"not null" json:"receivedAt"`
}

// TableName sets the database table name.
func (WebhookRecord) TableName() string { return "webhook_events" }

type Repository interface {
	// Save inserts or updates by primary key.
	Save(ctx context.Context, db *gorm.DB, record *WebhookRecord) error
	FindByProviderEventID(ctx context.Context, db *gorm.DB, providerEventID string) (*WebhookRecord, error)
}

// Service processes one raw webhook delivery end to end.
type Service interface {
	// Process verifies the signature against the raw body, then parses,
	// deduplicates, and applies the event. Signature failures are returned
	// before the body is ever parsed.
	Process(ctx context.Context, signature string, body []byte) error
}

var (
	ErrSignatureMismatch = errors.New("invalid_signature")
	ErrMalformedPayload  = errors.New("malformed_payload")
)
