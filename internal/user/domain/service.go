package domain

import (
	"context"
	"errors"
)

// ClientMetadata carries request-scoped client fields updated on every call.
type ClientMetadata struct {
	ExtensionVersion string
	InstallationID   string
	Source           string
	Email            *string
}

type EnsureUserRequest struct {
	UserID   string
	Metadata ClientMetadata
}

type ApplyTierChangeRequest struct {
	UserID                string
	Tier                  string
	Status                SubscriptionStatus
	BillingSubscriptionID *string
	BillingCustomerID     *string
}

type VerifyPaymentRequest struct {
	UserID        string
	Tier          string
	TransactionID string
	Email         *string
}

// WebhookEventKind enumerates normalized billing-provider event kinds.
type WebhookEventKind string

const (
	WebhookSubscriptionCreated   WebhookEventKind = "subscription.created"
	WebhookSubscriptionUpdated   WebhookEventKind = "subscription.updated"
	WebhookSubscriptionCancelled WebhookEventKind = "subscription.cancelled"
	WebhookSubscriptionExpired   WebhookEventKind = "subscription.expired"
	WebhookPaymentSucceeded      WebhookEventKind = "payment.succeeded"
	WebhookPaymentFailed         WebhookEventKind = "payment.failed"
)

// WebhookEvent is the normalized form of a billing-provider notification,
// decoupled from the provider's payload shape.
type WebhookEvent struct {
	Kind           WebhookEventKind
	SubscriptionID string
	CustomerID     string
	PlanID         string
	Status         string
	Email          string
	UserRef        string // payload.metadata.userId, set on created events
}

// Service is the quota/entitlement reconciler: every state transition on a
// user record flows through it so quota counters, reset dates, feature
// lists, and subscription status stay consistent across entry points.
type Service interface {
	// EnsureUser returns the existing record or creates one with basic-tier
	// defaults. Repeated calls only refresh metadata and lastActiveDate.
	EnsureUser(ctx context.Context, req EnsureUserRequest) (*User, error)

	Get(ctx context.Context, userID string) (*User, error)
	GetByBillingSubscriptionID(ctx context.Context, subscriptionID string) (*User, error)

	// ConsumeQuota rolls the quota window over if due, then consumes one
	// prompt when counted is true. Fails with ErrQuotaExceeded once a
	// limited window is exhausted; lastActiveDate is updated either way.
	ConsumeQuota(ctx context.Context, userID string, counted bool) (*User, error)

	// ApplyTierChange sets tier and status, then rewrites features and
	// promptsPerMonth from the tier policy. promptsUsed is untouched.
	ApplyTierChange(ctx context.Context, req ApplyTierChangeRequest) (*User, error)

	// ApplyWebhookEvent dispatches one normalized billing event into the
	// corresponding record transition.
	ApplyWebhookEvent(ctx context.Context, ev WebhookEvent) (*User, error)

	// ResetQuota zeroes the current window and starts a fresh one.
	ResetQuota(ctx context.Context, userID string) (*User, error)

	// VerifyPayment applies a client-reported purchase: with a transaction
	// reference the subscription activates; without one a trial starts.
	VerifyPayment(ctx context.Context, req VerifyPaymentRequest) (*User, error)
}

var (
	ErrInvalidUserID        = errors.New("invalid_user_id")
	ErrNotFound             = errors.New("user_not_found")
	ErrQuotaExceeded        = errors.New("quota_exceeded")
	ErrMissingUserReference = errors.New("missing_user_reference")
	ErrUnknownWebhookEvent  = errors.New("unknown_webhook_event")
)
