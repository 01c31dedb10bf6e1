// Package domain defines the outbound billing-provider contract. The
// provider is the system of record for subscriptions; this service only
// reads and requests changes, it never stores provider state.
package domain

import (
	"context"
	"errors"
	"time"
)

// SubscriptionInfo is the provider's view of one subscription.
type SubscriptionInfo struct {
	SubscriptionID   string     `json:"subscriptionId"`
	CustomerID       string     `json:"customerId"`
	PlanID           string     `json:"planId"`
	Status           string     `json:"status"`
	CurrentPeriodEnd *time.Time `json:"currentPeriodEnd,omitempty"`
}

// CheckoutSession points the client at the provider's hosted purchase page.
type CheckoutSession struct {
	URL  string `json:"purchaseUrl"`
	Tier string `json:"tier"`
}

type Service interface {
	// VerifySubscription fetches the provider's current state for a
	// subscription. Returns ErrSubscriptionNotFound for unknown IDs.
	VerifySubscription(ctx context.Context, subscriptionID string) (*SubscriptionInfo, error)

	// CancelSubscription requests cancellation at the provider.
	CancelSubscription(ctx context.Context, subscriptionID string) error

	// UpdateSubscriptionPlan moves a subscription to a different plan.
	UpdateSubscriptionPlan(ctx context.Context, subscriptionID, planID string) (*SubscriptionInfo, error)

	// CreateCheckoutSession builds the hosted checkout URL for a tier
	// purchase, tagged with the user reference the webhook echoes back.
	CreateCheckoutSession(ctx context.Context, userID, tier, planID string) (*CheckoutSession, error)
}

var (
	ErrProvider             = errors.New("billing_provider_error")
	ErrSubscriptionNotFound = errors.New("subscription_not_found")
	ErrNotConfigured        = errors.New("billing_not_configured")
)
