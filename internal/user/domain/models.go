// Package domain contains the persisted user record and the reconciler
// contract that keeps subscription, quota, and entitlement state consistent.
package domain

import (
	"strings"
	"time"

	"github.com/scalehq/entitlements/internal/tier"
	"gorm.io/datatypes"
)

// SubscriptionStatus represents lifecycle states for a user subscription.
type SubscriptionStatus string

const (
	StatusActive    SubscriptionStatus = "active"
	StatusInactive  SubscriptionStatus = "inactive"
	StatusCancelled SubscriptionStatus = "cancelled"
	StatusExpired   SubscriptionStatus = "expired"
	StatusTrial     SubscriptionStatus = "trial"
)

// QuotaResetInterval is the fixed quota window: 30 days from last reset.
const QuotaResetInterval = 30 * 24 * time.Hour

// TrialPeriod is granted on the manual verify-payment path when no
// transaction reference is supplied.
const TrialPeriod = 14 * 24 * time.Hour

// User is the single persisted record per end-user identity. It embeds the
// subscription and quota sub-records; they have no independent lifecycle.
// Users are never hard-deleted, only moved to cancelled/expired.
type User struct {
	ID    string  `gorm:"primaryKey;type:text" json:"userId"`
	Email *string `gorm:"type:text" json:"email,omitempty"`

	Tier                  tier.Tier          `gorm:"type:text;not null" json:"tier"`
	Status                SubscriptionStatus `gorm:"type:text;not null" json:"status"`
	StartDate             time.Time          `gorm:"not null" json:"startDate"`
	EndDate               *time.Time         `gorm:"" json:"endDate,omitempty"`
	RenewalDate           *time.Time         `gorm:"" json:"renewalDate,omitempty"`
	BillingSubscriptionID *string            `gorm:"type:text;index" json:"goDaddySubscriptionId,omitempty"`
	BillingCustomerID     *string            `gorm:"type:text" json:"goDaddyCustomerId,omitempty"`
	TrialEndDate          *time.Time         `gorm:"" json:"trialEndDate,omitempty"`
	IsTrialActive         bool               `gorm:"not null;default:false" json:"isTrialActive"`

	PromptsPerMonth int        `gorm:"not null" json:"promptsPerMonth"`
	PromptsUsed     int        `gorm:"not null;default:0" json:"promptsUsed"`
	ResetDate       time.Time  `gorm:"not null" json:"resetDate"`
	LastResetDate   *time.Time `gorm:"" json:"lastResetDate,omitempty"`

	Features datatypes.JSONSlice[string] `gorm:"type:jsonb" json:"features"`

	ExtensionVersion string    `gorm:"type:text" json:"extensionVersion,omitempty"`
	InstallationID   string    `gorm:"type:text" json:"installationId,omitempty"`
	Source           string    `gorm:"type:text" json:"source,omitempty"`
	LastActiveDate   time.Time `gorm:"not null" json:"lastActiveDate"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"createdAt"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updatedAt"`
}

// TableName sets the database table name.
func (User) TableName() string { return "users" }

// IsEffectivelyActive reports whether the user currently has a usable
// subscription: an active status with no past end date, or a running trial.
func (u *User) IsEffectivelyActive(now time.Time) bool {
	if u.Status == StatusActive && (u.EndDate == nil || u.EndDate.After(now)) {
		return true
	}
	if u.IsTrialActive && u.TrialEndDate != nil && u.TrialEndDate.After(now) {
		return true
	}
	return false
}

// HasFeature reports whether the user's current tier unlocks a feature.
func (u *User) HasFeature(feature string) bool {
	for _, f := range u.Features {
		if f == feature {
			return true
		}
	}
	return false
}

// PromptsRemaining returns the prompts left in the current window,
// or -1 for unlimited tiers.
func (u *User) PromptsRemaining() int {
	if u.PromptsPerMonth == tier.UnlimitedPrompts {
		return tier.UnlimitedPrompts
	}
	remaining := u.PromptsPerMonth - u.PromptsUsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Quota is the wire representation of the user's quota window.
type Quota struct {
	PromptsPerMonth  int        `json:"promptsPerMonth"`
	PromptsUsed      int        `json:"promptsUsed"`
	PromptsRemaining int        `json:"promptsRemaining"`
	ResetDate        time.Time  `json:"resetDate"`
	LastResetDate    *time.Time `json:"lastResetDate,omitempty"`
}

// QuotaSnapshot captures the user's quota window for responses.
func (u *User) QuotaSnapshot() Quota {
	return Quota{
		PromptsPerMonth:  u.PromptsPerMonth,
		PromptsUsed:      u.PromptsUsed,
		PromptsRemaining: u.PromptsRemaining(),
		ResetDate:        u.ResetDate,
		LastResetDate:    u.LastResetDate,
	}
}

// MapProviderStatus translates a billing-provider status string into an
// internal status. Unrecognized values map to inactive.
func MapProviderStatus(raw string) SubscriptionStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "active":
		return StatusActive
	case "cancelled", "canceled":
		return StatusCancelled
	case "expired", "ended":
		return StatusExpired
	case "trial", "trialing":
		return StatusTrial
	default:
		return StatusInactive
	}
}
