package server

import (
	"time"

	"github.com/scalehq/entitlements/internal/tier"
	userdomain "github.com/scalehq/entitlements/internal/user/domain"
)

// userView is the wire shape for a user record across all endpoints.
type userView struct {
	UserID                string                        `json:"userId"`
	Email                 *string                       `json:"email,omitempty"`
	Tier                  tier.Tier                     `json:"tier"`
	Status                userdomain.SubscriptionStatus `json:"status"`
	Features              []string                      `json:"features"`
	StartDate             time.Time                     `json:"startDate"`
	EndDate               *time.Time                    `json:"endDate,omitempty"`
	RenewalDate           *time.Time                    `json:"renewalDate,omitempty"`
	IsTrialActive         bool                          `json:"isTrialActive"`
	TrialEndDate          *time.Time                    `json:"trialEndDate,omitempty"`
	BillingSubscriptionID *string                       `json:"goDaddySubscriptionId,omitempty"`
	UsageQuota            userdomain.Quota              `json:"usageQuota"`
}

func viewOf(u *userdomain.User) userView {
	return userView{
		UserID:                u.ID,
		Email:                 u.Email,
		Tier:                  u.Tier,
		Status:                u.Status,
		Features:              append([]string(nil), u.Features...),
		StartDate:             u.StartDate,
		EndDate:               u.EndDate,
		RenewalDate:           u.RenewalDate,
		IsTrialActive:         u.IsTrialActive,
		TrialEndDate:          u.TrialEndDate,
		BillingSubscriptionID: u.BillingSubscriptionID,
		UsageQuota:            u.QuotaSnapshot(),
	}
}
