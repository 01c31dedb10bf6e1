package service

import (
	"context"
	"strings"

	"github.com/scalehq/entitlements/internal/tier"
	userdomain "github.com/scalehq/entitlements/internal/user/domain"
	"go.uber.org/zap"
)

// ApplyWebhookEvent implements domain.Service. Each delivery is processed
// at-most-once per call; failures are logged and surfaced, not retried —
// redelivery is the billing provider's responsibility.
func (s *Service) ApplyWebhookEvent(ctx context.Context, ev userdomain.WebhookEvent) (*userdomain.User, error) {
	switch ev.Kind {
	case userdomain.WebhookSubscriptionCreated:
		return s.onSubscriptionCreated(ctx, ev)
	case userdomain.WebhookSubscriptionUpdated:
		return s.onSubscriptionUpdated(ctx, ev)
	case userdomain.WebhookSubscriptionCancelled:
		return s.onSubscriptionCancelled(ctx, ev)
	case userdomain.WebhookSubscriptionExpired:
		return s.onSubscriptionExpired(ctx, ev)
	case userdomain.WebhookPaymentSucceeded:
		return s.onPaymentSucceeded(ctx, ev)
	case userdomain.WebhookPaymentFailed:
		return s.onPaymentFailed(ctx, ev)
	default:
		return nil, userdomain.ErrUnknownWebhookEvent
	}
}

func (s *Service) onSubscriptionCreated(ctx context.Context, ev userdomain.WebhookEvent) (*userdomain.User, error) {
	userID := strings.TrimSpace(ev.UserRef)
	if userID == "" {
		return nil, userdomain.ErrMissingUserReference
	}

	now := s.clock.Now()
	user, err := s.repo.FindByID(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	created := false
	if user == nil {
		user = s.newUser(userID, now)
		created = true
	}

	s.applyPolicy(user, s.tierFromPlan(ev.PlanID, userID))
	user.Status = userdomain.StatusActive
	user.StartDate = now
	user.IsTrialActive = false
	if ev.SubscriptionID != "" {
		subID := ev.SubscriptionID
		user.BillingSubscriptionID = &subID
	}
	if ev.CustomerID != "" {
		custID := ev.CustomerID
		user.BillingCustomerID = &custID
	}
	if email := strings.TrimSpace(ev.Email); email != "" {
		user.Email = &email
	}

	if created {
		err = s.repo.Insert(ctx, s.db, user)
	} else {
		err = s.repo.Save(ctx, s.db, user)
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *Service) onSubscriptionUpdated(ctx context.Context, ev userdomain.WebhookEvent) (*userdomain.User, error) {
	user, err := s.GetByBillingSubscriptionID(ctx, ev.SubscriptionID)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(ev.PlanID) != "" {
		s.applyPolicy(user, s.tierFromPlan(ev.PlanID, user.ID))
	}
	if strings.TrimSpace(ev.Status) != "" {
		user.Status = userdomain.MapProviderStatus(ev.Status)
	}

	if err := s.repo.Save(ctx, s.db, user); err != nil {
		return nil, err
	}
	return user, nil
}

// onSubscriptionCancelled marks the record cancelled without a tier
// downgrade; access runs out with the end date.
func (s *Service) onSubscriptionCancelled(ctx context.Context, ev userdomain.WebhookEvent) (*userdomain.User, error) {
	user, err := s.GetByBillingSubscriptionID(ctx, ev.SubscriptionID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	user.Status = userdomain.StatusCancelled
	user.EndDate = &now

	if err := s.repo.Save(ctx, s.db, user); err != nil {
		return nil, err
	}
	return user, nil
}

// onSubscriptionExpired is the only transition that downgrades: the record
// returns to basic with policy defaults.
func (s *Service) onSubscriptionExpired(ctx context.Context, ev userdomain.WebhookEvent) (*userdomain.User, error) {
	user, err := s.GetByBillingSubscriptionID(ctx, ev.SubscriptionID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	user.Status = userdomain.StatusExpired
	user.EndDate = &now
	s.applyPolicy(user, tier.TierBasic)

	if err := s.repo.Save(ctx, s.db, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *Service) onPaymentSucceeded(ctx context.Context, ev userdomain.WebhookEvent) (*userdomain.User, error) {
	user, err := s.GetByBillingSubscriptionID(ctx, ev.SubscriptionID)
	if err != nil {
		return nil, err
	}

	renewal := s.clock.Now().Add(userdomain.QuotaResetInterval)
	user.Status = userdomain.StatusActive
	user.RenewalDate = &renewal
	user.IsTrialActive = false

	if err := s.repo.Save(ctx, s.db, user); err != nil {
		return nil, err
	}
	return user, nil
}

// onPaymentFailed enters a grace period: status drops to inactive but tier
// and quota counters are untouched.
func (s *Service) onPaymentFailed(ctx context.Context, ev userdomain.WebhookEvent) (*userdomain.User, error) {
	user, err := s.GetByBillingSubscriptionID(ctx, ev.SubscriptionID)
	if err != nil {
		return nil, err
	}

	user.Status = userdomain.StatusInactive

	if err := s.repo.Save(ctx, s.db, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *Service) tierFromPlan(planID, userID string) tier.Tier {
	t, ok := tier.FromPlanID(planID)
	if !ok {
		s.log.Warn("unrecognized plan id, falling back to basic",
			zap.String("user_id", userID),
			zap.String("plan_id", planID),
		)
	}
	return t
}
