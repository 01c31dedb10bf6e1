package service

import (
	"context"
	"strings"
	"time"

	"github.com/scalehq/entitlements/internal/clock"
	"github.com/scalehq/entitlements/internal/tier"
	userdomain "github.com/scalehq/entitlements/internal/user/domain"
	"github.com/scalehq/entitlements/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
	repo  userdomain.Repository
	tiers *tier.Resolver
}

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
	Repo  userdomain.Repository
	Tiers *tier.Resolver
}

func NewService(p ServiceParam) userdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("user.service"),
		clock: p.Clock,
		repo:  p.Repo,
		tiers: p.Tiers,
	}
}

// EnsureUser implements domain.Service.
func (s *Service) EnsureUser(ctx context.Context, req userdomain.EnsureUserRequest) (*userdomain.User, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return nil, userdomain.ErrInvalidUserID
	}

	now := s.clock.Now()

	user, err := s.repo.FindByID(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		user = s.newUser(userID, now)
		applyMetadata(user, req.Metadata, now)
		if err := s.repo.Insert(ctx, s.db, user); err != nil {
			if !db.IsDuplicateKeyErr(err) {
				return nil, err
			}
			// lost a creation race; the winner's record is authoritative
			user, err = s.repo.FindByID(ctx, s.db, userID)
			if err != nil {
				return nil, err
			}
			if user == nil {
				return nil, userdomain.ErrNotFound
			}
		} else {
			s.log.Info("user created",
				zap.String("user_id", userID),
				zap.String("tier", string(user.Tier)),
			)
			return user, nil
		}
	}

	applyMetadata(user, req.Metadata, now)
	s.maybeRolloverQuota(user)
	if err := s.repo.Save(ctx, s.db, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Get implements domain.Service.
func (s *Service) Get(ctx context.Context, userID string) (*userdomain.User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, userdomain.ErrInvalidUserID
	}
	user, err := s.repo.FindByID(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, userdomain.ErrNotFound
	}
	return user, nil
}

// GetByBillingSubscriptionID implements domain.Service.
func (s *Service) GetByBillingSubscriptionID(ctx context.Context, subscriptionID string) (*userdomain.User, error) {
	subscriptionID = strings.TrimSpace(subscriptionID)
	if subscriptionID == "" {
		return nil, userdomain.ErrNotFound
	}
	user, err := s.repo.FindByBillingSubscriptionID(ctx, s.db, subscriptionID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, userdomain.ErrNotFound
	}
	return user, nil
}

// ConsumeQuota implements domain.Service. The returned user is non-nil even
// on ErrQuotaExceeded so callers can report the exhausted window.
func (s *Service) ConsumeQuota(ctx context.Context, userID string, counted bool) (*userdomain.User, error) {
	user, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	s.maybeRolloverQuota(user)
	user.LastActiveDate = now

	if counted {
		if user.PromptsPerMonth != tier.UnlimitedPrompts && user.PromptsUsed >= user.PromptsPerMonth {
			// persist the rollover/last-active touch, never the overrun
			if saveErr := s.repo.Save(ctx, s.db, user); saveErr != nil {
				return nil, saveErr
			}
			return user, userdomain.ErrQuotaExceeded
		}
		user.PromptsUsed++
	}

	if err := s.repo.Save(ctx, s.db, user); err != nil {
		return nil, err
	}
	return user, nil
}

// ApplyTierChange implements domain.Service. promptsUsed survives a tier
// change; only a rollover or explicit reset clears it.
func (s *Service) ApplyTierChange(ctx context.Context, req userdomain.ApplyTierChangeRequest) (*userdomain.User, error) {
	user, err := s.Get(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	t, ok := tier.Parse(req.Tier)
	if !ok {
		s.log.Warn("unknown tier value, falling back to basic",
			zap.String("user_id", user.ID),
			zap.String("tier", req.Tier),
		)
	}
	s.applyPolicy(user, t)
	if req.Status != "" {
		user.Status = req.Status
	}
	if req.BillingSubscriptionID != nil {
		user.BillingSubscriptionID = req.BillingSubscriptionID
	}
	if req.BillingCustomerID != nil {
		user.BillingCustomerID = req.BillingCustomerID
	}

	if err := s.repo.Save(ctx, s.db, user); err != nil {
		return nil, err
	}
	return user, nil
}

// ResetQuota implements domain.Service.
func (s *Service) ResetQuota(ctx context.Context, userID string) (*userdomain.User, error) {
	user, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	user.PromptsUsed = 0
	user.LastResetDate = &now
	user.ResetDate = now.Add(userdomain.QuotaResetInterval)

	if err := s.repo.Save(ctx, s.db, user); err != nil {
		return nil, err
	}
	return user, nil
}

// VerifyPayment implements domain.Service. With a transaction reference the
// subscription activates immediately; without one the user enters a trial
// that a later payment.succeeded webhook converts to active.
func (s *Service) VerifyPayment(ctx context.Context, req userdomain.VerifyPaymentRequest) (*userdomain.User, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return nil, userdomain.ErrInvalidUserID
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

	t, _ := tier.Parse(req.Tier)
	s.applyPolicy(user, t)
	if req.Email != nil {
		user.Email = req.Email
	}

	if strings.TrimSpace(req.TransactionID) != "" {
		renewal := now.Add(userdomain.QuotaResetInterval)
		user.Status = userdomain.StatusActive
		user.RenewalDate = &renewal
		user.IsTrialActive = false
	} else {
		trialEnd := now.Add(userdomain.TrialPeriod)
		user.Status = userdomain.StatusInactive
		user.IsTrialActive = true
		user.TrialEndDate = &trialEnd
	}

	if created {
		if err := s.repo.Insert(ctx, s.db, user); err != nil {
			return nil, err
		}
	} else {
		if err := s.repo.Save(ctx, s.db, user); err != nil {
			return nil, err
		}
	}
	return user, nil
}

// newUser builds a fresh basic-tier record with policy defaults.
func (s *Service) newUser(userID string, now time.Time) *userdomain.User {
	policy := s.tiers.PolicyFor(tier.TierBasic)
	return &userdomain.User{
		ID:              userID,
		Tier:            tier.TierBasic,
		Status:          userdomain.StatusActive,
		StartDate:       now,
		PromptsPerMonth: policy.PromptsPerMonth,
		PromptsUsed:     0,
		ResetDate:       now.Add(userdomain.QuotaResetInterval),
		Features:        datatypes.NewJSONSlice(policy.Features),
		LastActiveDate:  now,
	}
}

// applyPolicy rewrites the entitlement fields from the tier policy so they
// can never drift from the tier that produced them.
func (s *Service) applyPolicy(user *userdomain.User, t tier.Tier) {
	policy := s.tiers.PolicyFor(t)
	user.Tier = t
	user.PromptsPerMonth = policy.PromptsPerMonth
	user.Features = datatypes.NewJSONSlice(policy.Features)
}

// maybeRolloverQuota starts a fresh 30-day window once the reset date has
// passed. Idempotent: a second call inside the new window changes nothing.
func (s *Service) maybeRolloverQuota(user *userdomain.User) bool {
	now := s.clock.Now()
	if now.Before(user.ResetDate) {
		return false
	}
	user.PromptsUsed = 0
	user.LastResetDate = &now
	user.ResetDate = now.Add(userdomain.QuotaResetInterval)
	return true
}

func applyMetadata(user *userdomain.User, meta userdomain.ClientMetadata, now time.Time) {
	if v := strings.TrimSpace(meta.ExtensionVersion); v != "" {
		user.ExtensionVersion = v
	}
	if v := strings.TrimSpace(meta.InstallationID); v != "" {
		user.InstallationID = v
	}
	if v := strings.TrimSpace(meta.Source); v != "" {
		user.Source = v
	}
	if meta.Email != nil {
		user.Email = meta.Email
	}
	user.LastActiveDate = now
}
