package service

import (
	"context"
	"testing"
	"time"

	"github.com/scalehq/entitlements/internal/clock"
	"github.com/scalehq/entitlements/internal/tier"
	userdomain "github.com/scalehq/entitlements/internal/user/domain"
	"github.com/scalehq/entitlements/internal/user/repository"
	dbpkg "github.com/scalehq/entitlements/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) (userdomain.Service, *clock.FakeClock) {
	t.Helper()

	conn, err := dbpkg.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&userdomain.User{}))

	fake := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	svc := NewService(ServiceParam{
		DB:    conn,
		Log:   zap.NewNop(),
		Clock: fake,
		Repo:  repository.Provide(),
		Tiers: tier.NewResolver(nil),
	})
	return svc, fake
}

func TestEnsureUserCreatesBasicDefaults(t *testing.T) {
	svc, fake := newTestService(t)
	ctx := context.Background()

	user, err := svc.EnsureUser(ctx, userdomain.EnsureUserRequest{UserID: "u1"})
	require.NoError(t, err)

	assert.Equal(t, tier.TierBasic, user.Tier)
	assert.Equal(t, userdomain.StatusActive, user.Status)
	assert.Equal(t, 75, user.PromptsPerMonth)
	assert.Equal(t, 0, user.PromptsUsed)
	assert.Equal(t, fake.Now().Add(userdomain.QuotaResetInterval), user.ResetDate)
	assert.Contains(t, []string(user.Features), tier.FeatureChat)
}

func TestEnsureUserIsIdempotent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.EnsureUser(ctx, userdomain.EnsureUserRequest{UserID: "u1"})
	require.NoError(t, err)

	again, err := svc.EnsureUser(ctx, userdomain.EnsureUserRequest{
		UserID:   "u1",
		Metadata: userdomain.ClientMetadata{ExtensionVersion: "1.2.3"},
	})
	require.NoError(t, err)

	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, first.Tier, again.Tier)
	assert.Equal(t, "1.2.3", again.ExtensionVersion)
}

func TestEnsureUserRejectsEmptyID(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.EnsureUser(context.Background(), userdomain.EnsureUserRequest{UserID: "  "})
	assert.ErrorIs(t, err, userdomain.ErrInvalidUserID)
}

func TestConsumeQuotaExhaustion(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.EnsureUser(ctx, userdomain.EnsureUserRequest{UserID: "u1"})
	require.NoError(t, err)

	for i := 0; i < 75; i++ {
		_, err := svc.ConsumeQuota(ctx, "u1", true)
		require.NoError(t, err, "call %d", i+1)
	}

	user, err := svc.ConsumeQuota(ctx, "u1", true)
	assert.ErrorIs(t, err, userdomain.ErrQuotaExceeded)
	require.NotNil(t, user)
	assert.Equal(t, 75, user.PromptsUsed)
	assert.Equal(t, 0, user.PromptsRemaining())

	// the failed call must not have persisted an overrun
	stored, err := svc.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 75, stored.PromptsUsed)
}

func TestConsumeQuotaUnlimitedNeverFails(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.EnsureUser(ctx, userdomain.EnsureUserRequest{UserID: "u1"})
	require.NoError(t, err)
	_, err = svc.ApplyTierChange(ctx, userdomain.ApplyTierChangeRequest{UserID: "u1", Tier: "mid"})
	require.NoError(t, err)

	for i := 0; i < 200; i++ {
		user, err := svc.ConsumeQuota(ctx, "u1", true)
		require.NoError(t, err)
		assert.Equal(t, tier.UnlimitedPrompts, user.PromptsRemaining())
	}
}

func TestConsumeQuotaUncountedTypeDoesNotConsume(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.EnsureUser(ctx, userdomain.EnsureUserRequest{UserID: "u1"})
	require.NoError(t, err)

	user, err := svc.ConsumeQuota(ctx, "u1", false)
	require.NoError(t, err)
	assert.Equal(t, 0, user.PromptsUsed)
}

func TestQuotaRollover(t *testing.T) {
	svc, fake := newTestService(t)
	ctx := context.Background()

	_, err := svc.EnsureUser(ctx, userdomain.EnsureUserRequest{UserID: "u1"})
	require.NoError(t, err)

	for i := 0; i < 75; i++ {
		_, err := svc.ConsumeQuota(ctx, "u1", true)
		require.NoError(t, err)
	}
	_, err = svc.ConsumeQuota(ctx, "u1", true)
	require.ErrorIs(t, err, userdomain.ErrQuotaExceeded)

	// 31 days later the window rolls over lazily on access
	fake.Advance(31 * 24 * time.Hour)

	user, err := svc.ConsumeQuota(ctx, "u1", true)
	require.NoError(t, err)
	assert.Equal(t, 1, user.PromptsUsed)
	assert.True(t, user.ResetDate.After(fake.Now()))
	require.NotNil(t, user.LastResetDate)
}

func TestQuotaRolloverIdempotent(t *testing.T) {
	svc, fake := newTestService(t)
	ctx := context.Background()

	_, err := svc.EnsureUser(ctx, userdomain.EnsureUserRequest{UserID: "u1"})
	require.NoError(t, err)
	_, err = svc.ConsumeQuota(ctx, "u1", true)
	require.NoError(t, err)

	// inside the window nothing changes
	fake.Advance(time.Hour)
	user, err := svc.EnsureUser(ctx, userdomain.EnsureUserRequest{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, 1, user.PromptsUsed)

	fake.Advance(31 * 24 * time.Hour)
	user, err = svc.EnsureUser(ctx, userdomain.EnsureUserRequest{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, 0, user.PromptsUsed)
	firstReset := user.ResetDate

	// a second access inside the fresh window changes nothing
	user, err = svc.EnsureUser(ctx, userdomain.EnsureUserRequest{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, 0, user.PromptsUsed)
	assert.Equal(t, firstReset, user.ResetDate)
}

func TestApplyTierChangeRewritesEntitlements(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	resolver := tier.NewResolver(nil)

	_, err := svc.EnsureUser(ctx, userdomain.EnsureUserRequest{UserID: "u1"})
	require.NoError(t, err)
	_, err = svc.ConsumeQuota(ctx, "u1", true)
	require.NoError(t, err)

	for _, target := range []tier.Tier{tier.TierMid, tier.TierTop, tier.TierBasic} {
		user, err := svc.ApplyTierChange(ctx, userdomain.ApplyTierChangeRequest{
			UserID: "u1",
			Tier:   string(target),
		})
		require.NoError(t, err)

		policy := resolver.PolicyFor(target)
		assert.Equal(t, target, user.Tier)
		assert.Equal(t, policy.PromptsPerMonth, user.PromptsPerMonth)
		assert.Equal(t, policy.Features, []string(user.Features))
		// promptsUsed survives a tier change
		assert.Equal(t, 1, user.PromptsUsed)
	}
}

func TestApplyTierChangeUnknownTierFallsBackToBasic(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.EnsureUser(ctx, userdomain.EnsureUserRequest{UserID: "u1"})
	require.NoError(t, err)

	user, err := svc.ApplyTierChange(ctx, userdomain.ApplyTierChangeRequest{
		UserID: "u1",
		Tier:   "platinum",
	})
	require.NoError(t, err)
	assert.Equal(t, tier.TierBasic, user.Tier)
	assert.Equal(t, 75, user.PromptsPerMonth)
}

func TestResetQuota(t *testing.T) {
	svc, fake := newTestService(t)
	ctx := context.Background()

	_, err := svc.EnsureUser(ctx, userdomain.EnsureUserRequest{UserID: "u1"})
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		_, err := svc.ConsumeQuota(ctx, "u1", true)
		require.NoError(t, err)
	}

	user, err := svc.ResetQuota(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, user.PromptsUsed)
	assert.Equal(t, fake.Now().Add(userdomain.QuotaResetInterval), user.ResetDate)
}

func TestVerifyPaymentWithTransactionActivates(t *testing.T) {
	svc, fake := newTestService(t)
	ctx := context.Background()

	user, err := svc.VerifyPayment(ctx, userdomain.VerifyPaymentRequest{
		UserID:        "u1",
		Tier:          "mid",
		TransactionID: "txn_123",
	})
	require.NoError(t, err)

	assert.Equal(t, tier.TierMid, user.Tier)
	assert.Equal(t, userdomain.StatusActive, user.Status)
	assert.False(t, user.IsTrialActive)
	require.NotNil(t, user.RenewalDate)
	assert.Equal(t, fake.Now().Add(userdomain.QuotaResetInterval), *user.RenewalDate)
}

func TestVerifyPaymentWithoutTransactionStartsTrial(t *testing.T) {
	svc, fake := newTestService(t)
	ctx := context.Background()

	user, err := svc.VerifyPayment(ctx, userdomain.VerifyPaymentRequest{
		UserID: "u1",
		Tier:   "top",
	})
	require.NoError(t, err)

	assert.Equal(t, tier.TierTop, user.Tier)
	assert.Equal(t, userdomain.StatusInactive, user.Status)
	assert.True(t, user.IsTrialActive)
	require.NotNil(t, user.TrialEndDate)
	assert.Equal(t, fake.Now().Add(userdomain.TrialPeriod), *user.TrialEndDate)
	assert.True(t, user.IsEffectivelyActive(fake.Now()))

	// trial lapses
	fake.Advance(15 * 24 * time.Hour)
	assert.False(t, user.IsEffectivelyActive(fake.Now()))
}

func TestGetUnknownUser(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, userdomain.ErrNotFound)
}
