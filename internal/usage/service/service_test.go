package service

import (
	"context"
	"testing"
	"time"

	"github.com/scalehq/entitlements/internal/clock"
	"github.com/scalehq/entitlements/internal/tier"
	usagedomain "github.com/scalehq/entitlements/internal/usage/domain"
	"github.com/scalehq/entitlements/internal/usage/repository"
	userdomain "github.com/scalehq/entitlements/internal/user/domain"
	userrepository "github.com/scalehq/entitlements/internal/user/repository"
	userservice "github.com/scalehq/entitlements/internal/user/service"
	dbpkg "github.com/scalehq/entitlements/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestUsageService(t *testing.T) (usagedomain.Service, userdomain.Service, *clock.FakeClock) {
	t.Helper()

	conn, err := dbpkg.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&userdomain.User{}, &usagedomain.UsageEvent{}))

	fake := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	users := userservice.NewService(userservice.ServiceParam{
		DB:    conn,
		Log:   zap.NewNop(),
		Clock: fake,
		Repo:  userrepository.Provide(),
		Tiers: tier.NewResolver(nil),
	})
	svc := NewService(ServiceParam{
		DB:    conn,
		Log:   zap.NewNop(),
		Clock: fake,
		Repo:  repository.Provide(),
		Users: users,
	})
	return svc, users, fake
}

func TestTrackRecordsEventAndConsumesQuota(t *testing.T) {
	svc, users, fake := newTestUsageService(t)
	ctx := context.Background()

	_, err := users.EnsureUser(ctx, userdomain.EnsureUserRequest{UserID: "u1"})
	require.NoError(t, err)

	result, err := svc.Track(ctx, usagedomain.TrackRequest{
		UserID: "u1",
		Type:   usagedomain.EventChat,
		Metadata: usagedomain.EventMetadata{
			ModelName:      "gpt-large",
			TokensUsed:     128,
			ResponseTimeMS: 420,
		},
	})
	require.NoError(t, err)

	require.NotNil(t, result.Event)
	assert.NotEmpty(t, result.Event.ID)
	assert.Equal(t, usagedomain.EventChat, result.Event.Type)
	assert.Equal(t, "chat", result.Event.Feature)
	assert.Equal(t, fake.Now(), result.Event.Timestamp)
	assert.True(t, result.Event.Success)
	assert.Equal(t, 1, result.User.PromptsUsed)
}

func TestTrackPersistsFailureOutcome(t *testing.T) {
	svc, users, _ := newTestUsageService(t)
	ctx := context.Background()

	_, err := users.EnsureUser(ctx, userdomain.EnsureUserRequest{UserID: "u1"})
	require.NoError(t, err)

	failed := false
	result, err := svc.Track(ctx, usagedomain.TrackRequest{
		UserID: "u1",
		Type:   usagedomain.EventChat,
		Metadata: usagedomain.EventMetadata{
			Success:      &failed,
			ErrorMessage: "model timeout",
		},
	})
	require.NoError(t, err)
	assert.False(t, result.Event.Success)

	// Read the event back through Stats so the assertion covers the
	// stored row, not just the in-memory struct.
	resp, err := svc.Stats(ctx, usagedomain.StatsRequest{UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, resp.Events, 1)
	assert.False(t, resp.Events[0].Success)
	assert.Equal(t, "model timeout", resp.Events[0].ErrorMessage)
	assert.InDelta(t, 0.0, resp.Stats.SuccessRate, 0.001)
}

func TestTrackNonQuotaCountedType(t *testing.T) {
	svc, users, _ := newTestUsageService(t)
	ctx := context.Background()

	_, err := users.EnsureUser(ctx, userdomain.EnsureUserRequest{UserID: "u1"})
	require.NoError(t, err)

	result, err := svc.Track(ctx, usagedomain.TrackRequest{
		UserID: "u1",
		Type:   usagedomain.EventCodeCompletion,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, result.User.PromptsUsed)
	assert.Equal(t, "codeCompletion", result.Event.Feature)
}

func TestTrackRejectsUnknownEventType(t *testing.T) {
	svc, _, _ := newTestUsageService(t)

	_, err := svc.Track(context.Background(), usagedomain.TrackRequest{
		UserID: "u1",
		Type:   usagedomain.EventType("telepathy"),
	})
	assert.ErrorIs(t, err, usagedomain.ErrInvalidEventType)
}

func TestTrackUnknownUser(t *testing.T) {
	svc, _, _ := newTestUsageService(t)

	_, err := svc.Track(context.Background(), usagedomain.TrackRequest{
		UserID: "missing",
		Type:   usagedomain.EventChat,
	})
	assert.ErrorIs(t, err, userdomain.ErrNotFound)
}

func TestTrackFeatureNotEntitled(t *testing.T) {
	svc, users, _ := newTestUsageService(t)
	ctx := context.Background()

	_, err := users.EnsureUser(ctx, userdomain.EnsureUserRequest{UserID: "u1"})
	require.NoError(t, err)

	// fine-tuning requires top tier
	_, err = svc.Track(ctx, usagedomain.TrackRequest{
		UserID: "u1",
		Type:   usagedomain.EventFineTuning,
	})
	assert.ErrorIs(t, err, usagedomain.ErrFeatureNotEntitled)

	_, err = users.ApplyTierChange(ctx, userdomain.ApplyTierChangeRequest{UserID: "u1", Tier: "top"})
	require.NoError(t, err)

	result, err := svc.Track(ctx, usagedomain.TrackRequest{
		UserID: "u1",
		Type:   usagedomain.EventFineTuning,
	})
	require.NoError(t, err)
	assert.Equal(t, "fineTuning", result.Event.Feature)
}

func TestTrackQuotaExceededRecordsNoEvent(t *testing.T) {
	svc, users, _ := newTestUsageService(t)
	ctx := context.Background()

	_, err := users.EnsureUser(ctx, userdomain.EnsureUserRequest{UserID: "u1"})
	require.NoError(t, err)

	for i := 0; i < 75; i++ {
		_, err := svc.Track(ctx, usagedomain.TrackRequest{UserID: "u1", Type: usagedomain.EventChat})
		require.NoError(t, err, "track %d", i+1)
	}

	result, err := svc.Track(ctx, usagedomain.TrackRequest{UserID: "u1", Type: usagedomain.EventChat})
	require.ErrorIs(t, err, userdomain.ErrQuotaExceeded)
	require.NotNil(t, result)
	require.NotNil(t, result.User)
	assert.Nil(t, result.Event)
	assert.Equal(t, 0, result.User.PromptsRemaining())

	stats, err := svc.Stats(ctx, usagedomain.StatsRequest{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, int64(75), stats.Stats.TotalEvents)
}

func TestStatsAggregation(t *testing.T) {
	svc, users, fake := newTestUsageService(t)
	ctx := context.Background()

	_, err := users.EnsureUser(ctx, userdomain.EnsureUserRequest{UserID: "u1"})
	require.NoError(t, err)

	track := func(eventType usagedomain.EventType, responseMS int, success bool) {
		t.Helper()
		_, err := svc.Track(ctx, usagedomain.TrackRequest{
			UserID: "u1",
			Type:   eventType,
			Metadata: usagedomain.EventMetadata{
				ResponseTimeMS: responseMS,
				Success:        &success,
			},
		})
		require.NoError(t, err)
	}

	track(usagedomain.EventChat, 100, true)
	track(usagedomain.EventChat, 300, true)
	fake.Advance(24 * time.Hour)
	track(usagedomain.EventCodeCompletion, 0, true)
	track(usagedomain.EventAgent, 200, false)

	resp, err := svc.Stats(ctx, usagedomain.StatsRequest{UserID: "u1"})
	require.NoError(t, err)

	assert.Equal(t, int64(4), resp.Stats.TotalEvents)
	assert.Equal(t, int64(2), resp.Stats.EventsByType["chat"])
	assert.Equal(t, int64(1), resp.Stats.EventsByType["agent"])
	assert.Equal(t, int64(2), resp.Stats.EventsByFeature["chat"])
	assert.Len(t, resp.Stats.EventsByDay, 2)
	// zero response times are excluded from the average
	assert.InDelta(t, 200.0, resp.Stats.AverageResponseTime, 0.001)
	assert.InDelta(t, 0.75, resp.Stats.SuccessRate, 0.001)
	assert.Len(t, resp.Events, 4)
}

func TestStatsFilters(t *testing.T) {
	svc, users, fake := newTestUsageService(t)
	ctx := context.Background()

	_, err := users.EnsureUser(ctx, userdomain.EnsureUserRequest{UserID: "u1"})
	require.NoError(t, err)

	_, err = svc.Track(ctx, usagedomain.TrackRequest{UserID: "u1", Type: usagedomain.EventChat})
	require.NoError(t, err)
	cutoff := fake.Now().Add(time.Hour)
	fake.Advance(2 * time.Hour)
	_, err = svc.Track(ctx, usagedomain.TrackRequest{UserID: "u1", Type: usagedomain.EventAgent})
	require.NoError(t, err)

	resp, err := svc.Stats(ctx, usagedomain.StatsRequest{UserID: "u1", StartDate: &cutoff})
	require.NoError(t, err)
	assert.Equal(t, int64(1), resp.Stats.TotalEvents)
	assert.Equal(t, int64(1), resp.Stats.EventsByType["agent"])

	resp, err = svc.Stats(ctx, usagedomain.StatsRequest{UserID: "u1", Type: "chat"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), resp.Stats.TotalEvents)

	_, err = svc.Stats(ctx, usagedomain.StatsRequest{UserID: "u1", Type: "bogus"})
	assert.ErrorIs(t, err, usagedomain.ErrInvalidEventType)
}

func TestPurgeExpired(t *testing.T) {
	svc, users, fake := newTestUsageService(t)
	ctx := context.Background()

	_, err := users.EnsureUser(ctx, userdomain.EnsureUserRequest{UserID: "u1"})
	require.NoError(t, err)

	_, err = svc.Track(ctx, usagedomain.TrackRequest{UserID: "u1", Type: usagedomain.EventChat})
	require.NoError(t, err)

	fake.Advance(366 * 24 * time.Hour)
	_, err = svc.Track(ctx, usagedomain.TrackRequest{UserID: "u1", Type: usagedomain.EventChat})
	require.NoError(t, err)

	deleted, err := svc.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	resp, err := svc.Stats(ctx, usagedomain.StatsRequest{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), resp.Stats.TotalEvents)
}
