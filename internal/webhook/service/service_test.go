package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"

	"github.com/scalehq/entitlements/internal/clock"
	"github.com/scalehq/entitlements/internal/config"
	"github.com/scalehq/entitlements/internal/tier"
	userdomain "github.com/scalehq/entitlements/internal/user/domain"
	userrepository "github.com/scalehq/entitlements/internal/user/repository"
	userservice "github.com/scalehq/entitlements/internal/user/service"
	webhookdomain "github.com/scalehq/entitlements/internal/webhook/domain"
	"github.com/scalehq/entitlements/internal/webhook/repository"
	dbpkg "github.com/scalehq/entitlements/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const testSecret = "whsec_test"

func newTestWebhookService(t *testing.T) (webhookdomain.Service, userdomain.Service, *gorm.DB) {
	t.Helper()

	conn, err := dbpkg.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&userdomain.User{}, &webhookdomain.WebhookRecord{}))

	fake := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	users := userservice.NewService(userservice.ServiceParam{
		DB:    conn,
		Log:   zap.NewNop(),
		Clock: fake,
		Repo:  userrepository.Provide(),
		Tiers: tier.NewResolver(nil),
	})

	svc, err := NewService(ServiceParam{
		DB:     conn,
		Log:    zap.NewNop(),
		Clock:  fake,
		Config: config.Config{WebhookSecret: testSecret},
		Repo:   repository.Provide(),
		Users:  users,
	})
	require.NoError(t, err)
	return svc, users, conn
}

func sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestProcessValidSignature(t *testing.T) {
	svc, users, _ := newTestWebhookService(t)
	body := []byte(`{
		"id": "evt_1",
		"type": "subscription.created",
		"data": {
			"subscription": {"id": "sub_1", "customerId": "cust_1", "planId": "scale-developer", "status": "active"},
			"metadata": {"userId": "u1"},
			"email": "dev@example.com"
		}
	}`)

	err := svc.Process(context.Background(), sign(body), body)
	require.NoError(t, err)

	user, err := users.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, tier.TierMid, user.Tier)
	assert.Equal(t, tier.UnlimitedPrompts, user.PromptsPerMonth)
}

func TestProcessRejectsMutatedPayload(t *testing.T) {
	svc, _, _ := newTestWebhookService(t)
	body := []byte(`{"id":"evt_1","type":"subscription.created","data":{"metadata":{"userId":"u1"}}}`)
	signature := sign(body)

	for i := range body {
		mutated := append([]byte(nil), body...)
		mutated[i] ^= 0x01

		err := svc.Process(context.Background(), signature, mutated)
		assert.ErrorIs(t, err, webhookdomain.ErrSignatureMismatch, "mutated byte %d", i)
	}
}

func TestProcessRejectsBadSignatureEncoding(t *testing.T) {
	svc, _, _ := newTestWebhookService(t)
	body := []byte(`{}`)

	err := svc.Process(context.Background(), "not-hex!", body)
	assert.ErrorIs(t, err, webhookdomain.ErrSignatureMismatch)

	err = svc.Process(context.Background(), "", body)
	assert.ErrorIs(t, err, webhookdomain.ErrSignatureMismatch)
}

func TestProcessRejectsWhenSecretUnset(t *testing.T) {
	conn, err := dbpkg.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&userdomain.User{}, &webhookdomain.WebhookRecord{}))

	svc, err := NewService(ServiceParam{
		DB:     conn,
		Log:    zap.NewNop(),
		Clock:  clock.NewFakeClock(time.Now()),
		Config: config.Config{},
		Repo:   repository.Provide(),
		Users:  nil,
	})
	require.NoError(t, err)

	body := []byte(`{}`)
	err = svc.Process(context.Background(), sign(body), body)
	assert.ErrorIs(t, err, webhookdomain.ErrSignatureMismatch)
}

func TestProcessMalformedPayload(t *testing.T) {
	svc, _, _ := newTestWebhookService(t)
	body := []byte(`{"type": "subscription.created", "data":`)

	err := svc.Process(context.Background(), sign(body), body)
	assert.ErrorIs(t, err, webhookdomain.ErrMalformedPayload)
}

func TestProcessUnknownEventType(t *testing.T) {
	svc, _, _ := newTestWebhookService(t)
	body := []byte(`{"id":"evt_1","type":"invoice.finalized","data":{}}`)

	err := svc.Process(context.Background(), sign(body), body)
	assert.ErrorIs(t, err, userdomain.ErrUnknownWebhookEvent)
}

func TestProcessDeduplicatesRedelivery(t *testing.T) {
	svc, users, conn := newTestWebhookService(t)
	created := []byte(`{
		"id": "evt_1",
		"type": "subscription.created",
		"data": {
			"subscription": {"id": "sub_1", "planId": "scale-developer"},
			"metadata": {"userId": "u1"}
		}
	}`)
	require.NoError(t, svc.Process(context.Background(), sign(created), created))

	// a later update moves the user to top tier
	updated := []byte(`{
		"id": "evt_2",
		"type": "subscription.updated",
		"data": {
			"subscription": {"id": "sub_1", "planId": "scale-pro"}
		}
	}`)
	require.NoError(t, svc.Process(context.Background(), sign(updated), updated))

	// redelivery of the original created event must not downgrade
	require.NoError(t, svc.Process(context.Background(), sign(created), created))

	user, err := users.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, tier.TierTop, user.Tier)

	var count int64
	require.NoError(t, conn.Model(&webhookdomain.WebhookRecord{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestProcessRecordsFailedDelivery(t *testing.T) {
	svc, _, conn := newTestWebhookService(t)
	body := []byte(`{
		"id": "evt_9",
		"type": "payment.failed",
		"data": {"subscription": {"id": "sub_missing"}}
	}`)

	err := svc.Process(context.Background(), sign(body), body)
	require.ErrorIs(t, err, userdomain.ErrNotFound)

	var record webhookdomain.WebhookRecord
	require.NoError(t, conn.Where("provider_event_id = ?", "evt_9").First(&record).Error)
	assert.Equal(t, webhookdomain.DeliveryFailed, record.Status)
	assert.NotEmpty(t, record.Error)
}
