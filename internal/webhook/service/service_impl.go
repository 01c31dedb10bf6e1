package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/scalehq/entitlements/internal/clock"
	"github.com/scalehq/entitlements/internal/config"
	"github.com/scalehq/entitlements/internal/observability/metrics"
	userdomain "github.com/scalehq/entitlements/internal/user/domain"
	webhookdomain "github.com/scalehq/entitlements/internal/webhook/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// providerPayload mirrors the billing provider's webhook envelope.
type providerPayload struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Subscription struct {
			ID         string `json:"id"`
			CustomerID string `json:"customerId"`
			PlanID     string `json:"planId"`
			Status     string `json:"status"`
		} `json:"subscription"`
		Metadata struct {
			UserID string `json:"userId"`
		} `json:"metadata"`
		Email string `json:"email"`
	} `json:"data"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	clock   clock.Clock
	secret  []byte
	repo    webhookdomain.Repository
	users   userdomain.Service
	metrics *metrics.Metrics
	node    *snowflake.Node
}

type ServiceParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Clock   clock.Clock
	Config  config.Config
	Repo    webhookdomain.Repository
	Users   userdomain.Service
	Metrics *metrics.Metrics `optional:"true"`
}

func NewService(p ServiceParam) (webhookdomain.Service, error) {
	node, err := snowflake.NewNode(1)
	if err != nil {
		return nil, err
	}
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("webhook.service"),
		clock:   p.Clock,
		secret:  []byte(p.Config.WebhookSecret),
		repo:    p.Repo,
		users:   p.Users,
		metrics: p.Metrics,
		node:    node,
	}, nil
}

// Process implements domain.Service.
func (s *Service) Process(ctx context.Context, signature string, body []byte) error {
	if !s.verifySignature(signature, body) {
		s.log.Warn("webhook signature rejected")
		return webhookdomain.ErrSignatureMismatch
	}

	event, providerEventID, err := s.parse(body)
	if err != nil {
		return err
	}

	var existing *webhookdomain.WebhookRecord
	if providerEventID != "" {
		existing, err = s.repo.FindByProviderEventID(ctx, s.db, providerEventID)
		if err != nil {
			return err
		}
		// failed deliveries stay retryable; anything else is a duplicate
		if existing != nil && existing.Status != webhookdomain.DeliveryFailed {
			s.log.Info("duplicate webhook delivery ignored",
				zap.String("provider_event_id", providerEventID),
				zap.String("event_type", string(event.Kind)),
			)
			s.metrics.RecordWebhookEvent(ctx, string(event.Kind), string(webhookdomain.DeliveryDuplicate))
			return nil
		}
	}

	_, applyErr := s.users.ApplyWebhookEvent(ctx, *event)

	status := webhookdomain.DeliveryProcessed
	errText := ""
	if applyErr != nil {
		status = webhookdomain.DeliveryFailed
		errText = applyErr.Error()
	}
	if providerEventID != "" {
		record := existing
		if record == nil {
			record = &webhookdomain.WebhookRecord{
				ID:              s.node.Generate().Int64(),
				ProviderEventID: providerEventID,
				EventType:       string(event.Kind),
				SubscriptionID:  event.SubscriptionID,
			}
		}
		record.Status = status
		record.Error = errText
		record.ReceivedAt = s.clock.Now()
		if err := s.repo.Save(ctx, s.db, record); err != nil {
			s.log.Error("failed to record webhook delivery", zap.Error(err))
		}
	}

	s.metrics.RecordWebhookEvent(ctx, string(event.Kind), string(status))
	if applyErr != nil {
		return applyErr
	}

	s.log.Info("webhook event applied",
		zap.String("provider_event_id", providerEventID),
		zap.String("event_type", string(event.Kind)),
		zap.String("subscription_id", event.SubscriptionID),
	)
	return nil
}

// verifySignature checks the hex-encoded HMAC-SHA256 of the raw body in
// constant time. An empty configured secret rejects everything.
func (s *Service) verifySignature(signature string, body []byte) bool {
	if len(s.secret) == 0 {
		return false
	}
	provided, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(body)
	return hmac.Equal(provided, mac.Sum(nil))
}

func (s *Service) parse(body []byte) (*userdomain.WebhookEvent, string, error) {
	var payload providerPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, "", webhookdomain.ErrMalformedPayload
	}

	kind, ok := normalizeKind(payload.Type)
	if !ok {
		s.log.Warn("unrecognized webhook event type", zap.String("event_type", payload.Type))
		return nil, "", userdomain.ErrUnknownWebhookEvent
	}

	return &userdomain.WebhookEvent{
		Kind:           kind,
		SubscriptionID: payload.Data.Subscription.ID,
		CustomerID:     payload.Data.Subscription.CustomerID,
		PlanID:         payload.Data.Subscription.PlanID,
		Status:         payload.Data.Subscription.Status,
		Email:          payload.Data.Email,
		UserRef:        payload.Data.Metadata.UserID,
	}, payload.ID, nil
}

func normalizeKind(raw string) (userdomain.WebhookEventKind, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "subscription.created":
		return userdomain.WebhookSubscriptionCreated, true
	case "subscription.updated":
		return userdomain.WebhookSubscriptionUpdated, true
	case "subscription.cancelled", "subscription.canceled":
		return userdomain.WebhookSubscriptionCancelled, true
	case "subscription.expired":
		return userdomain.WebhookSubscriptionExpired, true
	case "payment.succeeded":
		return userdomain.WebhookPaymentSucceeded, true
	case "payment.failed":
		return userdomain.WebhookPaymentFailed, true
	default:
		return "", false
	}
}
