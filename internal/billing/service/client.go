package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	billingdomain "github.com/scalehq/entitlements/internal/billing/domain"
	"github.com/scalehq/entitlements/internal/config"
	"github.com/scalehq/entitlements/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type providerSubscription struct {
	ID               string     `json:"id"`
	CustomerID       string     `json:"customerId"`
	PlanID           string     `json:"planId"`
	Status           string     `json:"status"`
	CurrentPeriodEnd *time.Time `json:"currentPeriodEnd"`
}

type providerError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

type Client struct {
	baseURL     string
	checkoutURL string
	apiKey      string
	log         *zap.Logger
	metrics     *metrics.Metrics
	client      *http.Client
}

type ClientParam struct {
	fx.In

	Config  config.Config
	Log     *zap.Logger
	Metrics *metrics.Metrics `optional:"true"`
}

func NewClient(p ClientParam) billingdomain.Service {
	timeout := time.Duration(p.Config.Billing.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:     strings.TrimRight(p.Config.Billing.BaseURL, "/"),
		checkoutURL: strings.TrimRight(p.Config.Billing.CheckoutURL, "/"),
		apiKey:      strings.TrimSpace(p.Config.Billing.APIKey),
		log:         p.Log.Named("billing.client"),
		metrics:     p.Metrics,
		client:      &http.Client{Timeout: timeout},
	}
}

// VerifySubscription implements domain.Service.
func (c *Client) VerifySubscription(ctx context.Context, subscriptionID string) (*billingdomain.SubscriptionInfo, error) {
	sub, err := c.doRequest(ctx, http.MethodGet, "/v1/subscriptions/"+url.PathEscape(subscriptionID), nil)
	if err != nil {
		return nil, err
	}
	return toInfo(sub), nil
}

// CancelSubscription implements domain.Service.
func (c *Client) CancelSubscription(ctx context.Context, subscriptionID string) error {
	_, err := c.doRequest(ctx, http.MethodPost, "/v1/subscriptions/"+url.PathEscape(subscriptionID)+"/cancel", nil)
	return err
}

// UpdateSubscriptionPlan implements domain.Service.
func (c *Client) UpdateSubscriptionPlan(ctx context.Context, subscriptionID, planID string) (*billingdomain.SubscriptionInfo, error) {
	payload := map[string]string{"planId": planID}
	sub, err := c.doRequest(ctx, http.MethodPatch, "/v1/subscriptions/"+url.PathEscape(subscriptionID), payload)
	if err != nil {
		return nil, err
	}
	return toInfo(sub), nil
}

// CreateCheckoutSession implements domain.Service. The provider's hosted
// checkout is a static URL per plan; the user reference rides along as a
// query parameter and comes back in the webhook payload's metadata.
func (c *Client) CreateCheckoutSession(ctx context.Context, userID, tier, planID string) (*billingdomain.CheckoutSession, error) {
	if c.checkoutURL == "" {
		return nil, billingdomain.ErrNotConfigured
	}

	values := url.Values{}
	values.Set("plan", planID)
	if userID != "" {
		values.Set("ref", userID)
	}

	c.metrics.RecordCheckoutSession(ctx, tier)
	return &billingdomain.CheckoutSession{
		URL:  fmt.Sprintf("%s/checkout?%s", c.checkoutURL, values.Encode()),
		Tier: tier,
	}, nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, payload any) (*providerSubscription, error) {
	if c.apiKey == "" {
		return nil, billingdomain.ErrNotConfigured
	}

	body := strings.NewReader("")
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = strings.NewReader(string(raw))
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.log.Warn("billing provider request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, billingdomain.ErrProvider
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, billingdomain.ErrSubscriptionNotFound
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var perr providerError
		_ = json.NewDecoder(resp.Body).Decode(&perr)
		c.log.Warn("billing provider rejected request",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("provider_message", perr.Message),
		)
		return nil, billingdomain.ErrProvider
	}

	var sub providerSubscription
	if err := json.NewDecoder(resp.Body).Decode(&sub); err != nil {
		return nil, billingdomain.ErrProvider
	}
	return &sub, nil
}

func toInfo(sub *providerSubscription) *billingdomain.SubscriptionInfo {
	if sub == nil {
		return nil
	}
	return &billingdomain.SubscriptionInfo{
		SubscriptionID:   sub.ID,
		CustomerID:       sub.CustomerID,
		PlanID:           sub.PlanID,
		Status:           sub.Status,
		CurrentPeriodEnd: sub.CurrentPeriodEnd,
	}
}
