package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/scalehq/entitlements/internal/tier"
	userdomain "github.com/scalehq/entitlements/internal/user/domain"
	"go.uber.org/zap"
)

type verifyRequest struct {
	UserID           string  `json:"userId" binding:"required"`
	ExtensionVersion string  `json:"extensionVersion"`
	InstallationID   string  `json:"installationId"`
	Source           string  `json:"source"`
	Email            *string `json:"email"`
}

// VerifySubscription is the client bootstrap call: it creates the user on
// first contact and reports whether the subscription is currently usable.
// When a billing subscription is linked, the provider's state is
// reconciled opportunistically; a provider outage falls back to the
// locally stored status.
func (s *Server) VerifySubscription(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	ctx := c.Request.Context()
	user, err := s.users.EnsureUser(ctx, userdomain.EnsureUserRequest{
		UserID: req.UserID,
		Metadata: userdomain.ClientMetadata{
			ExtensionVersion: req.ExtensionVersion,
			InstallationID:   req.InstallationID,
			Source:           req.Source,
			Email:            req.Email,
		},
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if user.BillingSubscriptionID != nil {
		if refreshed := s.reconcileWithProvider(c, user); refreshed != nil {
			user = refreshed
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"valid": user.IsEffectivelyActive(s.clock.Now()),
		"user":  viewOf(user),
	})
}

// reconcileWithProvider pulls the provider's current subscription state.
// Read path: any provider failure is logged and the local record stands.
func (s *Server) reconcileWithProvider(c *gin.Context, user *userdomain.User) *userdomain.User {
	ctx := c.Request.Context()
	info, err := s.billingSvc.VerifySubscription(ctx, *user.BillingSubscriptionID)
	if err != nil {
		s.log.Warn("subscription verification fell back to local status",
			zap.String("user_id", user.ID),
			zap.Error(err),
		)
		return nil
	}

	t, ok := tier.FromPlanID(info.PlanID)
	if !ok {
		t = user.Tier
	}
	status := userdomain.MapProviderStatus(info.Status)
	if t == user.Tier && status == user.Status {
		return nil
	}

	updated, err := s.users.ApplyTierChange(ctx, userdomain.ApplyTierChangeRequest{
		UserID: user.ID,
		Tier:   string(t),
		Status: status,
	})
	if err != nil {
		s.log.Warn("provider state reconciliation failed",
			zap.String("user_id", user.ID),
			zap.Error(err),
		)
		return nil
	}
	return updated
}

type updateRequest struct {
	Tier                  string  `json:"tier" binding:"required"`
	Status                string  `json:"status"`
	BillingSubscriptionID *string `json:"goDaddySubscriptionId"`
	BillingCustomerID     *string `json:"goDaddyCustomerId"`
}

// UpdateSubscription applies a tier/status change to a user record.
func (s *Server) UpdateSubscription(c *gin.Context) {
	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	user, err := s.users.ApplyTierChange(c.Request.Context(), userdomain.ApplyTierChangeRequest{
		UserID:                c.Param("userId"),
		Tier:                  req.Tier,
		Status:                userdomain.SubscriptionStatus(req.Status),
		BillingSubscriptionID: req.BillingSubscriptionID,
		BillingCustomerID:     req.BillingCustomerID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"user":    viewOf(user),
	})
}

// GetSubscription returns the stored user record.
func (s *Server) GetSubscription(c *gin.Context) {
	user, err := s.users.Get(c.Request.Context(), c.Param("userId"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": viewOf(user)})
}

// PurchaseTier hands the client the provider's hosted checkout URL.
func (s *Server) PurchaseTier(c *gin.Context) {
	t, ok := tier.Parse(c.Param("tier"))
	if !ok {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	session, err := s.billingSvc.CreateCheckoutSession(
		c.Request.Context(),
		c.Query("userId"),
		string(t),
		tier.PlanIDFor(t),
	)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"paymentUrl":   session.URL,
		"tier":         session.Tier,
		"instructions": "Complete the purchase in your browser. Your subscription activates automatically once payment is confirmed.",
	})
}

type verifyPaymentRequest struct {
	UserID        string  `json:"userId" binding:"required"`
	Tier          string  `json:"tier" binding:"required"`
	TransactionID string  `json:"transactionId"`
	Email         *string `json:"email"`
}

// VerifyPayment applies a client-reported purchase result.
func (s *Server) VerifyPayment(c *gin.Context) {
	var req verifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	user, err := s.users.VerifyPayment(c.Request.Context(), userdomain.VerifyPaymentRequest{
		UserID:        req.UserID,
		Tier:          req.Tier,
		TransactionID: req.TransactionID,
		Email:         req.Email,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"user":    viewOf(user),
	})
}
