package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	userdomain "github.com/scalehq/entitlements/internal/user/domain"
	webhookdomain "github.com/scalehq/entitlements/internal/webhook/domain"
	"go.uber.org/zap"
)

const webhookSignatureHeader = "X-Webhook-Signature"

// HandleBillingWebhook accepts billing-provider deliveries. The raw body
// is read before any parsing because the signature covers the exact bytes
// on the wire. Most processing failures are acked with 200 so the
// provider stops retrying a payload we can never apply; user-resolution
// failures return 500 so the delivery is retried.
func (s *Server) HandleBillingWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	err = s.webhookSvc.Process(c.Request.Context(), c.GetHeader(webhookSignatureHeader), body)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"received": true})
	case errors.Is(err, webhookdomain.ErrSignatureMismatch):
		AbortWithError(c, err)
	case errors.Is(err, userdomain.ErrNotFound):
		AbortWithError(c, ErrInternal)
	case errors.Is(err, webhookdomain.ErrMalformedPayload),
		errors.Is(err, userdomain.ErrUnknownWebhookEvent),
		errors.Is(err, userdomain.ErrMissingUserReference):
		s.log.Warn("webhook event acknowledged without processing", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"received": true})
	default:
		AbortWithError(c, ErrInternal)
	}
}
