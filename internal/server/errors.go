package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/scalehq/entitlements/internal/auth"
	billingdomain "github.com/scalehq/entitlements/internal/billing/domain"
	usagedomain "github.com/scalehq/entitlements/internal/usage/domain"
	userdomain "github.com/scalehq/entitlements/internal/user/domain"
	webhookdomain "github.com/scalehq/entitlements/internal/webhook/domain"
	"gorm.io/gorm"
)

// errorResponse is the flat wire shape for every failed request.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrInvalidRequest = errors.New("invalid_request")
	ErrRateLimited    = errors.New("rate_limited")
	ErrInternal       = errors.New("internal_error")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.AbortWithStatusJSON(status, payload)
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorResponse) {
	switch {
	case err == nil:
		return http.StatusInternalServerError, errorResponse{
			Error:   "internal_error",
			Message: "internal server error",
		}
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, userdomain.ErrInvalidUserID),
		errors.Is(err, userdomain.ErrMissingUserReference),
		errors.Is(err, usagedomain.ErrInvalidEventType),
		errors.Is(err, webhookdomain.ErrMalformedPayload):
		return http.StatusBadRequest, errorResponse{
			Error:   "validation_error",
			Message: "invalid request",
		}
	case errors.Is(err, webhookdomain.ErrSignatureMismatch):
		return http.StatusUnauthorized, errorResponse{
			Error:   "webhook_signature_error",
			Message: "webhook signature verification failed",
		}
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized, errorResponse{
			Error:   "auth_error",
			Message: "missing or invalid token",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, usagedomain.ErrFeatureNotEntitled):
		return http.StatusForbidden, errorResponse{
			Error:   "feature_not_entitled",
			Message: "feature is not available on the current tier",
		}
	case errors.Is(err, userdomain.ErrNotFound),
		errors.Is(err, billingdomain.ErrSubscriptionNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound, errorResponse{
			Error:   "not_found",
			Message: "resource not found",
		}
	case errors.Is(err, userdomain.ErrQuotaExceeded):
		return http.StatusTooManyRequests, errorResponse{
			Error:   "quota_exceeded",
			Message: "monthly prompt quota exhausted",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorResponse{
			Error:   "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, billingdomain.ErrProvider),
		errors.Is(err, billingdomain.ErrNotConfigured):
		return http.StatusInternalServerError, errorResponse{
			Error:   "billing_provider_error",
			Message: "billing provider request failed",
		}
	default:
		return http.StatusInternalServerError, errorResponse{
			Error:   "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog tags request log lines with the error category.
func classifyErrorForLog(err error) string {
	if err == nil {
		return ""
	}
	_, payload := mapError(err)
	return payload.Error
}
