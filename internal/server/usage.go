package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	usagedomain "github.com/scalehq/entitlements/internal/usage/domain"
	userdomain "github.com/scalehq/entitlements/internal/user/domain"
	"go.uber.org/zap"
)

type trackRequest struct {
	UserID   string                    `json:"userId" binding:"required"`
	Type     string                    `json:"type" binding:"required"`
	Feature  string                    `json:"feature"`
	Metadata usagedomain.EventMetadata `json:"metadata"`
}

// TrackUsage records one usage event after entitlement and quota gates.
// A 429 response still carries the quota snapshot so the client can show
// the exhausted window.
func (s *Server) TrackUsage(c *gin.Context) {
	var req trackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	ctx := c.Request.Context()
	if s.trackLimiter.Enabled() {
		allowed, err := s.trackLimiter.AllowUser(ctx, req.UserID)
		if err != nil {
			// redis outage must not take tracking down with it
			s.log.Warn("track rate limiter unavailable", zap.Error(err))
		} else if !allowed {
			AbortWithError(c, ErrRateLimited)
			return
		}
	}

	result, err := s.usageSvc.Track(ctx, usagedomain.TrackRequest{
		UserID:   req.UserID,
		Type:     usagedomain.EventType(req.Type),
		Feature:  req.Feature,
		Metadata: req.Metadata,
	})
	if err != nil {
		if errors.Is(err, userdomain.ErrQuotaExceeded) && result != nil && result.User != nil {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":      "quota_exceeded",
				"message":    "monthly prompt quota exhausted",
				"usageQuota": result.User.QuotaSnapshot(),
			})
			return
		}
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"eventId":    result.Event.ID,
		"usageQuota": result.User.QuotaSnapshot(),
	})
}

// UsageStats aggregates a user's events over an optional window.
func (s *Server) UsageStats(c *gin.Context) {
	req := usagedomain.StatsRequest{
		UserID: c.Param("userId"),
		Type:   c.Query("type"),
	}

	startDate, ok := parseDateQuery(c, "startDate")
	if !ok {
		return
	}
	endDate, ok := parseDateQuery(c, "endDate")
	if !ok {
		return
	}
	req.StartDate = startDate
	req.EndDate = endDate

	resp, err := s.usageSvc.Stats(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user":   viewOf(resp.User),
		"stats":  resp.Stats,
		"events": resp.Events,
	})
}

// ResetUsage zeroes the quota window. Admin path, JWT gated.
func (s *Server) ResetUsage(c *gin.Context) {
	user, err := s.users.ResetQuota(c.Request.Context(), c.Param("userId"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"usageQuota": user.QuotaSnapshot(),
	})
}

// parseDateQuery accepts RFC3339 timestamps or bare dates.
func parseDateQuery(c *gin.Context, name string) (*time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return &ts, true
	}
	if ts, err := time.Parse("2006-01-02", raw); err == nil {
		return &ts, true
	}
	AbortWithError(c, ErrInvalidRequest)
	return nil, false
}
