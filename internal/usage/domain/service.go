package domain

import (
	"context"
	"errors"
	"time"

	userdomain "github.com/scalehq/entitlements/internal/user/domain"
)

// EventMetadata carries optional client-reported measurements.
type EventMetadata struct {
	ModelName        string         `json:"model,omitempty"`
	TokensUsed       int            `json:"tokensUsed,omitempty"`
	ResponseTimeMS   int            `json:"responseTime,omitempty"`
	Success          *bool          `json:"success,omitempty"`
	ErrorMessage     string         `json:"errorMessage,omitempty"`
	Source           string         `json:"source,omitempty"`
	ExtensionVersion string         `json:"extensionVersion,omitempty"`
	Extra            map[string]any `json:"extra,omitempty"`
}

type TrackRequest struct {
	UserID   string        `json:"userId"`
	Type     EventType     `json:"type"`
	Feature  string        `json:"feature"`
	Metadata EventMetadata `json:"metadata"`
}

// TrackResult pairs the recorded event with the user's post-consume quota.
type TrackResult struct {
	Event *UsageEvent
	User  *userdomain.User
}

type StatsRequest struct {
	UserID    string
	StartDate *time.Time
	EndDate   *time.Time
	Type      string
}

type Stats struct {
	TotalEvents         int64            `json:"totalEvents"`
	EventsByType        map[string]int64 `json:"eventsByType"`
	EventsByFeature     map[string]int64 `json:"eventsByFeature"`
	EventsByDay         map[string]int64 `json:"eventsByDay"`
	AverageResponseTime float64          `json:"averageResponseTime"`
	SuccessRate         float64          `json:"successRate"`
}

type StatsResponse struct {
	User   *userdomain.User `json:"user"`
	Stats  Stats            `json:"stats"`
	Events []UsageEvent     `json:"events"`
}

type Service interface {
	// Track gates the event on entitlement and quota, then appends it.
	Track(ctx context.Context, req TrackRequest) (*TrackResult, error)

	// Stats aggregates the user's events over an optional window.
	Stats(ctx context.Context, req StatsRequest) (*StatsResponse, error)

	// PurgeExpired deletes events past the retention window.
	PurgeExpired(ctx context.Context) (int64, error)
}

var (
	ErrInvalidEventType   = errors.New("invalid_event_type")
	ErrFeatureNotEntitled = errors.New("feature_not_entitled")
)
