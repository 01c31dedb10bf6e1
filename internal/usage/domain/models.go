// Package domain contains the append-only usage event log.
package domain

import (
	"time"

	"gorm.io/datatypes"
)

// EventType enumerates trackable client actions.
type EventType string

const (
	EventPrompt                  EventType = "prompt"
	EventCodeCompletion          EventType = "code_completion"
	EventDependencyVisualization EventType = "dependency_visualization"
	EventKnowledgeBase           EventType = "knowledge_base"
	EventFineTuning              EventType = "fine_tuning"
	EventChat                    EventType = "chat"
	EventAgent                   EventType = "agent"
)

// Valid reports whether the type is a known event kind.
func (t EventType) Valid() bool {
	switch t {
	case EventPrompt, EventCodeCompletion, EventDependencyVisualization,
		EventKnowledgeBase, EventFineTuning, EventChat, EventAgent:
		return true
	default:
		return false
	}
}

// QuotaCounted reports whether the type consumes monthly prompt quota.
// Only conversational actions count; auxiliary features never do.
func (t EventType) QuotaCounted() bool {
	switch t {
	case EventPrompt, EventChat, EventAgent:
		return true
	default:
		return false
	}
}

// DefaultFeature maps an event type to the feature it exercises, used when
// a track request omits the feature tag.
func (t EventType) DefaultFeature() string {
	switch t {
	case EventCodeCompletion:
		return "codeCompletion"
	case EventDependencyVisualization:
		return "dependencyVisualization"
	case EventKnowledgeBase:
		return "knowledgeBase"
	case EventFineTuning:
		return "fineTuning"
	case EventAgent:
		return "agent"
	default:
		return "chat"
	}
}

// RetentionWindow bounds how long events are kept before purge.
const RetentionWindow = 365 * 24 * time.Hour

// UsageEvent records one tracked action. Immutable once created.
type UsageEvent struct {
	ID        string    `gorm:"primaryKey;type:text" json:"eventId"`
	UserID    string    `gorm:"type:text;not null;index" json:"userId"`
	Type      EventType `gorm:"type:text;not null" json:"type"`
	Feature   string    `gorm:"type:text;not null" json:"feature"`
	Timestamp time.Time `gorm:"not null;index" json:"timestamp"`

	ModelName        string `gorm:"type:text" json:"modelName,omitempty"`
	TokensUsed       int    `gorm:"not null;default:0" json:"tokensUsed,omitempty"`
	ResponseTimeMS   int    `gorm:"not null;default:0" json:"responseTime,omitempty"`
	// No gorm default here: gorm drops zero-valued fields with a
	// default tag from the INSERT, which would turn success=false
	// into the column default and corrupt the success rate.
	Success          bool   `gorm:"not null" json:"success"`
	ErrorMessage     string `gorm:"type:text" json:"errorMessage,omitempty"`
	Source           string `gorm:"type:text" json:"source,omitempty"`
	ExtensionVersion string `gorm:"type:text" json:"extensionVersion,omitempty"`

	Metadata datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"-"`
}

// TableName sets the database table name.
func (UsageEvent) TableName() string { return "usage_events" }
