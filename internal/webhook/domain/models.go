package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Webhook is a registered delivery endpoint.
type Webhook struct {
	ID         snowflake.ID                `json:"id" gorm:"primaryKey"`
	OrgID      snowflake.ID                `json:"organization_id" gorm:"column:org_id;not null;index"`
	URL        string                      `json:"url" gorm:"type:text;not null"`
	Secret     string                      `json:"-" gorm:"type:text;not null"`
	Events     datatypes.JSONSlice[string] `json:"events" gorm:"type:jsonb"`
	IsDisabled bool                        `json:"is_disabled" gorm:"column:is_disabled;not null;default:false"`
	CreatedAt  time.Time                   `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt  time.Time                   `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Webhook) TableName() string { return "webhooks" }

// SubscribedTo reports whether the endpoint wants this event type. An empty
// subscription list means all events.
func (w *Webhook) SubscribedTo(eventType string) bool {
	if len(w.Events) == 0 {
		return true
	}
	for _, e := range w.Events {
		if strings.TrimSpace(e) == eventType {
			return true
		}
	}
	return false
}

// WebhookLog records one delivery attempt, successful or not. Payload carries
// the serialized envelope exactly as it was signed and sent, so a delivery can
// be replayed from the log alone.
type WebhookLog struct {
	ID           snowflake.ID   `json:"id" gorm:"primaryKey"`
	OrgID        snowflake.ID   `json:"organization_id" gorm:"column:org_id;not null;index"`
	WebhookID    snowflake.ID   `json:"webhook_id" gorm:"column:webhook_id;not null;index"`
	EventID      string         `json:"event_id" gorm:"column:event_id;type:text;not null"`
	EventType    string         `json:"event_type" gorm:"type:text;not null"`
	URL          string         `json:"url" gorm:"type:text;not null"`
	Payload      datatypes.JSON `json:"payload" gorm:"type:jsonb"`
	StatusCode   *int           `json:"status_code,omitempty" gorm:"column:status_code"`
	ErrorMessage *string        `json:"error_message,omitempty" gorm:"column:error_message;type:text"`
	DurationMs   int64          `json:"duration_ms" gorm:"column:duration_ms;not null;default:0"`
	CreatedAt    time.Time      `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP;index"`
}

// TableName sets the database table name.
func (WebhookLog) TableName() string { return "webhook_logs" }

// Envelope is the JSON body delivered to endpoints.
type Envelope struct {
	ID       string         `json:"id"`
	Object   string         `json:"object"`
	Type     string         `json:"type"`
	Created  int64          `json:"created"`
	Data     map[string]any `json:"data"`
	Livemode bool           `json:"livemode"`
}
