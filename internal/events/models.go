package events

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Event types emitted by the credit ledger.
const (
	TypeCreditGranted  = "credit.granted"
	TypeCreditDeducted = "credit.deducted"
	TypeCreditRefunded = "credit.refunded"
)

// Outbox row lifecycle.
const (
	StatusPending   = "pending"
	StatusDelivered = "delivered"
	StatusFailed    = "failed"
)

// OutboxEvent is written in the same transaction as the ledger mutation it
// describes, then picked up by the relay for webhook delivery.
type OutboxEvent struct {
	ID            snowflake.ID      `json:"id" gorm:"primaryKey"`
	OrgID         snowflake.ID      `json:"organization_id" gorm:"column:org_id;not null;index"`
	EventType     string            `json:"event_type" gorm:"type:text;not null"`
	Payload       datatypes.JSONMap `json:"payload" gorm:"type:jsonb;not null"`
	Status        string            `json:"status" gorm:"type:text;not null;default:pending;index:idx_outbox_dispatch,priority:1"`
	Attempts      int               `json:"attempts" gorm:"not null;default:0"`
	NextAttemptAt time.Time         `json:"next_attempt_at" gorm:"column:next_attempt_at;not null;index:idx_outbox_dispatch,priority:2"`
	LastError     *string           `json:"last_error,omitempty" gorm:"column:last_error;type:text"`
	CreatedAt     time.Time         `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt     time.Time         `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (OutboxEvent) TableName() string { return "outbox_events" }

// Dispatcher delivers one event to every matching webhook endpoint. The
// webhook package provides the implementation; the indirection keeps the
// ledger free of delivery concerns.
type Dispatcher interface {
	Dispatch(ctx context.Context, orgID snowflake.ID, eventType string, payload map[string]any) error
}
