package events

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/creditrail/internal/clock"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type OutboxParams struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
}

// Outbox records domain events for asynchronous delivery.
type Outbox struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
}

func NewOutbox(p OutboxParams) *Outbox {
	return &Outbox{
		db:    p.DB,
		log:   p.Log.Named("events.outbox"),
		genID: p.GenID,
		clock: p.Clock,
	}
}

// PublishTx stages an event inside the caller's transaction so the event
// commits or rolls back together with the ledger mutation.
func (o *Outbox) PublishTx(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, eventType string, payload map[string]any) error {
	now := o.clock.Now()
	event := &OutboxEvent{
		ID:            o.genID.Generate(),
		OrgID:         orgID,
		EventType:     eventType,
		Payload:       datatypes.JSONMap(payload),
		Status:        StatusPending,
		Attempts:      0,
		NextAttemptAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	return tx.WithContext(ctx).Exec(
		`INSERT INTO outbox_events (id, org_id, event_type, payload, status, attempts, next_attempt_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID,
		event.OrgID,
		event.EventType,
		event.Payload,
		event.Status,
		event.Attempts,
		event.NextAttemptAt,
		event.CreatedAt,
		event.UpdatedAt,
	).Error
}

// Publish stages an event outside any transaction.
func (o *Outbox) Publish(ctx context.Context, orgID snowflake.ID, eventType string, payload map[string]any) error {
	return o.PublishTx(ctx, o.db, orgID, eventType, payload)
}
