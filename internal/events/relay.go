package events

import (
	"context"
	"time"

	"github.com/smallbiznis/creditrail/internal/clock"
	"github.com/smallbiznis/creditrail/internal/config"
	"github.com/smallbiznis/creditrail/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type RelayParams struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Config     config.Config
	Clock      clock.Clock
	Metrics    *metrics.Metrics
	Dispatcher Dispatcher
}

// Relay drains the outbox and hands events to the webhook dispatcher.
// Claiming is a conditional update on status, so concurrent relays never
// dispatch the same row twice.
type Relay struct {
	db         *gorm.DB
	log        *zap.Logger
	clock      clock.Clock
	metrics    *metrics.Metrics
	dispatcher Dispatcher

	interval    time.Duration
	batchSize   int
	maxAttempts int
}

func NewRelay(p RelayParams) *Relay {
	return &Relay{
		db:          p.DB,
		log:         p.Log.Named("events.relay"),
		clock:       p.Clock,
		metrics:     p.Metrics,
		dispatcher:  p.Dispatcher,
		interval:    p.Config.Relay.Interval,
		batchSize:   p.Config.Relay.BatchSize,
		maxAttempts: p.Config.Relay.MaxAttempts,
	}
}

func (r *Relay) RunForever(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if _, err := r.RunOnce(ctx); err != nil {
			r.log.Warn("outbox relay run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce drains one batch of due events and returns how many it dispatched.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	now := r.clock.Now()

	var rows []OutboxEvent
	err := r.db.WithContext(ctx).Raw(
		`SELECT id, org_id, event_type, payload, status, attempts, next_attempt_at, last_error, created_at, updated_at
		 FROM outbox_events
		 WHERE status = ? AND next_attempt_at <= ?
		 ORDER BY next_attempt_at ASC
		 LIMIT ?`,
		StatusPending,
		now,
		r.batchSize,
	).Scan(&rows).Error
	if err != nil {
		return 0, err
	}

	dispatched := 0
	for i := range rows {
		if ctx.Err() != nil {
			return dispatched, ctx.Err()
		}
		if r.process(ctx, &rows[i]) {
			dispatched++
		}
	}
	return dispatched, nil
}

// process claims one row, dispatches it, and records the outcome. Returns
// true when the event was delivered.
func (r *Relay) process(ctx context.Context, event *OutboxEvent) bool {
	attempts := event.Attempts + 1
	claim := r.db.WithContext(ctx).Exec(
		`UPDATE outbox_events
		 SET attempts = ?, updated_at = ?
		 WHERE id = ? AND status = ? AND attempts = ?`,
		attempts,
		r.clock.Now(),
		event.ID,
		StatusPending,
		event.Attempts,
	)
	if claim.Error != nil {
		r.log.Warn("outbox claim failed", zap.Error(claim.Error), zap.String("event_id", event.ID.String()))
		return false
	}
	if claim.RowsAffected == 0 {
		// Another relay got there first.
		return false
	}

	err := r.dispatcher.Dispatch(ctx, event.OrgID, event.EventType, event.Payload)
	if err == nil {
		if uerr := r.markDelivered(ctx, event); uerr != nil {
			r.log.Warn("outbox mark delivered failed", zap.Error(uerr), zap.String("event_id", event.ID.String()))
		}
		if r.metrics != nil {
			r.metrics.RecordOutboxDispatch(ctx, event.EventType)
		}
		return true
	}

	r.log.Warn("outbox dispatch failed",
		zap.Error(err),
		zap.String("event_id", event.ID.String()),
		zap.String("event_type", event.EventType),
		zap.Int("attempts", attempts),
	)
	if uerr := r.markFailedAttempt(ctx, event, attempts, err); uerr != nil {
		r.log.Warn("outbox mark failed attempt failed", zap.Error(uerr), zap.String("event_id", event.ID.String()))
	}
	return false
}

func (r *Relay) markDelivered(ctx context.Context, event *OutboxEvent) error {
	return r.db.WithContext(ctx).Exec(
		`UPDATE outbox_events SET status = ?, last_error = NULL, updated_at = ? WHERE id = ?`,
		StatusDelivered,
		r.clock.Now(),
		event.ID,
	).Error
}

func (r *Relay) markFailedAttempt(ctx context.Context, event *OutboxEvent, attempts int, cause error) error {
	status := StatusPending
	if attempts >= r.maxAttempts {
		status = StatusFailed
	}
	msg := cause.Error()
	return r.db.WithContext(ctx).Exec(
		`UPDATE outbox_events SET status = ?, last_error = ?, next_attempt_at = ?, updated_at = ? WHERE id = ?`,
		status,
		msg,
		r.clock.Now().Add(RetryDelay(attempts)),
		r.clock.Now(),
		event.ID,
	).Error
}
