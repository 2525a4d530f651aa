package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	webhookdomain "github.com/smallbiznis/creditrail/internal/webhook/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() webhookdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, w *webhookdomain.Webhook) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO webhooks (id, org_id, url, secret, events, is_disabled, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		w.ID,
		w.OrgID,
		w.URL,
		w.Secret,
		w.Events,
		w.IsDisabled,
		w.CreatedAt,
		w.UpdatedAt,
	).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, w *webhookdomain.Webhook) error {
	return db.WithContext(ctx).Exec(
		`UPDATE webhooks
		 SET url = ?, secret = ?, events = ?, is_disabled = ?, updated_at = ?
		 WHERE org_id = ? AND id = ?`,
		w.URL,
		w.Secret,
		w.Events,
		w.IsDisabled,
		w.UpdatedAt,
		w.OrgID,
		w.ID,
	).Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`DELETE FROM webhooks WHERE org_id = ? AND id = ?`,
		orgID,
		id,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*webhookdomain.Webhook, error) {
	var webhook webhookdomain.Webhook
	err := db.WithContext(ctx).Raw(
		`SELECT id, org_id, url, secret, events, is_disabled, created_at, updated_at
		 FROM webhooks WHERE org_id = ? AND id = ?`,
		orgID,
		id,
	).Scan(&webhook).Error
	if err != nil {
		return nil, err
	}
	if webhook.ID == 0 {
		return nil, nil
	}
	return &webhook, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]webhookdomain.Webhook, error) {
	var webhooks []webhookdomain.Webhook
	err := db.WithContext(ctx).Raw(
		`SELECT id, org_id, url, secret, events, is_disabled, created_at, updated_at
		 FROM webhooks WHERE org_id = ? ORDER BY created_at DESC`,
		orgID,
	).Scan(&webhooks).Error
	if err != nil {
		return nil, err
	}
	return webhooks, nil
}

func (r *repo) ListEnabled(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]webhookdomain.Webhook, error) {
	var webhooks []webhookdomain.Webhook
	err := db.WithContext(ctx).Raw(
		`SELECT id, org_id, url, secret, events, is_disabled, created_at, updated_at
		 FROM webhooks WHERE org_id = ? AND is_disabled = ?`,
		orgID,
		false,
	).Scan(&webhooks).Error
	if err != nil {
		return nil, err
	}
	return webhooks, nil
}

func (r *repo) InsertLog(ctx context.Context, db *gorm.DB, l *webhookdomain.WebhookLog) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO webhook_logs (id, org_id, webhook_id, event_id, event_type, url, payload, status_code, error_message, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID,
		l.OrgID,
		l.WebhookID,
		l.EventID,
		l.EventType,
		l.URL,
		l.Payload,
		l.StatusCode,
		l.ErrorMessage,
		l.DurationMs,
		l.CreatedAt,
	).Error
}

func (r *repo) ListLogs(ctx context.Context, db *gorm.DB, orgID, webhookID snowflake.ID, limit int) ([]webhookdomain.WebhookLog, error) {
	var logs []webhookdomain.WebhookLog
	err := db.WithContext(ctx).Raw(
		`SELECT id, org_id, webhook_id, event_id, event_type, url, payload, status_code, error_message, duration_ms, created_at
		 FROM webhook_logs WHERE org_id = ? AND webhook_id = ?
		 ORDER BY created_at DESC LIMIT ?`,
		orgID,
		webhookID,
		limit,
	).Scan(&logs).Error
	if err != nil {
		return nil, err
	}
	return logs, nil
}
