package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, webhook *Webhook) error
	Update(ctx context.Context, db *gorm.DB, webhook *Webhook) error
	Delete(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Webhook, error)
	List(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]Webhook, error)
	ListEnabled(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]Webhook, error)
	InsertLog(ctx context.Context, db *gorm.DB, log *WebhookLog) error
	ListLogs(ctx context.Context, db *gorm.DB, orgID, webhookID snowflake.ID, limit int) ([]WebhookLog, error)
}
