package domain

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	Create(ctx context.Context, orgID snowflake.ID, req CreateRequest) (*Response, error)
	List(ctx context.Context, orgID snowflake.ID) ([]Response, error)
	GetByID(ctx context.Context, orgID snowflake.ID, id string) (*Response, error)
	Update(ctx context.Context, orgID snowflake.ID, id string, req UpdateRequest) (*Response, error)
	Delete(ctx context.Context, orgID snowflake.ID, id string) error
	RotateSecret(ctx context.Context, orgID snowflake.ID, id string) (*Response, error)
	ListLogs(ctx context.Context, orgID snowflake.ID, id string, limit int) ([]LogResponse, error)
	SendTest(ctx context.Context, orgID snowflake.ID, id string) (*LogResponse, error)

	// Dispatch fans one event out to every enabled, subscribed endpoint.
	Dispatch(ctx context.Context, orgID snowflake.ID, eventType string, payload map[string]any) error
}

type CreateRequest struct {
	URL    string   `json:"url"`
	Events []string `json:"events,omitempty"`
}

type UpdateRequest struct {
	URL        *string   `json:"url,omitempty"`
	Events     *[]string `json:"events,omitempty"`
	IsDisabled *bool     `json:"is_disabled,omitempty"`
}

// Response exposes the secret only on create and rotate.
type Response struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	URL            string    `json:"url"`
	Secret         string    `json:"secret,omitempty"`
	Events         []string  `json:"events"`
	IsDisabled     bool      `json:"is_disabled"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type LogResponse struct {
	ID           string          `json:"id"`
	WebhookID    string          `json:"webhook_id"`
	EventID      string          `json:"event_id"`
	EventType    string          `json:"event_type"`
	URL          string          `json:"url"`
	Payload      json.RawMessage `json:"payload"`
	StatusCode   *int            `json:"status_code,omitempty"`
	ErrorMessage *string         `json:"error_message,omitempty"`
	DurationMs   int64           `json:"duration_ms"`
	CreatedAt    time.Time       `json:"created_at"`
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidURL          = errors.New("invalid_url")
	ErrInvalidID           = errors.New("invalid_id")
	ErrNotFound            = errors.New("not_found")
	ErrDeliveryFailed      = errors.New("delivery_failed")
)
