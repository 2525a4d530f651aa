package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	Create(ctx context.Context, orgID snowflake.ID, req CreateRequest) (*Response, error)
	GetByID(ctx context.Context, orgID snowflake.ID, id string) (*Response, error)
	List(ctx context.Context, orgID snowflake.ID) ([]Response, error)
}

type CreateRequest struct {
	Name           string   `json:"name"`
	BillingType    string   `json:"billing_type"`
	UnitDivisor    *float64 `json:"unit_divisor,omitempty"`
	UnitsPerCredit *float64 `json:"units_per_credit,omitempty"`
	Active         *bool    `json:"active,omitempty"`
}

type Response struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	Name           string    `json:"name"`
	BillingType    string    `json:"billing_type"`
	UnitDivisor    *float64  `json:"unit_divisor,omitempty"`
	UnitsPerCredit *float64  `json:"units_per_credit,omitempty"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidName         = errors.New("invalid_name")
	ErrInvalidBillingType  = errors.New("invalid_billing_type")
	ErrInvalidUnitConfig   = errors.New("invalid_unit_config")
	ErrInvalidID           = errors.New("invalid_id")
	ErrNotFound            = errors.New("not_found")
)

func ParseID(value string) (snowflake.ID, error) {
	return snowflake.ParseString(value)
}
