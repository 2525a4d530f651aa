package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/creditrail/pkg/db/pagination"
)

type Service interface {
	Grant(ctx context.Context, orgID snowflake.ID, req TransactionRequest) (*TransactionResponse, error)
	Deduct(ctx context.Context, orgID snowflake.ID, req TransactionRequest) (*TransactionResponse, error)
	Refund(ctx context.Context, orgID snowflake.ID, req TransactionRequest) (*TransactionResponse, error)
	GetBalance(ctx context.Context, orgID snowflake.ID, customerID, productID string) (*BalanceResponse, error)
	ListTransactions(ctx context.Context, orgID snowflake.ID, req ListTransactionsRequest) (*ListTransactionsResponse, error)
}

// TransactionRequest is a single ledger mutation. Amount is the raw usage
// amount for deducts and refunds; for grants it is already credits.
type TransactionRequest struct {
	CustomerID string         `json:"customer_id"`
	ProductID  string         `json:"product_id"`
	Amount     float64        `json:"amount"`
	Reason     string         `json:"reason,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

type TransactionResponse struct {
	ID             string         `json:"id"`
	OrganizationID string         `json:"organization_id"`
	CustomerID     string         `json:"customer_id"`
	ProductID      string         `json:"product_id"`
	Type           string         `json:"type"`
	Amount         int64          `json:"amount"`
	BalanceBefore  int64          `json:"balance_before"`
	BalanceAfter   int64          `json:"balance_after"`
	Reason         string         `json:"reason,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

type BalanceResponse struct {
	OrganizationID string    `json:"organization_id"`
	CustomerID     string    `json:"customer_id"`
	ProductID      string    `json:"product_id"`
	Balance        int64     `json:"balance"`
	Consumed       int64     `json:"consumed"`
	Granted        int64     `json:"granted"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type ListTransactionsRequest struct {
	CustomerID string
	ProductID  string
	Pagination pagination.Pagination
}

type ListTransactionsResponse struct {
	Transactions []TransactionResponse `json:"transactions"`
	PageInfo     pagination.PageInfo   `json:"page_info"`
}

var (
	ErrInvalidOrganization    = errors.New("invalid_organization")
	ErrInvalidCustomer        = errors.New("invalid_customer")
	ErrInvalidProduct         = errors.New("invalid_product")
	ErrInvalidAmount          = errors.New("invalid_amount")
	ErrInvalidTransactionType = errors.New("invalid_transaction_type")
	ErrProductNotFound        = errors.New("product_not_found")
	ErrBalanceNotFound        = errors.New("balance_not_found")
	ErrInsufficientCredits    = errors.New("insufficient_credits")
	ErrConflict               = errors.New("balance_conflict")
)
