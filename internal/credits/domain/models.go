package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Credits is a whole-number quantity of usage credits. All ledger math
// happens in this type so fractional unit amounts never leak into balances.
type Credits int64

// TransactionType enumerates the ledger operations.
type TransactionType string

const (
	TransactionTypeGrant  TransactionType = "grant"
	TransactionTypeDeduct TransactionType = "deduct"
	TransactionTypeRefund TransactionType = "refund"
)

// CreditBalance is the running state for one (org, customer, product) pair.
// Invariant: Balance == Granted - Consumed.
type CreditBalance struct {
	ID         snowflake.ID `json:"id" gorm:"primaryKey"`
	OrgID      snowflake.ID `json:"organization_id" gorm:"column:org_id;not null;uniqueIndex:uq_balance_scope,priority:1"`
	CustomerID snowflake.ID `json:"customer_id" gorm:"column:customer_id;not null;uniqueIndex:uq_balance_scope,priority:2"`
	ProductID  snowflake.ID `json:"product_id" gorm:"column:product_id;not null;uniqueIndex:uq_balance_scope,priority:3"`
	Balance    Credits      `json:"balance" gorm:"not null;default:0"`
	Consumed   Credits      `json:"consumed" gorm:"not null;default:0"`
	Granted    Credits      `json:"granted" gorm:"not null;default:0"`
	UpdatedAt  time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (CreditBalance) TableName() string { return "credit_balances" }

// CreditTransaction is one immutable ledger entry.
type CreditTransaction struct {
	ID            snowflake.ID      `json:"id" gorm:"primaryKey"`
	OrgID         snowflake.ID      `json:"organization_id" gorm:"column:org_id;not null;index"`
	CustomerID    snowflake.ID      `json:"customer_id" gorm:"column:customer_id;not null;index"`
	ProductID     snowflake.ID      `json:"product_id" gorm:"column:product_id;not null;index"`
	Type          TransactionType   `json:"type" gorm:"type:text;not null"`
	Amount        Credits           `json:"amount" gorm:"not null"`
	BalanceBefore Credits           `json:"balance_before" gorm:"column:balance_before;not null"`
	BalanceAfter  Credits           `json:"balance_after" gorm:"column:balance_after;not null"`
	Reason        string            `json:"reason" gorm:"type:text"`
	Metadata      datatypes.JSONMap `json:"metadata" gorm:"type:jsonb"`
	CreatedAt     time.Time         `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP;index"`
}

// TableName sets the database table name.
func (CreditTransaction) TableName() string { return "credit_transactions" }
