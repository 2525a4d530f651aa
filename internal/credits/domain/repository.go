package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindBalance(ctx context.Context, db *gorm.DB, orgID, customerID, productID snowflake.ID) (*CreditBalance, error)
	InsertBalance(ctx context.Context, db *gorm.DB, balance *CreditBalance) error
	// UpdateBalanceGuarded applies the new balance only when the row still
	// matches the previously observed values. Returns the number of rows
	// changed so callers can detect a lost race.
	UpdateBalanceGuarded(ctx context.Context, db *gorm.DB, observed, updated *CreditBalance) (int64, error)
	InsertTransaction(ctx context.Context, db *gorm.DB, txn *CreditTransaction) error
	ListTransactions(ctx context.Context, db *gorm.DB, filter TransactionFilter) ([]CreditTransaction, error)
}

// TransactionFilter narrows a ledger listing. Cursor fields are zero when
// listing from the newest entry.
type TransactionFilter struct {
	OrgID           snowflake.ID
	CustomerID      snowflake.ID
	ProductID       snowflake.ID
	CursorID        snowflake.ID
	CursorCreatedAt time.Time
	Limit           int
}
