package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	creditsdomain "github.com/smallbiznis/creditrail/internal/credits/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() creditsdomain.Repository {
	return &repo{}
}

func (r *repo) FindBalance(ctx context.Context, db *gorm.DB, orgID, customerID, productID snowflake.ID) (*creditsdomain.CreditBalance, error) {
	var balance creditsdomain.CreditBalance
	err := db.WithContext(ctx).Raw(
		`SELECT id, org_id, customer_id, product_id, balance, consumed, granted, updated_at
		 FROM credit_balances WHERE org_id = ? AND customer_id = ? AND product_id = ?`,
		orgID,
		customerID,
		productID,
	).Scan(&balance).Error
	if err != nil {
		return nil, err
	}
	if balance.ID == 0 {
		return nil, nil
	}
	return &balance, nil
}

func (r *repo) InsertBalance(ctx context.Context, db *gorm.DB, b *creditsdomain.CreditBalance) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO credit_balances (id, org_id, customer_id, product_id, balance, consumed, granted, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID,
		b.OrgID,
		b.CustomerID,
		b.ProductID,
		b.Balance,
		b.Consumed,
		b.Granted,
		b.UpdatedAt,
	).Error
}

func (r *repo) UpdateBalanceGuarded(ctx context.Context, db *gorm.DB, observed, updated *creditsdomain.CreditBalance) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE credit_balances
		 SET balance = ?, consumed = ?, granted = ?, updated_at = ?
		 WHERE id = ? AND balance = ? AND consumed = ? AND granted = ?`,
		updated.Balance,
		updated.Consumed,
		updated.Granted,
		updated.UpdatedAt,
		observed.ID,
		observed.Balance,
		observed.Consumed,
		observed.Granted,
	)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *repo) InsertTransaction(ctx context.Context, db *gorm.DB, t *creditsdomain.CreditTransaction) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO credit_transactions (id, org_id, customer_id, product_id, type, amount, balance_before, balance_after, reason, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID,
		t.OrgID,
		t.CustomerID,
		t.ProductID,
		t.Type,
		t.Amount,
		t.BalanceBefore,
		t.BalanceAfter,
		t.Reason,
		t.Metadata,
		t.CreatedAt,
	).Error
}

func (r *repo) ListTransactions(ctx context.Context, db *gorm.DB, filter creditsdomain.TransactionFilter) ([]creditsdomain.CreditTransaction, error) {
	query := `SELECT id, org_id, customer_id, product_id, type, amount, balance_before, balance_after, reason, metadata, created_at
		 FROM credit_transactions WHERE org_id = ? AND customer_id = ?`
	args := []any{filter.OrgID, filter.CustomerID}

	if filter.ProductID != 0 {
		query += ` AND product_id = ?`
		args = append(args, filter.ProductID)
	}
	if filter.CursorID != 0 {
		query += ` AND (created_at < ? OR (created_at = ? AND id < ?))`
		args = append(args, filter.CursorCreatedAt, filter.CursorCreatedAt, filter.CursorID)
	}

	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, filter.Limit)

	var transactions []creditsdomain.CreditTransaction
	err := db.WithContext(ctx).Raw(query, args...).Scan(&transactions).Error
	if err != nil {
		return nil, err
	}
	return transactions, nil
}
