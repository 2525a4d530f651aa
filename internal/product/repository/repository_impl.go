package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	productdomain "github.com/smallbiznis/creditrail/internal/product/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() productdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, p *productdomain.Product) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO products (id, org_id, name, billing_type, unit_divisor, units_per_credit, active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID,
		p.OrgID,
		p.Name,
		p.BillingType,
		p.UnitDivisor,
		p.UnitsPerCredit,
		p.Active,
		p.CreatedAt,
		p.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*productdomain.Product, error) {
	var product productdomain.Product
	err := db.WithContext(ctx).Raw(
		`SELECT id, org_id, name, billing_type, unit_divisor, units_per_credit, active, created_at, updated_at
		 FROM products WHERE org_id = ? AND id = ?`,
		orgID,
		id,
	).Scan(&product).Error
	if err != nil {
		return nil, err
	}
	if product.ID == 0 {
		return nil, nil
	}
	return &product, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]productdomain.Product, error) {
	var products []productdomain.Product
	err := db.WithContext(ctx).Raw(
		`SELECT id, org_id, name, billing_type, unit_divisor, units_per_credit, active, created_at, updated_at
		 FROM products WHERE org_id = ? ORDER BY created_at DESC`,
		orgID,
	).Scan(&products).Error
	if err != nil {
		return nil, err
	}
	return products, nil
}
