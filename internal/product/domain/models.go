package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// BillingType distinguishes how product usage is charged.
type BillingType string

const (
	BillingTypeMetered  BillingType = "metered"
	BillingTypeLicensed BillingType = "licensed"
)

// Product carries the billing configuration the credit engine reads.
type Product struct {
	ID             snowflake.ID `json:"id" gorm:"primaryKey"`
	OrgID          snowflake.ID `json:"organization_id" gorm:"column:org_id;not null;index"`
	Name           string       `json:"name" gorm:"type:text;not null"`
	BillingType    BillingType  `json:"billing_type" gorm:"type:text;not null"`
	UnitDivisor    *float64     `json:"unit_divisor" gorm:"column:unit_divisor"`
	UnitsPerCredit *float64     `json:"units_per_credit" gorm:"column:units_per_credit"`
	Active         bool         `json:"active" gorm:"not null;default:true"`
	CreatedAt      time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt      time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Product) TableName() string { return "products" }
