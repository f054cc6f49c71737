package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/clubemecanico/courses-backend/pkg/enums"
)

// Order aggregates the courses bought in one checkout at captured prices.
type Order struct {
	ID           int64             `gorm:"column:id;primaryKey;autoIncrement"`
	OrderNumber  string            `gorm:"column:order_number;not null;uniqueIndex"`
	UserID       int64             `gorm:"column:user_id;not null"`
	Subtotal     decimal.Decimal   `gorm:"column:subtotal;type:numeric(12,2);not null"`
	Discount     decimal.Decimal   `gorm:"column:discount;type:numeric(12,2);not null"`
	Total        decimal.Decimal   `gorm:"column:total;type:numeric(12,2);not null"`
	CouponCode   *string           `gorm:"column:coupon_code"`
	Status       enums.OrderStatus `gorm:"column:status;not null;default:'pendente'"`
	PreferenceID *string           `gorm:"column:preference_id"`
	CheckoutURL  *string           `gorm:"column:checkout_url"`
	CreatedAt    time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time         `gorm:"column:updated_at;autoUpdateTime"`

	LineItems []OrderLineItem `gorm:"foreignKey:OrderID"`
	Payment   *Payment        `gorm:"foreignKey:OrderID"`
}
