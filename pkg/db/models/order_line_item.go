package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderLineItem captures the price and name of a course at checkout time.
type OrderLineItem struct {
	ID             int64           `gorm:"column:id;primaryKey;autoIncrement"`
	OrderID        int64           `gorm:"column:order_id;not null"`
	CourseID       int64           `gorm:"column:course_id;not null"`
	ClassSessionID *int64          `gorm:"column:class_session_id"`
	CourseName     string          `gorm:"column:course_name;not null"`
	UnitPrice      decimal.Decimal `gorm:"column:unit_price;type:numeric(12,2);not null"`
	Quantity       int             `gorm:"column:quantity;not null;default:1"`
	CreatedAt      time.Time       `gorm:"column:created_at;autoCreateTime"`
}
