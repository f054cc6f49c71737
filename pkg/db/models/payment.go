package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/clubemecanico/courses-backend/pkg/enums"
)

// Payment tracks the external payment lifecycle of an order (one per order).
type Payment struct {
	ID                  int64               `gorm:"column:id;primaryKey;autoIncrement"`
	OrderID             int64               `gorm:"column:order_id;not null;uniqueIndex"`
	Method              enums.PaymentMethod `gorm:"column:method;not null"`
	Status              enums.OrderStatus   `gorm:"column:status;not null;default:'pendente'"`
	GatewayStatus       *string             `gorm:"column:gateway_status"`
	GatewayStatusDetail *string             `gorm:"column:gateway_status_detail"`
	PaymentType         *string             `gorm:"column:payment_type"`
	ExternalPaymentID   *string             `gorm:"column:external_payment_id"`
	TransactionID       *string             `gorm:"column:transaction_id"`
	Amount              decimal.Decimal     `gorm:"column:amount;type:numeric(12,2);not null"`
	Installments        *int                `gorm:"column:installments"`
	CardBrand           *string             `gorm:"column:card_brand"`
	CardLastFour        *string             `gorm:"column:card_last_four"`
	PaidAt              *time.Time          `gorm:"column:paid_at"`
	ExpiresAt           *time.Time          `gorm:"column:expires_at"`
	CreatedAt           time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// IsExpired reports whether a pending pix/boleto payment is past its expiry at now.
func (p Payment) IsExpired(now time.Time) bool {
	if p.Status != enums.OrderStatusPending || p.ExpiresAt == nil || !p.Method.Expires() {
		return false
	}
	return now.After(*p.ExpiresAt)
}
