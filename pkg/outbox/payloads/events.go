package payloads

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/clubemecanico/courses-backend/pkg/enums"
)

// OrderLine is the purchase summary carried by order events.
type OrderLine struct {
	CourseID       int64           `json:"courseId"`
	ClassSessionID *int64          `json:"classSessionId,omitempty"`
	CourseName     string          `json:"courseName"`
	UnitPrice      decimal.Decimal `json:"unitPrice"`
}

// OrderCreatedEvent is emitted when checkout persists a new order.
type OrderCreatedEvent struct {
	OrderID     int64               `json:"orderId"`
	OrderNumber string              `json:"orderNumber"`
	UserID      int64               `json:"userId"`
	Total       decimal.Decimal     `json:"total"`
	Method      enums.PaymentMethod `json:"method"`
	LineCount   int                 `json:"lineCount"`
}

// OrderStatusChangedEvent records every accepted status transition.
type OrderStatusChangedEvent struct {
	OrderID     int64             `json:"orderId"`
	OrderNumber string            `json:"orderNumber"`
	UserID      int64             `json:"userId"`
	From        enums.OrderStatus `json:"from"`
	To          enums.OrderStatus `json:"to"`
	Source      string            `json:"source"`
}

// OrderPaidEvent drives the purchase confirmation email.
type OrderPaidEvent struct {
	OrderID           int64           `json:"orderId"`
	OrderNumber       string          `json:"orderNumber"`
	UserID            int64           `json:"userId"`
	Subtotal          decimal.Decimal `json:"subtotal"`
	Discount          decimal.Decimal `json:"discount"`
	Total             decimal.Decimal `json:"total"`
	ExternalPaymentID string          `json:"externalPaymentId,omitempty"`
	PaidAt            time.Time       `json:"paidAt"`
	Lines             []OrderLine     `json:"lines"`
}

// OrderExpiredEvent is emitted when a pix/boleto window lapses or an orphan order is swept.
type OrderExpiredEvent struct {
	OrderID     int64     `json:"orderId"`
	OrderNumber string    `json:"orderNumber"`
	UserID      int64     `json:"userId"`
	ExpiredAt   time.Time `json:"expiredAt"`
	Reason      string    `json:"reason"`
}

// SeatsExhaustedEvent alerts operators that a paid order could not take a seat.
type SeatsExhaustedEvent struct {
	OrderID        int64  `json:"orderId"`
	OrderNumber    string `json:"orderNumber"`
	UserID         int64  `json:"userId"`
	ClassSessionID int64  `json:"classSessionId"`
	CourseID       int64  `json:"courseId"`
	Strict         bool   `json:"strict"`
}

// OrderRef returns the public order number, used as a message attribute.
func (e *OrderCreatedEvent) OrderRef() string { return e.OrderNumber }

func (e *OrderStatusChangedEvent) OrderRef() string { return e.OrderNumber }

func (e *OrderPaidEvent) OrderRef() string { return e.OrderNumber }

func (e *OrderExpiredEvent) OrderRef() string { return e.OrderNumber }

func (e *SeatsExhaustedEvent) OrderRef() string { return e.OrderNumber }
