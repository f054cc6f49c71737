package orders

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/clubemecanico/courses-backend/pkg/db/models"
	"github.com/clubemecanico/courses-backend/pkg/enums"
)

// LineItemDTO is the public view of an order line.
type LineItemDTO struct {
	CourseID       int64           `json:"courseId"`
	ClassSessionID *int64          `json:"classSessionId,omitempty"`
	CourseName     string          `json:"courseName"`
	UnitPrice      decimal.Decimal `json:"unitPrice"`
	Quantity       int             `json:"quantity"`
}

// PaymentDTO is the public view of the payment record.
type PaymentDTO struct {
	Method        enums.PaymentMethod `json:"method"`
	Status        enums.OrderStatus   `json:"status"`
	GatewayStatus *string             `json:"gatewayStatus,omitempty"`
	Amount        decimal.Decimal     `json:"amount"`
	Installments  *int                `json:"installments,omitempty"`
	CardLastFour  *string             `json:"cardLastFour,omitempty"`
	PaidAt        *time.Time          `json:"paidAt,omitempty"`
	ExpiresAt     *time.Time          `json:"expiresAt,omitempty"`
}

// OrderDTO is the full order returned by checkout and the order detail endpoint.
type OrderDTO struct {
	ID          int64             `json:"id"`
	OrderNumber string            `json:"orderNumber"`
	Status      enums.OrderStatus `json:"status"`
	Subtotal    decimal.Decimal   `json:"subtotal"`
	Discount    decimal.Decimal   `json:"discount"`
	Total       decimal.Decimal   `json:"total"`
	CouponCode  *string           `json:"couponCode,omitempty"`
	CheckoutURL *string           `json:"checkoutUrl,omitempty"`
	LineItems   []LineItemDTO     `json:"lineItems"`
	Payment     *PaymentDTO       `json:"payment,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
}

// OrderSummary is one row of the order history.
type OrderSummary struct {
	ID            int64               `json:"id"`
	OrderNumber   string              `json:"orderNumber"`
	Status        enums.OrderStatus   `json:"status"`
	Total         decimal.Decimal     `json:"total"`
	PaymentMethod enums.PaymentMethod `json:"paymentMethod,omitempty"`
	CreatedAt     time.Time           `json:"createdAt"`
}

// OrderList is a cursor page of order summaries.
type OrderList struct {
	Orders     []OrderSummary `json:"orders"`
	NextCursor string         `json:"nextCursor,omitempty"`
}

// PaymentStatusDTO answers the payment-status poll of the storefront.
type PaymentStatusDTO struct {
	OrderID       int64               `json:"orderId"`
	OrderNumber   string              `json:"orderNumber"`
	Status        enums.OrderStatus   `json:"status"`
	PaymentStatus enums.OrderStatus   `json:"paymentStatus"`
	Method        enums.PaymentMethod `json:"method"`
	CheckoutURL   *string             `json:"checkoutUrl,omitempty"`
	ExpiresAt     *time.Time          `json:"expiresAt,omitempty"`
	PaidAt        *time.Time          `json:"paidAt,omitempty"`
}

// ToDTO maps an order with its preloaded associations.
func ToDTO(order *models.Order) *OrderDTO {
	if order == nil {
		return nil
	}
	dto := &OrderDTO{
		ID:          order.ID,
		OrderNumber: order.OrderNumber,
		Status:      order.Status,
		Subtotal:    order.Subtotal,
		Discount:    order.Discount,
		Total:       order.Total,
		CouponCode:  order.CouponCode,
		CheckoutURL: order.CheckoutURL,
		LineItems:   make([]LineItemDTO, 0, len(order.LineItems)),
		CreatedAt:   order.CreatedAt,
	}
	for _, item := range order.LineItems {
		dto.LineItems = append(dto.LineItems, LineItemDTO{
			CourseID:       item.CourseID,
			ClassSessionID: item.ClassSessionID,
			CourseName:     item.CourseName,
			UnitPrice:      item.UnitPrice,
			Quantity:       item.Quantity,
		})
	}
	if p := order.Payment; p != nil {
		dto.Payment = &PaymentDTO{
			Method:        p.Method,
			Status:        p.Status,
			GatewayStatus: p.GatewayStatus,
			Amount:        p.Amount,
			Installments:  p.Installments,
			CardLastFour:  p.CardLastFour,
			PaidAt:        p.PaidAt,
			ExpiresAt:     p.ExpiresAt,
		}
	}
	return dto
}

func summaryFromModel(order models.Order) OrderSummary {
	summary := OrderSummary{
		ID:          order.ID,
		OrderNumber: order.OrderNumber,
		Status:      order.Status,
		Total:       order.Total,
		CreatedAt:   order.CreatedAt,
	}
	if order.Payment != nil {
		summary.PaymentMethod = order.Payment.Method
	}
	return summary
}
