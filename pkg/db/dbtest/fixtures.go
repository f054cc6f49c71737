package dbtest

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/clubemecanico/courses-backend/pkg/db/models"
	"github.com/clubemecanico/courses-backend/pkg/enums"
)

var orderSeq atomic.Int64

// Course inserts an active course with the given price.
func Course(t testing.TB, conn *gorm.DB, name, price string) *models.Course {
	t.Helper()
	course := &models.Course{
		Name:   name,
		Price:  decimal.RequireFromString(price),
		Active: true,
	}
	if err := conn.Create(course).Error; err != nil {
		t.Fatalf("seed course: %v", err)
	}
	return course
}

// Session inserts an open class session for courseID with the given seats.
func Session(t testing.TB, conn *gorm.DB, courseID int64, total, available int) *models.ClassSession {
	t.Helper()
	start := time.Now().UTC().Add(7 * 24 * time.Hour)
	session := &models.ClassSession{
		CourseID:       courseID,
		StartsAt:       start,
		EndsAt:         start.Add(4 * time.Hour),
		Schedule:       "sab 08:00-12:00",
		Instructor:     "Carlos",
		TotalSeats:     total,
		AvailableSeats: available,
		Status:         enums.ClassSessionStatusOpen,
	}
	if err := conn.Create(session).Error; err != nil {
		t.Fatalf("seed class session: %v", err)
	}
	return session
}

// CartEntry inserts a cart entry for userID.
func CartEntry(t testing.TB, conn *gorm.DB, userID, courseID int64, sessionID *int64) *models.CartEntry {
	t.Helper()
	entry := &models.CartEntry{UserID: userID, CourseID: courseID, ClassSessionID: sessionID}
	if err := conn.Create(entry).Error; err != nil {
		t.Fatalf("seed cart entry: %v", err)
	}
	return entry
}

// Order inserts a pending order for userID with one line item per course and a payment record.
func Order(t testing.TB, conn *gorm.DB, userID int64, method enums.PaymentMethod, lines ...models.OrderLineItem) *models.Order {
	t.Helper()
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.UnitPrice)
	}
	order := &models.Order{
		OrderNumber: fmt.Sprintf("PED-%s-T%05d", time.Now().UTC().Format("20060102150405"), orderSeq.Add(1)),
		UserID:      userID,
		Subtotal:    total,
		Discount:    decimal.Zero,
		Total:       total,
		Status:      enums.OrderStatusPending,
	}
	if err := conn.Create(order).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}
	for i := range lines {
		lines[i].OrderID = order.ID
		if lines[i].Quantity == 0 {
			lines[i].Quantity = 1
		}
	}
	if len(lines) > 0 {
		if err := conn.Create(&lines).Error; err != nil {
			t.Fatalf("seed line items: %v", err)
		}
	}
	payment := &models.Payment{
		OrderID: order.ID,
		Method:  method,
		Status:  enums.OrderStatusPending,
		Amount:  total,
	}
	if err := conn.Create(payment).Error; err != nil {
		t.Fatalf("seed payment: %v", err)
	}
	order.LineItems = lines
	order.Payment = payment
	return order
}

// Line builds a line item for course at its catalogue price.
func Line(course *models.Course, sessionID *int64) models.OrderLineItem {
	return models.OrderLineItem{
		CourseID:       course.ID,
		ClassSessionID: sessionID,
		CourseName:     course.Name,
		UnitPrice:      course.Price,
		Quantity:       1,
	}
}
