// Package gatewayevents keeps the audit trail of inbound payment gateway notifications.
package gatewayevents

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/clubemecanico/courses-backend/pkg/db/models"
	"github.com/clubemecanico/courses-backend/pkg/enums"
)

// Result is the final disposition written back to the event row.
type Result struct {
	Status  enums.GatewayEventStatus
	Outcome string
	OrderID *int64
	Err     error
}

type Repository interface {
	Record(ctx context.Context, event *models.PaymentGatewayEvent) error
	Finish(ctx context.Context, id int64, result Result, now time.Time) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Record(ctx context.Context, event *models.PaymentGatewayEvent) error {
	if event.Status == "" {
		event.Status = enums.GatewayEventReceived
	}
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *repository) Finish(ctx context.Context, id int64, result Result, now time.Time) error {
	updates := map[string]any{
		"status":       result.Status,
		"processed_at": now.UTC(),
	}
	if result.Outcome != "" {
		updates["outcome"] = result.Outcome
	}
	if result.OrderID != nil {
		updates["order_id"] = *result.OrderID
	}
	if result.Err != nil {
		msg := result.Err.Error()
		if len(msg) > 1024 {
			msg = msg[:1024]
		}
		updates["error"] = msg
	}
	return r.db.WithContext(ctx).
		Model(&models.PaymentGatewayEvent{}).
		Where("id = ?", id).
		Updates(updates).Error
}
