package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/clubemecanico/courses-backend/pkg/enums"
)

// PaymentGatewayEvent is the audit row kept for every inbound gateway notification.
type PaymentGatewayEvent struct {
	ID             int64                    `gorm:"column:id;primaryKey;autoIncrement"`
	Provider       string                   `gorm:"column:provider;not null"`
	Topic          string                   `gorm:"column:topic;not null;default:''"`
	ResourceID     string                   `gorm:"column:resource_id;not null;default:''"`
	NotificationID *string                  `gorm:"column:notification_id"`
	Payload        datatypes.JSON           `gorm:"column:payload;type:jsonb;not null"`
	Headers        datatypes.JSON           `gorm:"column:headers;type:jsonb"`
	Status         enums.GatewayEventStatus `gorm:"column:status;not null;default:'received'"`
	Outcome        *string                  `gorm:"column:outcome"`
	Error          *string                  `gorm:"column:error"`
	OrderID        *int64                   `gorm:"column:order_id"`
	ReceivedAt     time.Time                `gorm:"column:received_at;autoCreateTime"`
	ProcessedAt    *time.Time               `gorm:"column:processed_at"`
}
