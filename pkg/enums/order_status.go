package enums

import (
	"fmt"
	"strings"
)

// OrderStatus is the combined order/payment lifecycle shared by checkout and
// reconciliation. Stored values are the lower-case Portuguese labels used by the
// storefront.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pendente"
	OrderStatusProcessing OrderStatus = "em_processamento"
	OrderStatusApproved   OrderStatus = "aprovado"
	OrderStatusCancelled  OrderStatus = "cancelado"
	OrderStatusRefunded   OrderStatus = "reembolsado"
	OrderStatusExpired    OrderStatus = "expirado"
	OrderStatusUnknown    OrderStatus = "desconhecido"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusProcessing,
	OrderStatusApproved,
	OrderStatusCancelled,
	OrderStatusRefunded,
	OrderStatusExpired,
	OrderStatusUnknown,
}

// gatewayStatuses is the only place raw gateway status strings are interpreted.
var gatewayStatuses = map[string]OrderStatus{
	"approved":     OrderStatusApproved,
	"pending":      OrderStatusPending,
	"in_process":   OrderStatusProcessing,
	"in_mediation": OrderStatusProcessing,
	"cancelled":    OrderStatusCancelled,
	"rejected":     OrderStatusCancelled,
	"refunded":     OrderStatusRefunded,
	"charged_back": OrderStatusRefunded,
}

// String implements fmt.Stringer.
func (s OrderStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known OrderStatus.
func (s OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether reconciliation treats the status as settled.
// desconhecido stays open: a gateway status we cannot map must not block a later approval.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusUnknown:
		return false
	default:
		return true
	}
}

// CanTransitionTo reports whether moving from s to next keeps terminal states monotonic.
// Repeating the current status is not a transition and returns false.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	if s == next || !next.IsValid() {
		return false
	}
	if !s.IsTerminal() {
		return next != OrderStatusExpired || s == OrderStatusPending
	}
	switch s {
	case OrderStatusApproved:
		return next == OrderStatusRefunded
	case OrderStatusCancelled, OrderStatusExpired:
		return next == OrderStatusApproved || next == OrderStatusRefunded
	default:
		return false
	}
}

// ParseOrderStatus converts raw input into an OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	for _, candidate := range validOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}

// MapGatewayStatus translates a payment gateway status into the internal status.
// Unmapped values yield OrderStatusUnknown.
func MapGatewayStatus(raw string) OrderStatus {
	if status, ok := gatewayStatuses[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return status
	}
	return OrderStatusUnknown
}
