package reconciliation

import (
	"encoding/json"
	"errors"

	"github.com/clubemecanico/courses-backend/pkg/enums"
)

// Outcome labels how a notification was handled. Values feed the event log and metrics.
type Outcome string

const (
	OutcomeApplied          Outcome = "applied"
	OutcomeUnchanged        Outcome = "unchanged"
	OutcomeStale            Outcome = "stale"
	OutcomeIgnored          Outcome = "ignored"
	OutcomeDuplicate        Outcome = "duplicate"
	OutcomeOrderNotFound    Outcome = "order_not_found"
	OutcomeInvalidReference Outcome = "invalid_reference"
	OutcomeSeatsExhausted   Outcome = "seats_exhausted"
	OutcomeFailed           Outcome = "failed"
)

var (
	// ErrInvalidReference means the payment's external reference is not one of our order ids.
	ErrInvalidReference = errors.New("invalid external reference")
	// ErrSeatsExhausted means strict seat policy held back an approval.
	ErrSeatsExhausted = errors.New("class session seats exhausted")
)

const notificationTypePayment = "payment"

// Notification is a decoded gateway webhook.
type Notification struct {
	ID         string
	Type       string
	Action     string
	ResourceID string
	Raw        json.RawMessage
	Headers    map[string]string
}

// Result summarizes one HandleNotification call.
type Result struct {
	Outcome Outcome
	OrderID int64
	From    enums.OrderStatus
	Status  enums.OrderStatus
}

func (r Result) eventStatus() enums.GatewayEventStatus {
	switch r.Outcome {
	case OutcomeApplied, OutcomeUnchanged, OutcomeSeatsExhausted:
		return enums.GatewayEventProcessed
	case OutcomeFailed, OutcomeInvalidReference:
		return enums.GatewayEventFailed
	default:
		return enums.GatewayEventIgnored
	}
}
