package enums

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapGatewayStatus(t *testing.T) {
	cases := map[string]OrderStatus{
		"approved":     OrderStatusApproved,
		"pending":      OrderStatusPending,
		"in_process":   OrderStatusProcessing,
		"in_mediation": OrderStatusProcessing,
		"cancelled":    OrderStatusCancelled,
		"rejected":     OrderStatusCancelled,
		"refunded":     OrderStatusRefunded,
		"charged_back": OrderStatusRefunded,
		"APPROVED":     OrderStatusApproved,
		" Rejected ":   OrderStatusCancelled,
		"authorized":   OrderStatusUnknown,
		"":             OrderStatusUnknown,
		"something":    OrderStatusUnknown,
	}
	for raw, want := range cases {
		assert.Equal(t, want, MapGatewayStatus(raw), "gateway status %q", raw)
	}
}

func TestOrderStatusTerminalSet(t *testing.T) {
	for _, status := range []OrderStatus{OrderStatusPending, OrderStatusProcessing, OrderStatusUnknown} {
		assert.False(t, status.IsTerminal(), string(status))
	}
	for _, status := range []OrderStatus{OrderStatusApproved, OrderStatusCancelled, OrderStatusRefunded, OrderStatusExpired} {
		assert.True(t, status.IsTerminal(), string(status))
	}
}

func TestCanTransitionToNeverLeavesTerminalBackwards(t *testing.T) {
	terminal := []OrderStatus{OrderStatusApproved, OrderStatusCancelled, OrderStatusRefunded, OrderStatusExpired}
	backwards := []OrderStatus{OrderStatusPending, OrderStatusProcessing, OrderStatusUnknown}
	for _, from := range terminal {
		for _, to := range backwards {
			assert.False(t, from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
}

func TestCanTransitionToRules(t *testing.T) {
	cases := []struct {
		from, to OrderStatus
		want     bool
	}{
		{OrderStatusPending, OrderStatusApproved, true},
		{OrderStatusPending, OrderStatusProcessing, true},
		{OrderStatusPending, OrderStatusExpired, true},
		{OrderStatusProcessing, OrderStatusPending, true},
		{OrderStatusProcessing, OrderStatusExpired, false},
		{OrderStatusUnknown, OrderStatusApproved, true},
		{OrderStatusApproved, OrderStatusRefunded, true},
		{OrderStatusApproved, OrderStatusCancelled, false},
		{OrderStatusApproved, OrderStatusApproved, false},
		{OrderStatusCancelled, OrderStatusApproved, true},
		{OrderStatusExpired, OrderStatusApproved, true},
		{OrderStatusExpired, OrderStatusCancelled, false},
		{OrderStatusRefunded, OrderStatusApproved, false},
		{OrderStatusPending, OrderStatus("bogus"), false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.from.CanTransitionTo(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestUnknownStatusStaysOpen(t *testing.T) {
	unknown := MapGatewayStatus("authorized")
	require.Equal(t, OrderStatusUnknown, unknown)
	require.False(t, unknown.IsTerminal())
	require.True(t, unknown.CanTransitionTo(OrderStatusApproved))
	require.True(t, unknown.CanTransitionTo(OrderStatusCancelled))
	require.True(t, OrderStatusPending.CanTransitionTo(unknown))
	require.False(t, OrderStatusApproved.CanTransitionTo(unknown))
}

func TestParseOrderStatus(t *testing.T) {
	status, err := ParseOrderStatus("aprovado")
	require.NoError(t, err)
	require.Equal(t, OrderStatusApproved, status)

	_, err = ParseOrderStatus("approved")
	require.Error(t, err)
}

func TestParsePaymentMethod(t *testing.T) {
	method, err := ParsePaymentMethod(" PIX ")
	require.NoError(t, err)
	require.Equal(t, PaymentMethodPix, method)
	require.True(t, method.Expires())
	require.False(t, PaymentMethodCreditCard.Expires())

	_, err = ParsePaymentMethod("cash")
	require.Error(t, err)
}
