package enums

import (
	"fmt"
	"strings"
)

// PaymentMethod describes how a buyer intends to settle an order.
type PaymentMethod string

const (
	PaymentMethodPix         PaymentMethod = "pix"
	PaymentMethodCreditCard  PaymentMethod = "credit_card"
	PaymentMethodBoleto      PaymentMethod = "boleto"
	PaymentMethodMercadoPago PaymentMethod = "mercadopago"
)

var validPaymentMethods = []PaymentMethod{
	PaymentMethodPix,
	PaymentMethodCreditCard,
	PaymentMethodBoleto,
	PaymentMethodMercadoPago,
}

// String implements fmt.Stringer.
func (p PaymentMethod) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentMethod.
func (p PaymentMethod) IsValid() bool {
	for _, candidate := range validPaymentMethods {
		if candidate == p {
			return true
		}
	}
	return false
}

// Expires reports whether payments made with the method carry an expiry window.
func (p PaymentMethod) Expires() bool {
	return p == PaymentMethodPix || p == PaymentMethodBoleto
}

// ParsePaymentMethod converts raw input into a PaymentMethod.
func ParsePaymentMethod(value string) (PaymentMethod, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validPaymentMethods {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment method %q", value)
}
