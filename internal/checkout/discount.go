package checkout

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/clubemecanico/courses-backend/pkg/config"
)

var cent = decimal.New(1, -2)

// DiscountPolicy prices a coupon code against an order subtotal.
type DiscountPolicy interface {
	Evaluate(code string, subtotal decimal.Decimal) decimal.Decimal
}

// CouponPolicy grants a fixed percentage for a single configured code.
type CouponPolicy struct {
	Code    string
	Percent int
}

// NewCouponPolicy reads the coupon from checkout configuration.
func NewCouponPolicy(cfg config.CheckoutConfig) CouponPolicy {
	return CouponPolicy{Code: cfg.CouponCode, Percent: cfg.CouponPercent}
}

// Evaluate returns the discount for code, rounded to cents. Codes compare case-insensitively.
func (p CouponPolicy) Evaluate(code string, subtotal decimal.Decimal) decimal.Decimal {
	code = strings.TrimSpace(code)
	if code == "" || p.Percent <= 0 || !strings.EqualFold(code, strings.TrimSpace(p.Code)) {
		return decimal.Zero
	}
	return subtotal.Mul(decimal.NewFromInt(int64(p.Percent))).Div(decimal.NewFromInt(100)).Round(2)
}

// clampDiscount keeps the discount in [0, subtotal) so the order total stays positive.
func clampDiscount(discount, subtotal decimal.Decimal) decimal.Decimal {
	if discount.IsNegative() {
		return decimal.Zero
	}
	ceiling := subtotal.Sub(cent)
	if ceiling.IsNegative() {
		return decimal.Zero
	}
	if discount.GreaterThan(ceiling) {
		return ceiling
	}
	return discount.Round(2)
}

// allocateDiscount spreads discount across prices in proportion to each price so the
// discounted lines still sum to the order total. The rounding remainder lands on the last line.
func allocateDiscount(prices []decimal.Decimal, discount decimal.Decimal) []decimal.Decimal {
	out := make([]decimal.Decimal, len(prices))
	copy(out, prices)
	if len(prices) == 0 || !discount.IsPositive() {
		return out
	}
	subtotal := decimal.Zero
	for _, p := range prices {
		subtotal = subtotal.Add(p)
	}
	if !subtotal.IsPositive() {
		return out
	}
	remaining := discount
	for i, p := range prices {
		if i == len(prices)-1 {
			out[i] = p.Sub(remaining)
			break
		}
		share := discount.Mul(p).Div(subtotal).Round(2)
		out[i] = p.Sub(share)
		remaining = remaining.Sub(share)
	}
	return out
}
