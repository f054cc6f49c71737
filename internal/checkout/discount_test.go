package checkout

import (
	"regexp"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func TestCouponPolicyEvaluate(t *testing.T) {
	policy := CouponPolicy{Code: "BEMVINDO10", Percent: 10}

	assert.Equal(t, "10.00", policy.Evaluate("BEMVINDO10", d("100.00")).StringFixed(2))
	assert.Equal(t, "10.00", policy.Evaluate(" bemvindo10 ", d("100.00")).StringFixed(2))
	assert.Equal(t, "3.33", policy.Evaluate("BEMVINDO10", d("33.33")).StringFixed(2))
	assert.True(t, policy.Evaluate("OUTRO", d("100.00")).IsZero())
	assert.True(t, policy.Evaluate("", d("100.00")).IsZero())
	assert.True(t, CouponPolicy{Code: "X", Percent: 0}.Evaluate("X", d("10")).IsZero())
}

func TestClampDiscount(t *testing.T) {
	assert.Equal(t, "0.00", clampDiscount(d("-5"), d("10")).StringFixed(2))
	assert.Equal(t, "9.99", clampDiscount(d("10"), d("10")).StringFixed(2))
	assert.Equal(t, "9.99", clampDiscount(d("50"), d("10")).StringFixed(2))
	assert.Equal(t, "2.50", clampDiscount(d("2.5"), d("10")).StringFixed(2))
}

func TestAllocateDiscountKeepsTotal(t *testing.T) {
	prices := []decimal.Decimal{d("50.00"), d("30.00"), d("19.90")}
	discount := d("9.99")

	out := allocateDiscount(prices, discount)
	require.Len(t, out, 3)

	sum := decimal.Zero
	for _, p := range out {
		require.True(t, p.IsPositive())
		sum = sum.Add(p)
	}
	require.Equal(t, "89.91", sum.StringFixed(2))
	require.Equal(t, "45.00", out[0].StringFixed(2))
}

func TestAllocateDiscountWithoutDiscount(t *testing.T) {
	prices := []decimal.Decimal{d("50.00"), d("30.00")}
	out := allocateDiscount(prices, decimal.Zero)
	require.Equal(t, prices, out)
}

func TestNewOrderNumberFormat(t *testing.T) {
	now := time.Date(2026, 3, 1, 14, 5, 9, 0, time.UTC)
	number := NewOrderNumber(now)
	require.Regexp(t, regexp.MustCompile(`^PED-20260301140509-[0-9A-F]{6}$`), number)
	require.NotEqual(t, number, NewOrderNumber(now))
}
