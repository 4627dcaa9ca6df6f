package pricing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glowmart/checkout/internal/models"
)

var testNow = time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

func line(price int64, discount, qty int) models.CartLine {
	return models.CartLine{PriceCents: price, DiscountPct: discount, Quantity: qty}
}

func methodOf(t *testing.T, pt models.PaymentType) *models.PaymentMethod {
	t.Helper()
	m, ok := models.PaymentMethodByType(pt)
	require.True(t, ok, "payment method %s missing from catalog", pt)
	return &m
}

func TestCalculateBaseline(t *testing.T) {
	s := Calculate([]models.CartLine{line(1000, 0, 2)}, methodOf(t, models.PaymentCreditCard), DefaultRules(), testNow)

	assert.Equal(t, int64(2000), s.SubtotalCents)
	assert.Equal(t, int64(0), s.DiscountCents)
	assert.Equal(t, int64(0), s.DeliveryFeeCents)
	assert.Equal(t, int64(0), s.ProcessingFeeCents)
	assert.Equal(t, int64(40), s.TaxCents)
	assert.Equal(t, int64(2040), s.TotalCents)
	assert.Equal(t, 2, s.ItemCount)
	assert.Equal(t, testNow.AddDate(0, 0, 4), s.EstimatedDelivery)
}

func TestCalculateTotalInvariant(t *testing.T) {
	carts := [][]models.CartLine{
		{line(999, 0, 1)},
		{line(1000, 10, 2), line(2550, 0, 1)},
		{line(333, 15, 3), line(799, 7, 2), line(120, 0, 5)},
		{line(150000, 25, 1)},
	}

	for _, m := range models.PaymentMethods {
		m := m
		for _, cart := range carts {
			s := Calculate(cart, &m, DefaultRules(), testNow)

			want := s.SubtotalCents - s.DiscountCents + s.DeliveryFeeCents + s.ProcessingFeeCents + s.TaxCents
			assert.Equal(t, want, s.TotalCents, "invariant broken for %s cart %+v", m.Type, cart)
			assert.Equal(t, m.ProcessingFeeCents, s.ProcessingFeeCents)
		}
	}
}

func TestCalculatePerLineDiscount(t *testing.T) {
	// 10% of 1000 over 2 units plus 50% of 400 over 1 unit.
	s := Calculate([]models.CartLine{line(1000, 10, 2), line(400, 50, 1)}, nil, DefaultRules(), testNow)

	assert.Equal(t, int64(2400), s.SubtotalCents)
	assert.Equal(t, int64(400), s.DiscountCents)
}

func TestCalculateTaxRounding(t *testing.T) {
	rules := DefaultRules()

	// taxable 1025 -> 20.5 -> rounds up to 21
	s := Calculate([]models.CartLine{line(1025, 0, 1)}, nil, rules, testNow)
	assert.Equal(t, int64(21), s.TaxCents)

	// taxable 1020 -> 20.4 -> rounds down to 20
	s = Calculate([]models.CartLine{line(1020, 0, 1)}, nil, rules, testNow)
	assert.Equal(t, int64(20), s.TaxCents)
}

func TestCalculateFreeDeliveryBoundary(t *testing.T) {
	rules := DefaultRules()

	at := Calculate([]models.CartLine{line(rules.FreeDeliveryOverCents, 0, 1)}, nil, rules, testNow)
	assert.Equal(t, int64(0), at.DeliveryFeeCents, "at the threshold delivery is free")

	below := Calculate([]models.CartLine{line(rules.FreeDeliveryOverCents-1, 0, 1)}, nil, rules, testNow)
	assert.Equal(t, rules.DeliveryFeeCents, below.DeliveryFeeCents, "one unit below pays the flat fee")
}

func TestCalculateNoMethodNoProcessingFee(t *testing.T) {
	s := Calculate([]models.CartLine{line(500, 0, 1)}, nil, DefaultRules(), testNow)
	assert.Equal(t, int64(0), s.ProcessingFeeCents)
}

func TestCalculateEmptyCart(t *testing.T) {
	s := Calculate(nil, methodOf(t, models.PaymentPaypal), DefaultRules(), testNow)

	assert.Zero(t, s.SubtotalCents)
	assert.Zero(t, s.TotalCents)
	assert.Zero(t, s.ItemCount)
}

func TestLineTotal(t *testing.T) {
	assert.Equal(t, int64(2000), LineTotal(line(1000, 0, 2)))
	assert.Equal(t, int64(1800), LineTotal(line(1000, 10, 2)))
}
