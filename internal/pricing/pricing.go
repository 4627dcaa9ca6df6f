// Package pricing computes the order summary for a cart snapshot. It is
// pure: no I/O, safe to call on every cart mutation for live totals, and it
// is the single source of the amount persisted on the order.
package pricing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/glowmart/checkout/internal/config"
	"github.com/glowmart/checkout/internal/models"
)

// Rules are the pricing constants. TaxRateBps is basis points (200 = 2%).
type Rules struct {
	TaxRateBps            int64
	FreeDeliveryOverCents int64
	DeliveryFeeCents      int64
	DeliveryDays          int
}

func DefaultRules() Rules {
	return Rules{
		TaxRateBps:            200,
		FreeDeliveryOverCents: 2000,
		DeliveryFeeCents:      500,
		DeliveryDays:          4,
	}
}

func RulesFromConfig(cfg config.PricingConfig) Rules {
	return Rules{
		TaxRateBps:            cfg.TaxRateBps,
		FreeDeliveryOverCents: cfg.FreeDeliveryOverCents,
		DeliveryFeeCents:      cfg.DeliveryFeeCents,
		DeliveryDays:          cfg.DeliveryDays,
	}
}

var oneHundred = decimal.NewFromInt(100)

// Calculate builds the summary for the given cart lines and payment method.
// method may be nil before the customer has picked one; the processing fee is
// then zero. Discounts are applied per line so per-product discount
// percentages keep their granularity; tax is rounded to the nearest minor
// unit, half away from zero.
func Calculate(lines []models.CartLine, method *models.PaymentMethod, rules Rules, now time.Time) models.OrderSummary {
	summary := models.OrderSummary{
		EstimatedDelivery: now.AddDate(0, 0, rules.DeliveryDays),
	}
	if len(lines) == 0 {
		return summary
	}

	var subtotal int64
	discount := decimal.Zero
	for _, line := range lines {
		qty := int64(line.Quantity)
		subtotal += line.PriceCents * qty

		if line.DiscountPct > 0 {
			lineDiscount := decimal.NewFromInt(line.PriceCents * int64(line.DiscountPct) * qty).
				Div(oneHundred).
				Round(0)
			discount = discount.Add(lineDiscount)
		}

		summary.ItemCount += line.Quantity
	}

	summary.SubtotalCents = subtotal
	summary.DiscountCents = discount.IntPart()

	if subtotal < rules.FreeDeliveryOverCents {
		summary.DeliveryFeeCents = rules.DeliveryFeeCents
	}

	if method != nil {
		summary.ProcessingFeeCents = method.ProcessingFeeCents
	}

	taxable := subtotal - summary.DiscountCents
	summary.TaxCents = decimal.NewFromInt(taxable * rules.TaxRateBps).
		Div(decimal.NewFromInt(10000)).
		Round(0).
		IntPart()

	summary.TotalCents = summary.SubtotalCents -
		summary.DiscountCents +
		summary.DeliveryFeeCents +
		summary.ProcessingFeeCents +
		summary.TaxCents

	return summary
}

// LineTotal is the discounted per-line amount used for order items and
// confirmation projections.
func LineTotal(line models.CartLine) int64 {
	qty := int64(line.Quantity)
	gross := line.PriceCents * qty
	if line.DiscountPct == 0 {
		return gross
	}
	disc := decimal.NewFromInt(line.PriceCents * int64(line.DiscountPct) * qty).
		Div(oneHundred).
		Round(0).
		IntPart()
	return gross - disc
}
