package models

import (
	"fmt"
	"time"
)

type Product struct {
	ID                int64     `json:"id"`
	SalonID           int64     `json:"salon_id"`
	Name              string    `json:"name"`
	PriceCents        int64     `json:"price_cents"`
	DiscountPct       int       `json:"discount_pct"`
	AvailableQuantity int       `json:"available_quantity"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// CartLine is the denormalized cart snapshot used for one checkout attempt.
// Name, price and discount are copied from the product at add time; only
// available_quantity is re-read live during checkout.
type CartLine struct {
	ID          int64     `json:"id"`
	CustomerID  int64     `json:"customer_id"`
	ProductID   int64     `json:"product_id"`
	ProductName string    `json:"product_name"`
	Quantity    int       `json:"quantity"`
	PriceCents  int64     `json:"price_cents"`
	DiscountPct int       `json:"discount_pct"`
	CreatedAt   time.Time `json:"created_at"`
}

type PaymentType string

const (
	PaymentCreditCard     PaymentType = "credit_card"
	PaymentDebitCard      PaymentType = "debit_card"
	PaymentPaypal         PaymentType = "paypal"
	PaymentBankTransfer   PaymentType = "bank_transfer"
	PaymentCashOnDelivery PaymentType = "cash_on_delivery"
)

// PaymentMethod is a static catalog entry, not user data.
type PaymentMethod struct {
	Type                PaymentType `json:"type"`
	Label               string      `json:"label"`
	ProcessingFeeCents  int64       `json:"processing_fee_cents"`
	Enabled             bool        `json:"enabled"`
	RequiresCardDetails bool        `json:"requires_card_details"`
	RequiresOTP         bool        `json:"requires_otp"`
}

// DefersPayment reports whether the method leaves the order unpaid at commit
// time (settled on delivery instead of at authorization).
func (m PaymentMethod) DefersPayment() bool {
	return m.Type == PaymentCashOnDelivery
}

// PaymentMethods is the fixed catalog offered at checkout.
var PaymentMethods = []PaymentMethod{
	{Type: PaymentCreditCard, Label: "Credit Card", ProcessingFeeCents: 0, Enabled: true, RequiresCardDetails: true, RequiresOTP: true},
	{Type: PaymentDebitCard, Label: "Debit Card", ProcessingFeeCents: 0, Enabled: true, RequiresCardDetails: true, RequiresOTP: true},
	{Type: PaymentPaypal, Label: "PayPal", ProcessingFeeCents: 250, Enabled: true},
	{Type: PaymentBankTransfer, Label: "Bank Transfer", ProcessingFeeCents: 150, Enabled: true},
	{Type: PaymentCashOnDelivery, Label: "Cash on Delivery", ProcessingFeeCents: 100, Enabled: true},
}

// PaymentMethodByType looks a method up in the static catalog.
func PaymentMethodByType(t PaymentType) (PaymentMethod, bool) {
	for _, m := range PaymentMethods {
		if m.Type == t && m.Enabled {
			return m, true
		}
	}
	return PaymentMethod{}, false
}

// PaymentDetails carries the chosen method plus card fields for card types.
// Card fields are consumed by the authorization call only and are never
// written to the order record.
type PaymentDetails struct {
	Method      PaymentMethod `json:"method"`
	CardNumber  string        `json:"card_number,omitempty"`
	CardHolder  string        `json:"card_holder,omitempty"`
	ExpiryMonth int           `json:"expiry_month,omitempty"`
	ExpiryYear  int           `json:"expiry_year,omitempty"`
	CVV         string        `json:"cvv,omitempty"`
}

// OrderSummary is the computed pricing breakdown, all amounts in integer
// minor units. Invariant: Total = Subtotal - Discount + DeliveryFee +
// ProcessingFee + Tax.
type OrderSummary struct {
	SubtotalCents      int64     `json:"subtotal_cents"`
	DiscountCents      int64     `json:"discount_cents"`
	DeliveryFeeCents   int64     `json:"delivery_fee_cents"`
	ProcessingFeeCents int64     `json:"processing_fee_cents"`
	TaxCents           int64     `json:"tax_cents"`
	TotalCents         int64     `json:"total_cents"`
	ItemCount          int       `json:"item_count"`
	EstimatedDelivery  time.Time `json:"estimated_delivery"`
}

type Order struct {
	ID              int64       `json:"id"`
	CustomerID      int64       `json:"customer_id"`
	Description     string      `json:"description"`
	PaymentType     PaymentType `json:"payment_type"`
	AmountCents     int64       `json:"amount_cents"`
	IsPaid          bool        `json:"is_paid"`
	PaymentRef      string      `json:"payment_ref,omitempty"`
	TrackingRef     string      `json:"tracking_ref"`
	DeliveryAddress string      `json:"delivery_address"`
	DeliveryNotes   string      `json:"delivery_notes,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	Items           []OrderItem `json:"items,omitempty"`
}

// OrderNumber derives the customer-facing order number from the row identity.
// Orders carry no separate number column.
func (o *Order) OrderNumber() string {
	return fmt.Sprintf("ORD-%s-%06d", o.CreatedAt.UTC().Format("20060102"), o.ID)
}

type OrderItem struct {
	ID             int64     `json:"id"`
	OrderID        int64     `json:"order_id"`
	ProductID      int64     `json:"product_id"`
	Quantity       int       `json:"quantity"`
	UnitPriceCents int64     `json:"unit_price_cents"`
	LineTotalCents int64     `json:"line_total_cents"`
	CreatedAt      time.Time `json:"created_at"`
}

// ConfirmationItem is the per-line projection returned to the client.
type ConfirmationItem struct {
	ProductID      int64  `json:"product_id"`
	ProductName    string `json:"product_name"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	LineTotalCents int64  `json:"line_total_cents"`
}

// OrderConfirmation is a response-only projection built after a successful
// commit. It is never persisted as its own entity.
type OrderConfirmation struct {
	OrderID           int64              `json:"order_id"`
	OrderNumber       string             `json:"order_number"`
	PaymentStatus     string             `json:"payment_status"`
	PaymentRef        string             `json:"payment_ref,omitempty"`
	Status            string             `json:"status"`
	TrackingRef       string             `json:"tracking_ref"`
	AmountCents       int64              `json:"amount_cents"`
	EstimatedDelivery time.Time          `json:"estimated_delivery"`
	Items             []ConfirmationItem `json:"items"`
	Replayed          bool               `json:"replayed,omitempty"`
}

const (
	PaymentStatusPaid          = "paid"
	PaymentStatusDueOnDelivery = "due_on_delivery"

	OrderStatusConfirmed = "confirmed"
)
