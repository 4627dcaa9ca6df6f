package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/glowmart/checkout/internal/database"
	"github.com/glowmart/checkout/internal/events"
	"github.com/glowmart/checkout/internal/models"
	"github.com/glowmart/checkout/internal/payment"
	"github.com/glowmart/checkout/internal/pricing"
)

// ValidationError is a pre-transactional rejection: a required field was
// missing or malformed, so no transaction was opened and nothing needs
// rolling back.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

var errIdempotencyRace = errors.New("idempotency key race")

// CheckoutRequest is everything one checkout attempt needs. Lines is the
// cart snapshot priced against; the acting customer is explicit on every
// request. IdempotencyKey is client-generated; a repeated key replays the
// original confirmation instead of charging again.
type CheckoutRequest struct {
	CustomerID    int64
	CustomerName  string
	CustomerEmail string
	CustomerPhone string

	DeliveryAddress  string
	DeliveryNotes    string
	DeliveryTimePref string

	Payment models.PaymentDetails
	Lines   []models.CartLine

	IdempotencyKey string
	OTPVerified    bool
	OTPSessionID   string
}

func (r *CheckoutRequest) Validate() error {
	switch {
	case r.CustomerID <= 0:
		return &ValidationError{Field: "customer_id", Reason: "required"}
	case strings.TrimSpace(r.CustomerName) == "":
		return &ValidationError{Field: "customer_name", Reason: "required"}
	case strings.TrimSpace(r.CustomerEmail) == "":
		return &ValidationError{Field: "customer_email", Reason: "required"}
	case strings.TrimSpace(r.DeliveryAddress) == "":
		return &ValidationError{Field: "delivery_address", Reason: "required"}
	case len(r.Lines) == 0:
		return &ValidationError{Field: "cart", Reason: "cart is empty"}
	}

	for _, line := range r.Lines {
		if line.ProductID <= 0 || line.Quantity <= 0 {
			return &ValidationError{Field: "cart", Reason: "each line needs a product and a positive quantity"}
		}
	}

	method, ok := models.PaymentMethodByType(r.Payment.Method.Type)
	if !ok {
		return &ValidationError{Field: "payment_method", Reason: "unknown or unavailable payment method"}
	}
	// Re-resolve against the catalog so a tampered processing fee in the
	// request body can not change the charged amount.
	r.Payment.Method = method

	if method.RequiresCardDetails {
		if r.Payment.CardNumber == "" || r.Payment.CardHolder == "" || r.Payment.CVV == "" {
			return &ValidationError{Field: "payment_details", Reason: "card details required"}
		}
	}
	if method.RequiresOTP && !r.OTPVerified {
		return &ValidationError{Field: "otp", Reason: "phone verification required before payment"}
	}

	return nil
}

// Coordinator turns a cart snapshot into a committed order. All writes of a
// checkout happen in one transaction: stock re-validation, the order and its
// items, the conditioned decrement, the cart clear and the outbox record
// commit together or not at all. Payment is authorized after stock is
// confirmed and before any row is written, so a decline never has anything
// to undo.
type Coordinator struct {
	db         *sql.DB
	authorizer payment.Authorizer
	rules      pricing.Rules
	log        *slog.Logger
	orderTopic string

	now func() time.Time
}

func NewCoordinator(db *sql.DB, authorizer payment.Authorizer, rules pricing.Rules, log *slog.Logger, orderTopic string) *Coordinator {
	return &Coordinator{
		db:         db,
		authorizer: authorizer,
		rules:      rules,
		log:        log,
		orderTopic: orderTopic,
		now:        time.Now,
	}
}

// Summary prices the request's cart snapshot without side effects; the same
// computation feeds live cart totals and the persisted order amount.
func (c *Coordinator) Summary(req *CheckoutRequest) models.OrderSummary {
	var method *models.PaymentMethod
	if m, ok := models.PaymentMethodByType(req.Payment.Method.Type); ok {
		method = &m
	}
	return pricing.Calculate(req.Lines, method, c.rules, c.now())
}

// Process runs one checkout attempt to commit or rollback.
func (c *Coordinator) Process(ctx context.Context, req *CheckoutRequest) (*models.OrderConfirmation, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if req.IdempotencyKey != "" {
		if conf, ok, err := c.replay(ctx, req); err != nil {
			return nil, err
		} else if ok {
			c.log.Info("checkout replayed",
				"customer_id", req.CustomerID,
				"idempotency_key", req.IdempotencyKey,
				"order_id", conf.OrderID)
			return conf, nil
		}
	}

	summary := pricing.Calculate(req.Lines, &req.Payment.Method, c.rules, c.now())

	var order models.Order
	var auth payment.Authorization

	// No automatic retry here: a serialization failure after a successful
	// authorization must surface instead of re-charging the customer.
	err := database.WithTransaction(ctx, c.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		if err := ValidateStock(ctx, tx, req.Lines); err != nil {
			return err
		}

		var err error
		auth, err = c.authorizer.Authorize(ctx, req.Payment, summary.TotalCents)
		if err != nil {
			return err
		}

		order, err = insertOrder(ctx, tx, req, summary, auth)
		if err != nil {
			return err
		}

		for _, line := range req.Lines {
			if err := insertOrderItem(ctx, tx, order.ID, line); err != nil {
				return err
			}
			// Defense in depth: even with the validator's row locks, the
			// write itself only applies while the guard holds.
			if err := DecrementStock(ctx, tx, line); err != nil {
				return err
			}
		}

		if err := ClearCart(ctx, tx, req.CustomerID); err != nil {
			return err
		}

		if req.IdempotencyKey != "" {
			if err := recordAttempt(ctx, tx, req.IdempotencyKey, req.CustomerID, order.ID); err != nil {
				return err
			}
		}

		return events.InsertTx(ctx, tx, uuid.NewString(), c.orderTopic,
			fmt.Sprintf("order-%d", order.ID), events.OrderConfirmed{
				EventID:     uuid.NewString(),
				OrderID:     order.ID,
				CustomerID:  order.CustomerID,
				PaymentType: order.PaymentType,
				AmountCents: order.AmountCents,
				IsPaid:      order.IsPaid,
				ItemCount:   summary.ItemCount,
				OccurredAt:  c.now().UTC(),
			})
	})
	if err != nil {
		if errors.Is(err, errIdempotencyRace) {
			// A concurrent attempt with the same key committed first; hand
			// back its confirmation.
			if conf, ok, rErr := c.replay(ctx, req); rErr == nil && ok {
				return conf, nil
			}
			return nil, fmt.Errorf("resolve idempotency race: %w", err)
		}
		c.log.Warn("checkout aborted",
			"customer_id", req.CustomerID,
			"error", err)
		return nil, err
	}

	conf := c.confirmation(&order, req.Lines, summary)
	c.log.Info("checkout committed",
		"customer_id", req.CustomerID,
		"order_id", order.ID,
		"amount_cents", order.AmountCents,
		"payment_type", order.PaymentType)
	return conf, nil
}

func insertOrder(ctx context.Context, tx *sql.Tx, req *CheckoutRequest, summary models.OrderSummary, auth payment.Authorization) (models.Order, error) {
	order := models.Order{
		CustomerID:      req.CustomerID,
		Description:     orderDescription(req.Lines),
		PaymentType:     req.Payment.Method.Type,
		AmountCents:     summary.TotalCents,
		IsPaid:          !req.Payment.Method.DefersPayment(),
		PaymentRef:      auth.Reference,
		TrackingRef:     newTrackingRef(),
		DeliveryAddress: req.DeliveryAddress,
		DeliveryNotes:   req.DeliveryNotes,
	}

	err := tx.QueryRowContext(ctx,
		`INSERT INTO orders (customer_id, description, payment_type, amount_cents, is_paid,
		                     payment_ref, tracking_ref, delivery_address, delivery_notes, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), NOW())
		 RETURNING id, created_at`,
		order.CustomerID, order.Description, order.PaymentType, order.AmountCents, order.IsPaid,
		order.PaymentRef, order.TrackingRef, order.DeliveryAddress, order.DeliveryNotes).
		Scan(&order.ID, &order.CreatedAt)
	if err != nil {
		return models.Order{}, fmt.Errorf("create order: %w", err)
	}

	return order, nil
}

func insertOrderItem(ctx context.Context, tx *sql.Tx, orderID int64, line models.CartLine) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO order_items (order_id, product_id, quantity, unit_price_cents, line_total_cents, created_at)
		 VALUES ($1, $2, $3, $4, $5, NOW())`,
		orderID, line.ProductID, line.Quantity, line.PriceCents, pricing.LineTotal(line))
	if err != nil {
		return fmt.Errorf("create order item: %w", err)
	}
	return nil
}

func recordAttempt(ctx context.Context, tx *sql.Tx, key string, customerID, orderID int64) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO checkout_attempts (idempotency_key, customer_id, order_id, created_at)
		 VALUES ($1, $2, $3, NOW())`,
		key, customerID, orderID)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return errIdempotencyRace
		}
		return fmt.Errorf("record checkout attempt: %w", err)
	}
	return nil
}

// replay returns the confirmation of a previously committed attempt with the
// same idempotency key, if any.
func (c *Coordinator) replay(ctx context.Context, req *CheckoutRequest) (*models.OrderConfirmation, bool, error) {
	var orderID int64
	err := c.db.QueryRowContext(ctx,
		`SELECT order_id FROM checkout_attempts
		 WHERE idempotency_key = $1 AND customer_id = $2`,
		req.IdempotencyKey, req.CustomerID).Scan(&orderID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("lookup checkout attempt: %w", err)
	}

	order, err := GetOrder(ctx, c.db, orderID)
	if err != nil {
		return nil, false, fmt.Errorf("load replayed order: %w", err)
	}

	conf := &models.OrderConfirmation{
		OrderID:           order.ID,
		OrderNumber:       order.OrderNumber(),
		PaymentStatus:     paymentStatus(order.IsPaid),
		PaymentRef:        order.PaymentRef,
		Status:            models.OrderStatusConfirmed,
		TrackingRef:       order.TrackingRef,
		AmountCents:       order.AmountCents,
		EstimatedDelivery: order.CreatedAt.AddDate(0, 0, c.rules.DeliveryDays),
		Replayed:          true,
	}
	for _, item := range order.Items {
		conf.Items = append(conf.Items, models.ConfirmationItem{
			ProductID:      item.ProductID,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
			LineTotalCents: item.LineTotalCents,
		})
	}
	return conf, true, nil
}

func (c *Coordinator) confirmation(order *models.Order, lines []models.CartLine, summary models.OrderSummary) *models.OrderConfirmation {
	conf := &models.OrderConfirmation{
		OrderID:           order.ID,
		OrderNumber:       order.OrderNumber(),
		PaymentStatus:     paymentStatus(order.IsPaid),
		PaymentRef:        order.PaymentRef,
		Status:            models.OrderStatusConfirmed,
		TrackingRef:       order.TrackingRef,
		AmountCents:       order.AmountCents,
		EstimatedDelivery: summary.EstimatedDelivery,
	}
	for _, line := range lines {
		conf.Items = append(conf.Items, models.ConfirmationItem{
			ProductID:      line.ProductID,
			ProductName:    line.ProductName,
			Quantity:       line.Quantity,
			UnitPriceCents: line.PriceCents,
			LineTotalCents: pricing.LineTotal(line),
		})
	}
	return conf
}

func paymentStatus(isPaid bool) string {
	if isPaid {
		return models.PaymentStatusPaid
	}
	return models.PaymentStatusDueOnDelivery
}

func orderDescription(lines []models.CartLine) string {
	names := make([]string, 0, len(lines))
	for _, line := range lines {
		names = append(names, line.ProductName)
	}
	desc := strings.Join(names, ", ")
	if len(desc) > 240 {
		desc = desc[:237] + "..."
	}
	return desc
}

func newTrackingRef() string {
	return "TRK-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
}
