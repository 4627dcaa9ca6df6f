package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/glowmart/checkout/internal/database"
	"github.com/glowmart/checkout/internal/models"
)

func GetOrder(ctx context.Context, db *sql.DB, id int64) (*models.Order, error) {
	order := &models.Order{}

	query := `
		SELECT id, customer_id, description, payment_type, amount_cents, is_paid,
		       COALESCE(payment_ref, ''), tracking_ref, delivery_address, COALESCE(delivery_notes, ''), created_at
		FROM orders
		WHERE id = $1`

	err := db.QueryRowContext(ctx, query, id).Scan(
		&order.ID,
		&order.CustomerID,
		&order.Description,
		&order.PaymentType,
		&order.AmountCents,
		&order.IsPaid,
		&order.PaymentRef,
		&order.TrackingRef,
		&order.DeliveryAddress,
		&order.DeliveryNotes,
		&order.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	items, err := getOrderItems(ctx, db, id)
	if err != nil {
		return nil, err
	}
	order.Items = items

	return order, nil
}

func getOrderItems(ctx context.Context, db *sql.DB, orderID int64) ([]models.OrderItem, error) {
	query := `
		SELECT id, order_id, product_id, quantity, unit_price_cents, line_total_cents, created_at
		FROM order_items
		WHERE order_id = $1
		ORDER BY id`

	rows, err := db.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order items: %w", err)
	}
	defer rows.Close()

	var items []models.OrderItem
	for rows.Next() {
		var item models.OrderItem
		err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&item.Quantity,
			&item.UnitPriceCents,
			&item.LineTotalCents,
			&item.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return items, nil
}

func ListOrdersCursor(ctx context.Context, db *sql.DB, customerID int64, cursor string, limit int) (*CursorPage, error) {
	cursorData, err := DecodeCursor(cursor)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}

	query := `
		SELECT id, customer_id, description, payment_type, amount_cents, is_paid,
		       COALESCE(payment_ref, ''), tracking_ref, delivery_address, COALESCE(delivery_notes, ''), created_at
		FROM orders
		WHERE customer_id = $1
		  AND (created_at, id) < ($2, $3)
		ORDER BY created_at DESC, id DESC
		LIMIT $4`

	rows, err := db.QueryContext(ctx, query, customerID, cursorData.CreatedAt, cursorData.ID, limit+1)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		var order models.Order
		err := rows.Scan(
			&order.ID,
			&order.CustomerID,
			&order.Description,
			&order.PaymentType,
			&order.AmountCents,
			&order.IsPaid,
			&order.PaymentRef,
			&order.TrackingRef,
			&order.DeliveryAddress,
			&order.DeliveryNotes,
			&order.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	hasMore := len(orders) > limit
	if hasMore {
		orders = orders[:limit]
	}

	var nextCursor string
	if hasMore && len(orders) > 0 {
		lastOrder := orders[len(orders)-1]
		nextCursor = EncodeCursor(OrderCursor{
			CreatedAt: lastOrder.CreatedAt,
			ID:        lastOrder.ID,
		})
	}

	return &CursorPage{
		Items:      orders,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

// TrackingEvent is one entry in the synthetic status timeline of the
// tracking projection. Fulfilment runs outside this system, so the timeline
// is derived from the order's age, not persisted.
type TrackingEvent struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Reached   bool      `json:"reached"`
}

// TrackingTimeline projects a committed order onto its delivery stages.
func TrackingTimeline(order *models.Order, now time.Time) []TrackingEvent {
	stages := []struct {
		status string
		after  time.Duration
	}{
		{"confirmed", 0},
		{"preparing", 12 * time.Hour},
		{"shipped", 24 * time.Hour},
		{"out_for_delivery", 72 * time.Hour},
		{"delivered", 96 * time.Hour},
	}

	events := make([]TrackingEvent, 0, len(stages))
	for _, stage := range stages {
		at := order.CreatedAt.Add(stage.after)
		events = append(events, TrackingEvent{
			Status:    stage.status,
			Timestamp: at,
			Reached:   !at.After(now),
		})
	}
	return events
}
