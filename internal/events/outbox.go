// Package events carries committed checkout facts to the rest of the
// platform. Rows are written to the outbox table inside the checkout
// transaction, so an event exists if and only if its order does; a relay
// publishes pending rows to Kafka after the fact.
package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/glowmart/checkout/internal/models"
)

type Record struct {
	ID        int64           `json:"id"`
	EventID   string          `json:"event_id"`
	Topic     string          `json:"topic"`
	Key       string          `json:"key"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	SentAt    *time.Time      `json:"sent_at"`
}

// OrderConfirmed is the payload published after a successful checkout.
type OrderConfirmed struct {
	EventID     string             `json:"event_id"`
	OrderID     int64              `json:"order_id"`
	CustomerID  int64              `json:"customer_id"`
	PaymentType models.PaymentType `json:"payment_type"`
	AmountCents int64              `json:"amount_cents"`
	IsPaid      bool               `json:"is_paid"`
	ItemCount   int                `json:"item_count"`
	OccurredAt  time.Time          `json:"occurred_at"`
}

// InsertTx stages an event in the same transaction as the write it reports.
func InsertTx(ctx context.Context, tx *sql.Tx, eventID, topic, key string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal outbox payload: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO outbox (event_id, topic, key, payload, created_at)
		 VALUES ($1, $2, $3, $4, NOW())`,
		eventID, topic, key, data)
	if err != nil {
		return fmt.Errorf("insert outbox record: %w", err)
	}
	return nil
}

func FetchPending(ctx context.Context, db *sql.DB, limit int) ([]Record, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, event_id, topic, key, payload, created_at, sent_at
		 FROM outbox
		 WHERE sent_at IS NULL
		 ORDER BY id
		 LIMIT $1`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("fetch pending outbox records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.EventID, &rec.Topic, &rec.Key, &rec.Payload, &rec.CreatedAt, &rec.SentAt); err != nil {
			return nil, fmt.Errorf("scan outbox record: %w", err)
		}
		out = append(out, rec)
	}

	return out, rows.Err()
}

func MarkSent(ctx context.Context, db *sql.DB, id int64) error {
	if _, err := db.ExecContext(ctx,
		`UPDATE outbox SET sent_at = NOW() WHERE id = $1`, id); err != nil {
		return fmt.Errorf("mark outbox record sent: %w", err)
	}
	return nil
}
