package integration

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/glowmart/checkout/internal/events"
	"github.com/glowmart/checkout/internal/models"
	"github.com/glowmart/checkout/internal/store"
)

type memoryPublisher struct {
	mu       sync.Mutex
	messages []events.Record
	fail     bool
}

func (p *memoryPublisher) Publish(ctx context.Context, topic, key string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("broker unavailable")
	}
	p.messages = append(p.messages, events.Record{Topic: topic, Key: key, Payload: payload})
	return nil
}

func (p *memoryPublisher) Close() error { return nil }

func TestCheckoutStagesOutboxEvent(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	const customerID = int64(401)

	product, err := store.CreateProduct(ctx, db, 1, "Peony Hand Cream", 1100, 0, 6)
	if err != nil {
		t.Fatalf("Create product: %v", err)
	}
	if _, err := store.AddCartLine(ctx, db, customerID, product.ID, 2); err != nil {
		t.Fatalf("Add cart line: %v", err)
	}
	lines, _ := store.GetCartLines(ctx, db, customerID)

	coordinator := newCoordinator(db, &stubAuthorizer{})
	conf, err := coordinator.Process(ctx, checkoutRequest(customerID, lines, models.PaymentCreditCard))
	if err != nil {
		t.Fatalf("Process checkout: %v", err)
	}

	pending, err := events.FetchPending(ctx, db, 10)
	if err != nil {
		t.Fatalf("Fetch pending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("Expected 1 pending event, got %d", len(pending))
	}

	var evt events.OrderConfirmed
	if err := json.Unmarshal(pending[0].Payload, &evt); err != nil {
		t.Fatalf("Unmarshal payload: %v", err)
	}
	if evt.OrderID != conf.OrderID || evt.CustomerID != customerID {
		t.Errorf("Event does not match order: %+v", evt)
	}
	if evt.AmountCents != conf.AmountCents {
		t.Errorf("Expected event amount %d, got %d", conf.AmountCents, evt.AmountCents)
	}
}

func TestRelayDrainsAndMarksSent(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	const customerID = int64(402)

	product, err := store.CreateProduct(ctx, db, 1, "Jasmine Mist", 900, 0, 6)
	if err != nil {
		t.Fatalf("Create product: %v", err)
	}
	if _, err := store.AddCartLine(ctx, db, customerID, product.ID, 1); err != nil {
		t.Fatalf("Add cart line: %v", err)
	}
	lines, _ := store.GetCartLines(ctx, db, customerID)

	coordinator := newCoordinator(db, &stubAuthorizer{})
	if _, err := coordinator.Process(ctx, checkoutRequest(customerID, lines, models.PaymentPaypal)); err != nil {
		t.Fatalf("Process checkout: %v", err)
	}

	pub := &memoryPublisher{}
	relay := events.NewRelay(db, pub, quietLogger(), time.Second, 10)

	if err := relay.Drain(ctx); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if len(pub.messages) != 1 {
		t.Fatalf("Expected 1 published message, got %d", len(pub.messages))
	}
	if pub.messages[0].Topic != "order.confirmed" {
		t.Errorf("Expected topic order.confirmed, got %s", pub.messages[0].Topic)
	}

	// Drained records stay drained.
	if err := relay.Drain(ctx); err != nil {
		t.Fatalf("Second drain: %v", err)
	}
	if len(pub.messages) != 1 {
		t.Errorf("Expected no re-publication, got %d messages", len(pub.messages))
	}

	pending, err := events.FetchPending(ctx, db, 10)
	if err != nil {
		t.Fatalf("Fetch pending: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("Expected no pending events, got %d", len(pending))
	}
}

func TestRelayKeepsRecordOnPublishFailure(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	const customerID = int64(403)

	product, err := store.CreateProduct(ctx, db, 1, "Neroli Body Oil", 1300, 0, 6)
	if err != nil {
		t.Fatalf("Create product: %v", err)
	}
	if _, err := store.AddCartLine(ctx, db, customerID, product.ID, 1); err != nil {
		t.Fatalf("Add cart line: %v", err)
	}
	lines, _ := store.GetCartLines(ctx, db, customerID)

	coordinator := newCoordinator(db, &stubAuthorizer{})
	if _, err := coordinator.Process(ctx, checkoutRequest(customerID, lines, models.PaymentPaypal)); err != nil {
		t.Fatalf("Process checkout: %v", err)
	}

	pub := &memoryPublisher{fail: true}
	relay := events.NewRelay(db, pub, quietLogger(), time.Second, 10)

	if err := relay.Drain(ctx); err == nil {
		t.Fatal("Drain should surface the publish failure")
	}

	pending, err := events.FetchPending(ctx, db, 10)
	if err != nil {
		t.Fatalf("Fetch pending: %v", err)
	}
	if len(pending) != 1 {
		t.Errorf("Record must stay pending after a failed publish, got %d", len(pending))
	}
}
