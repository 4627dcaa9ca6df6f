package integration

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/glowmart/checkout/internal/models"
	"github.com/glowmart/checkout/internal/payment"
	"github.com/glowmart/checkout/internal/pricing"
	"github.com/glowmart/checkout/internal/store"
)

func setupTestDB(t *testing.T) (*sql.DB, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:14-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "testuser",
			"POSTGRES_PASSWORD": "testpass",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	postgres, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start postgres container: %v", err)
	}

	host, err := postgres.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := postgres.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	dsn := fmt.Sprintf("postgres://testuser:testpass@%s:%s/testdb?sslmode=disable", host, port.Port())

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("Failed to connect to database: %v", err)
	}

	if err := db.Ping(); err != nil {
		t.Fatalf("Failed to ping database: %v", err)
	}

	if err := runMigrations(db); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanup := func() {
		if err := db.Close(); err != nil {
			t.Logf("Failed to close database: %v", err)
		}
		if err := postgres.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	}

	return db, cleanup
}

func runMigrations(db *sql.DB) error {
	migrationDir := "../../migrations"
	files, err := os.ReadDir(migrationDir)
	if err != nil {
		return fmt.Errorf("read migration directory: %w", err)
	}

	var migrationFiles []string
	for _, file := range files {
		if !file.IsDir() && strings.HasSuffix(file.Name(), ".up.sql") {
			migrationFiles = append(migrationFiles, file.Name())
		}
	}

	sort.Strings(migrationFiles)

	for _, filename := range migrationFiles {
		content, err := os.ReadFile(filepath.Join(migrationDir, filename))
		if err != nil {
			return fmt.Errorf("read migration file %s: %w", filename, err)
		}

		if _, err := db.Exec(string(content)); err != nil {
			return fmt.Errorf("execute migration %s: %w", filename, err)
		}
	}

	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubAuthorizer makes payment outcomes deterministic so tests can inject
// failures at the exact point between stock validation and persistence.
type stubAuthorizer struct {
	err   error
	calls atomic.Int64
}

func (a *stubAuthorizer) Authorize(ctx context.Context, details models.PaymentDetails, amountCents int64) (payment.Authorization, error) {
	n := a.calls.Add(1)
	if a.err != nil {
		return payment.Authorization{}, a.err
	}
	return payment.Authorization{
		Reference:    fmt.Sprintf("PAY-TEST-%d", n),
		AuthorizedAt: time.Now(),
	}, nil
}

func newCoordinator(db *sql.DB, authorizer payment.Authorizer) *store.Coordinator {
	return store.NewCoordinator(db, authorizer, pricing.DefaultRules(), quietLogger(), "order.confirmed")
}

func checkoutRequest(customerID int64, lines []models.CartLine, paymentType models.PaymentType) *store.CheckoutRequest {
	method, _ := models.PaymentMethodByType(paymentType)
	req := &store.CheckoutRequest{
		CustomerID:      customerID,
		CustomerName:    "Leila Haddad",
		CustomerEmail:   "leila@example.com",
		CustomerPhone:   "+33123456789",
		DeliveryAddress: "12 Rue des Lilas, Lyon",
		Payment: models.PaymentDetails{
			Method:      method,
			CardNumber:  "4242424242424242",
			CardHolder:  "Leila Haddad",
			ExpiryMonth: 12,
			ExpiryYear:  2030,
			CVV:         "123",
		},
		Lines:       lines,
		OTPVerified: true,
	}
	return req
}

func countRows(t *testing.T, db *sql.DB, query string, args ...any) int {
	t.Helper()
	var n int
	if err := db.QueryRow(query, args...).Scan(&n); err != nil {
		t.Fatalf("count query %q: %v", query, err)
	}
	return n
}

func productStock(t *testing.T, db *sql.DB, productID int64) int {
	t.Helper()
	var stock int
	if err := db.QueryRow(`SELECT available_quantity FROM products WHERE id = $1`, productID).Scan(&stock); err != nil {
		t.Fatalf("read stock: %v", err)
	}
	return stock
}
