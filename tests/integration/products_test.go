package integration

import (
	"context"
	"errors"
	"testing"

	"github.com/glowmart/checkout/internal/database"
	"github.com/glowmart/checkout/internal/models"
	"github.com/glowmart/checkout/internal/store"
)

func TestCreateAndGetProduct(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	created, err := store.CreateProduct(ctx, db, 3, "Vitamin C Toner", 1890, 15, 12)
	if err != nil {
		t.Fatalf("Create product: %v", err)
	}
	if created.ID == 0 {
		t.Error("Product ID should not be 0")
	}

	got, err := store.GetProduct(ctx, db, created.ID)
	if err != nil {
		t.Fatalf("Get product: %v", err)
	}
	if got.Name != "Vitamin C Toner" || got.PriceCents != 1890 || got.DiscountPct != 15 || got.AvailableQuantity != 12 {
		t.Errorf("Unexpected product: %+v", got)
	}

	if _, err := store.GetProduct(ctx, db, 99999); !errors.Is(err, database.ErrProductNotFound) {
		t.Errorf("Expected product not found, got: %v", err)
	}
}

func TestRestockProduct(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	product, err := store.CreateProduct(ctx, db, 1, "Shea Butter Balm", 950, 0, 2)
	if err != nil {
		t.Fatalf("Create product: %v", err)
	}

	restocked, err := store.RestockProduct(ctx, db, product.ID, 10)
	if err != nil {
		t.Fatalf("Restock product: %v", err)
	}
	if restocked.AvailableQuantity != 12 {
		t.Errorf("Expected quantity 12, got %d", restocked.AvailableQuantity)
	}

	if _, err := store.RestockProduct(ctx, db, product.ID, 0); err == nil {
		t.Error("Restock with non-positive quantity must fail")
	}
	if _, err := store.RestockProduct(ctx, db, 99999, 5); !errors.Is(err, database.ErrProductNotFound) {
		t.Errorf("Expected product not found, got: %v", err)
	}
}

func TestListProductsPagination(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := store.CreateProduct(ctx, db, 1, "Bulk Product", 100, 0, 1); err != nil {
			t.Fatalf("Create product %d: %v", i, err)
		}
	}

	page, err := store.ListProducts(ctx, db, 1, 2)
	if err != nil {
		t.Fatalf("List products: %v", err)
	}
	if page.Total != 5 {
		t.Errorf("Expected total 5, got %d", page.Total)
	}
	if page.TotalPages != 3 {
		t.Errorf("Expected 3 pages, got %d", page.TotalPages)
	}
	if products, ok := page.Items.([]models.Product); !ok || len(products) != 2 {
		t.Errorf("Expected 2 products on page 1, got %+v", page.Items)
	}
}
