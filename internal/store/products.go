package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/glowmart/checkout/internal/database"
	"github.com/glowmart/checkout/internal/models"
)

func CreateProduct(ctx context.Context, db *sql.DB, salonID int64, name string, priceCents int64, discountPct, stock int) (*models.Product, error) {
	product := &models.Product{}

	query := `
		INSERT INTO products (salon_id, name, price_cents, discount_pct, available_quantity, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		RETURNING id, salon_id, name, price_cents, discount_pct, available_quantity, created_at, updated_at`

	err := db.QueryRowContext(ctx, query, salonID, name, priceCents, discountPct, stock).Scan(
		&product.ID,
		&product.SalonID,
		&product.Name,
		&product.PriceCents,
		&product.DiscountPct,
		&product.AvailableQuantity,
		&product.CreatedAt,
		&product.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}

	return product, nil
}

func GetProduct(ctx context.Context, db *sql.DB, id int64) (*models.Product, error) {
	product := &models.Product{}

	query := `
		SELECT id, salon_id, name, price_cents, discount_pct, available_quantity, created_at, updated_at
		FROM products
		WHERE id = $1`

	err := db.QueryRowContext(ctx, query, id).Scan(
		&product.ID,
		&product.SalonID,
		&product.Name,
		&product.PriceCents,
		&product.DiscountPct,
		&product.AvailableQuantity,
		&product.CreatedAt,
		&product.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}

	return product, nil
}

// ValidateStock re-checks every cart line against live stock inside the
// checkout transaction. The row locks it takes are held until commit, so a
// concurrent checkout for the same product waits behind this one. A check
// against the cart snapshot alone would race between check and decrement.
func ValidateStock(ctx context.Context, tx *sql.Tx, lines []models.CartLine) error {
	for _, line := range lines {
		var name string
		var available int

		err := tx.QueryRowContext(ctx,
			`SELECT name, available_quantity
			 FROM products
			 WHERE id = $1
			 FOR UPDATE`,
			line.ProductID).Scan(&name, &available)
		if err != nil {
			if err == sql.ErrNoRows {
				return fmt.Errorf("product %d: %w", line.ProductID, database.ErrProductNotFound)
			}
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == "55P03" {
				return database.ErrLockTimeout
			}
			return fmt.Errorf("lock product %d: %w", line.ProductID, err)
		}

		if available < line.Quantity {
			return &database.InsufficientStockError{
				ProductName: name,
				Available:   available,
				Requested:   line.Quantity,
			}
		}
	}

	return nil
}

// DecrementStock applies the conditioned decrement: it only succeeds when
// the guard holds at write time, so two checkouts racing for the last unit
// can never both pass even under read-committed isolation. Zero affected
// rows means a concurrent checkout consumed the stock after validation.
func DecrementStock(ctx context.Context, tx *sql.Tx, line models.CartLine) error {
	result, err := tx.ExecContext(ctx,
		`UPDATE products
		 SET available_quantity = available_quantity - $1,
		     updated_at = NOW()
		 WHERE id = $2
		   AND available_quantity >= $1`,
		line.Quantity, line.ProductID)
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return stockShortfall(ctx, tx, line)
	}

	return nil
}

// stockShortfall reads the current quantity so the failure names the exact
// shortfall even when raised by the decrement rather than the validator.
func stockShortfall(ctx context.Context, tx *sql.Tx, line models.CartLine) error {
	var name string
	var available int
	err := tx.QueryRowContext(ctx,
		`SELECT name, available_quantity FROM products WHERE id = $1`,
		line.ProductID).Scan(&name, &available)
	if err != nil {
		if err == sql.ErrNoRows {
			return fmt.Errorf("product %d: %w", line.ProductID, database.ErrProductNotFound)
		}
		return fmt.Errorf("read shortfall for product %d: %w", line.ProductID, err)
	}
	return &database.InsufficientStockError{
		ProductName: name,
		Available:   available,
		Requested:   line.Quantity,
	}
}

// RestockProduct is the only path that increases available_quantity.
func RestockProduct(ctx context.Context, db *sql.DB, productID int64, quantity int) (*models.Product, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("restock quantity must be positive, got %d", quantity)
	}

	product := &models.Product{}
	err := database.WithRetry(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			`UPDATE products
			 SET available_quantity = available_quantity + $1,
			     updated_at = NOW()
			 WHERE id = $2
			 RETURNING id, salon_id, name, price_cents, discount_pct, available_quantity, created_at, updated_at`,
			quantity, productID).Scan(
			&product.ID,
			&product.SalonID,
			&product.Name,
			&product.PriceCents,
			&product.DiscountPct,
			&product.AvailableQuantity,
			&product.CreatedAt,
			&product.UpdatedAt,
		)
		if err != nil {
			if err == sql.ErrNoRows {
				return database.ErrProductNotFound
			}
			return fmt.Errorf("restock product: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return product, nil
}

func ListProducts(ctx context.Context, db *sql.DB, page, pageSize int) (*OffsetPage, error) {
	var total int64
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count products: %w", err)
	}

	offset := (page - 1) * pageSize
	query := `
		SELECT id, salon_id, name, price_cents, discount_pct, available_quantity, created_at, updated_at
		FROM products
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`

	rows, err := db.QueryContext(ctx, query, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		var product models.Product
		err := rows.Scan(
			&product.ID,
			&product.SalonID,
			&product.Name,
			&product.PriceCents,
			&product.DiscountPct,
			&product.AvailableQuantity,
			&product.CreatedAt,
			&product.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, product)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return &OffsetPage{
		Items:      products,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages(total, pageSize),
	}, nil
}
