package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/glowmart/checkout/internal/database"
	"github.com/glowmart/checkout/internal/models"
)

// AddCartLine upserts a cart line for the customer, capturing the product's
// current name, price and discount as the denormalized snapshot the checkout
// will price against. Adding the same product again accumulates quantity but
// refreshes the snapshot columns.
func AddCartLine(ctx context.Context, db *sql.DB, customerID, productID int64, quantity int) (*models.CartLine, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("cart quantity must be positive, got %d", quantity)
	}

	line := &models.CartLine{}
	err := database.WithRetry(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		product := models.Product{}
		err := tx.QueryRowContext(ctx,
			`SELECT id, name, price_cents, discount_pct FROM products WHERE id = $1`,
			productID).Scan(&product.ID, &product.Name, &product.PriceCents, &product.DiscountPct)
		if err != nil {
			if err == sql.ErrNoRows {
				return database.ErrProductNotFound
			}
			return fmt.Errorf("read product for cart: %w", err)
		}

		err = tx.QueryRowContext(ctx,
			`INSERT INTO cart_lines (customer_id, product_id, product_name, quantity, price_cents, discount_pct, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, NOW())
			 ON CONFLICT (customer_id, product_id) DO UPDATE
			 SET quantity = cart_lines.quantity + EXCLUDED.quantity,
			     product_name = EXCLUDED.product_name,
			     price_cents = EXCLUDED.price_cents,
			     discount_pct = EXCLUDED.discount_pct
			 RETURNING id, customer_id, product_id, product_name, quantity, price_cents, discount_pct, created_at`,
			customerID, productID, product.Name, quantity, product.PriceCents, product.DiscountPct).Scan(
			&line.ID,
			&line.CustomerID,
			&line.ProductID,
			&line.ProductName,
			&line.Quantity,
			&line.PriceCents,
			&line.DiscountPct,
			&line.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("upsert cart line: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return line, nil
}

// GetCartLines returns the customer's cart snapshot, oldest line first.
func GetCartLines(ctx context.Context, db *sql.DB, customerID int64) ([]models.CartLine, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, customer_id, product_id, product_name, quantity, price_cents, discount_pct, created_at
		 FROM cart_lines
		 WHERE customer_id = $1
		 ORDER BY created_at, id`,
		customerID)
	if err != nil {
		return nil, fmt.Errorf("list cart lines: %w", err)
	}
	defer rows.Close()

	var lines []models.CartLine
	for rows.Next() {
		var line models.CartLine
		err := rows.Scan(
			&line.ID,
			&line.CustomerID,
			&line.ProductID,
			&line.ProductName,
			&line.Quantity,
			&line.PriceCents,
			&line.DiscountPct,
			&line.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan cart line: %w", err)
		}
		lines = append(lines, line)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return lines, nil
}

func RemoveCartLine(ctx context.Context, db *sql.DB, customerID, productID int64) error {
	result, err := db.ExecContext(ctx,
		`DELETE FROM cart_lines WHERE customer_id = $1 AND product_id = $2`,
		customerID, productID)
	if err != nil {
		return fmt.Errorf("remove cart line: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return database.ErrCartLineNotFound
	}

	return nil
}

// ClearCart deletes every cart line for the customer. It is only called as
// the final write of the checkout transaction, never committed on its own,
// so a crash can not leave the customer both ordered and still carted.
func ClearCart(ctx context.Context, tx *sql.Tx, customerID int64) error {
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM cart_lines WHERE customer_id = $1`, customerID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}
